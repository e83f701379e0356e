package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/supervise"
)

func TestObserve(t *testing.T) {
	r := New("t1", "relay")
	results := []supervise.Result{
		{ID: "transport", Code: 0, Duration: 2 * time.Second},
		{ID: "decompress", Code: 1, Duration: time.Second},
		{ID: "unarchive", Code: -1, Signal: unix.SIGTERM, Terminated: true, Duration: 1500 * time.Millisecond},
	}
	r.Observe(results, 3*time.Second, &ndd.NodeFailure{Node: "decompress", Code: 1})

	assert.Equal(t, 1.0, promtest.ToFloat64(r.nodeStarts.WithLabelValues("transport")))
	assert.Equal(t, 0.0, promtest.ToFloat64(r.nodeFailures.WithLabelValues("transport")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.nodeFailures.WithLabelValues("decompress")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.nodeFailures.WithLabelValues("unarchive")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.nodeTerminated.WithLabelValues("unarchive")))
	assert.Equal(t, 1.5, promtest.ToFloat64(r.nodeDuration.WithLabelValues("unarchive")))
	assert.Equal(t, -1.0, promtest.ToFloat64(r.nodeExitCode.WithLabelValues("unarchive")))
	assert.Equal(t, 3.0, promtest.ToFloat64(r.transferDuration))
	assert.Equal(t, 0.0, promtest.ToFloat64(r.transferSuccess))

	r.Observe(nil, time.Second, nil)
	assert.Equal(t, 1.0, promtest.ToFloat64(r.transferSuccess))
}

func TestWriteFile(t *testing.T) {
	r := New("t2", "source")
	r.Observe([]supervise.Result{{ID: "compress", Duration: time.Second}}, 4*time.Second, nil)

	path := filepath.Join(t.TempDir(), "ndd.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, want := range []string{
		`ndd_node_starts_total{node="compress",role="source",transfer="t2"} 1`,
		`ndd_transfer_duration_seconds{role="source",transfer="t2"} 4`,
		`ndd_transfer_success{role="source",transfer="t2"} 1`,
	} {
		assert.True(t, strings.Contains(text, want), "missing %q in:\n%s", want, text)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Observe([]supervise.Result{{ID: "x"}}, time.Second, nil)
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "absent")))
	assert.Nil(t, r.Registry())
}
