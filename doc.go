// Package ndd distributes a single data stream,
// a file or a directory tree,
// from one source host to an ordered chain of destination hosts.
//
// Data moves hop to hop:
// the source sends to the first destination,
// which stores its copy and retransmits to the second,
// and so on down the chain.
// Nothing here moves bytes itself.
// Each hop runs a small graph of external programs
// (the network transport, tar, a compressor, a patch applier, tee)
// connected by pipes,
// and this module is the engine that decides what that graph looks like,
// starts it with the right descriptors in the right places,
// and tears the whole thing down when any part of it fails.
//
// The pieces, leaves first:
//
//   - topology works out who each hop receives from and who it sends to.
//   - graph is the node-and-edge description of one hop's processes.
//   - compile turns a role plus transform flags into a graph.
//   - launch materializes a graph as running processes.
//   - supervise waits for those processes and cascades failure.
//   - remote builds the command lines that start roles on other hosts,
//     over ssh or through a Slurm job.
//   - lock keeps two transfers from racing on the same input or output.
//   - transfer ties it together for each role.
//   - xform holds built-in stand-ins for tar, pigz, bapply and tee.
//
// This package holds the vocabulary they share:
// the transform flags,
// the transport tuning knobs,
// and the error taxonomy that maps onto the process exit status.
package ndd
