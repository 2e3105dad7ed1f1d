// Package pipe wraps one end of an OS pipe with synchronous and
// asynchronous, callback based reads.
//
// Asynchronous reads are driven by a single background reader per Handle,
// which posts ReadCompletion for every chunk and ReadToEndOfFileCompletion
// once at EOF through a notify.Center. Read and ReadToEnd subscribe to those
// events, so a caller may stream chunks and collect the full text of the
// same stream at once.
package pipe
