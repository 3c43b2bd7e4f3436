// Package locktable tracks per-block read/write locks with task affinity.
//
// One writer or N readers, never both. Every lock records the owning task
// attempt so ReleaseAllForTask can sweep everything a finished or crashed
// task still holds; that sweep is the only defense against leaked locks.
package locktable
