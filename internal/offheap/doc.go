// Package offheap allocates byte buffers outside the Go heap.
//
// Off-heap resident entries are backed by anonymous memory mappings so their
// payload does not contribute to GC pressure. Buffers must be released with
// Free; the accountant cannot see a leaked mapping.
package offheap
