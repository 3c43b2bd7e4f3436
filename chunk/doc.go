// Package chunk provides the chunked byte buffer used for serialized block
// payloads. Chunks are fixed-size and allocated lazily as bytes are written,
// so a block of unknown final size never needs a contiguous reallocation.
// Off-heap buffers are backed by anonymous mappings and must be freed.
package chunk
