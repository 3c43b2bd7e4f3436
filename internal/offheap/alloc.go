package offheap

// Alloc returns a zeroed buffer of size bytes backed by an anonymous mapping.
// The returned slice must be released with Free and must not be re-sliced
// before doing so; Free needs the original backing region.
func Alloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return alloc(size)
}

// Free releases a buffer obtained from Alloc. Passing a nil slice is a no-op.
func Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return free(b)
}
