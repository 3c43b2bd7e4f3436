//go:build windows

package offheap

// Windows has no unix.Mmap; fall back to heap-backed buffers. Free is a no-op
// and the GC reclaims the memory once the last reference drops.

func alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func free(b []byte) error {
	return nil
}
