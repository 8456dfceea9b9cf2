//go:build !unix

package system

// FreeSpace is not implemented on this platform; known is always false.
func FreeSpace(path string) (uint64, bool, error) {
	return 0, false, nil
}
