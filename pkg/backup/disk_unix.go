//go:build !windows

package backup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkFreeSpace verifies the filesystem holding dir can absorb a write
// of the given size, with headroom for filesystem overhead.
func checkFreeSpace(dir string, need uint64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("backup: failed to stat filesystem: %w", err)
	}
	avail := st.Bavail * uint64(st.Bsize)
	if avail < need*2 {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, need, avail)
	}
	return nil
}
