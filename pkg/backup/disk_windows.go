//go:build windows

package backup

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// checkFreeSpace verifies the volume holding dir can absorb a write of
// the given size, with headroom for filesystem overhead.
func checkFreeSpace(dir string, need uint64) error {
	path, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return fmt.Errorf("backup: invalid path: %w", err)
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(path, &avail, &total, &free); err != nil {
		return fmt.Errorf("backup: failed to query free space: %w", err)
	}
	if avail < need*2 {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, need, avail)
	}
	return nil
}
