package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeBytes reports the bytes available to unprivileged callers on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// sameDevice reports whether two paths live on the same filesystem, in which
// case sampling both would double-count the same pool.
func sameDevice(a, b string) (bool, error) {
	var statA, statB unix.Stat_t
	if err := unix.Stat(a, &statA); err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	if err := unix.Stat(b, &statB); err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	return statA.Dev == statB.Dev, nil
}
