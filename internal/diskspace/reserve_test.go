package diskspace

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestEnsureReserveAllocatesRealBlocks(t *testing.T) {
	dataDir := t.TempDir()
	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("EnsureReserve: %v", err)
	}
	path := filepath.Join(dataDir, ReserveFileName)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat reserve file: %v", err)
	}
	if info.Size() != ReserveSize {
		t.Fatalf("reserve size = %d, want %d", info.Size(), ReserveSize)
	}

	// The reserve only buys slack if the bytes are actually on disk: a
	// sparse file of the right apparent size frees nothing when deleted.
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		t.Fatalf("stat reserve blocks: %v", err)
	}
	if allocated := uint64(stat.Blocks) * 512; allocated < ReserveSize {
		t.Fatalf("reserve file has %d bytes allocated, want at least %d", allocated, ReserveSize)
	}
}

func TestEnsureReserveLeavesExistingFileAlone(t *testing.T) {
	dataDir := t.TempDir()
	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("EnsureReserve: %v", err)
	}
	path := filepath.Join(dataDir, ReserveFileName)
	first, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat reserve file: %v", err)
	}

	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("second EnsureReserve: %v", err)
	}
	second, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat reserve file: %v", err)
	}
	if !second.ModTime().Equal(first.ModTime()) {
		t.Fatal("existing reserve file was rewritten")
	}
}
