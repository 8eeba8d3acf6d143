package store

import (
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// DiskUsage returns the best-effort on-disk size of the database directory.
func (s *Store) DiskUsage() uint64 {
	if s == nil || s.path == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}

// DiskUsageHuman renders DiskUsage for banners and health output.
func (s *Store) DiskUsageHuman() string {
	return humanize.Bytes(s.DiskUsage())
}
