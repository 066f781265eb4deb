//go:build !linux && !freebsd && !darwin

package fsync

import "os"

// Datasync flushes file data to stable storage.
func Datasync(f *os.File) error {
	return f.Sync()
}

// Full flushes file data and metadata.
func Full(f *os.File) error {
	return f.Sync()
}
