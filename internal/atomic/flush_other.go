//go:build !linux && !freebsd

package atomic

import "os"

func flush(f *os.File) error {
	return f.Sync()
}

func syncDir(string) {}
