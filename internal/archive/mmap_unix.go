//go:build unix

package archive

import (
	"os"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// mapFile maps path read-only. Empty files and files that cannot be mapped
// fall back to a plain read.
func mapFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if st.Size() == 0 {
		return []byte{}, nil, nil
	}
	size, err := safecast.Conv[int](st.Size())
	if err != nil {
		return nil, nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		data, err = os.ReadFile(path)
		return data, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
