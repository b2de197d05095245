package framesource

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type mapping struct {
	data []byte
}

func mapFile(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("could not map %s: %w", path, err)
	}
	return &mapping{data: data}, nil
}

// frames splits the mapping into frameSize chunks. A file that is not a
// whole number of frames is handed out as one frame so the uploader can
// reject it.
func (m *mapping) frames(frameSize int) [][]byte {
	if frameSize <= 0 || len(m.data)%frameSize != 0 {
		return [][]byte{m.data}
	}
	out := make([][]byte, 0, len(m.data)/frameSize)
	for off := 0; off < len(m.data); off += frameSize {
		out = append(out, m.data[off:off+frameSize:off+frameSize])
	}
	return out
}

func (m *mapping) unmap() {
	if m == nil || m.data == nil {
		return
	}
	_ = unix.Munmap(m.data)
	m.data = nil
}
