// Package hostfs adapts a host directory to the vfs.ExternalFS contract.
// It stands in for the block filesystem (FAT32 over ATA/SATA) that the
// real kernel mounts as a secondary store.
package hostfs

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/pkg/errors"
)

var ErrNoFreeSlots = errors.New("no free hostfs descriptors")

const maxOpen = 16

type openFile struct {
	f     *os.File
	size  int
	valid bool
}

// FS serves files below a host directory root. Descriptors live in a
// fixed table, mirroring the driver it stands in for.
type FS struct {
	mu sync.Mutex

	root string

	open [maxOpen]openFile
}

func New(root string) *FS {
	return &FS{root: root}
}

func (h *FS) hostPath(path string) string {
	return filepath.Join(h.root, filepath.FromSlash(path))
}

// Mount points the filesystem at device, interpreted as a host directory.
func (h *FS) Mount(device string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if device != "" {
		h.root = device
	}

	log.L.Debug("hostfs mounted", "root", h.root)

	return nil
}

func (h *FS) Open(path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot := -1
	for i := range h.open {
		if !h.open[i].valid {
			slot = i
			break
		}
	}

	if slot == -1 {
		return -1, errors.Wrapf(ErrNoFreeSlots, "path=%q", path)
	}

	f, err := os.Open(h.hostPath(path))
	if err != nil {
		return -1, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return -1, err
	}

	h.open[slot] = openFile{f: f, size: int(st.Size()), valid: true}

	return slot, nil
}

func (h *FS) FileSize(fd int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fd < 0 || fd >= maxOpen || !h.open[fd].valid {
		return 0
	}

	return h.open[fd].size
}

func (h *FS) Read(fd int, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fd < 0 || fd >= maxOpen || !h.open[fd].valid {
		return 0, errors.Errorf("bad hostfs descriptor %d", fd)
	}

	n, err := h.open[fd].f.Read(p)
	if err == io.EOF || (err != nil && n > 0) {
		err = nil
	}

	return n, err
}

func (h *FS) Close(fd int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fd < 0 || fd >= maxOpen || !h.open[fd].valid {
		return nil
	}

	f := h.open[fd].f
	h.open[fd] = openFile{}

	return f.Close()
}

func (h *FS) Exists(path string) bool {
	_, err := os.Stat(h.hostPath(path))
	return err == nil
}
