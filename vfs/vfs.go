// Package vfs multiplexes the ramfs store and externally-registered block
// filesystems behind one fixed-size file-handle table. Resolution order is
// always ramfs first: a path present in both stores is served from ramfs.
package vfs

import (
	"sync"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
	"github.com/pkg/errors"
)

var (
	ErrTooManyMounts = errors.New("too many mounts")
	ErrUnknownFsType = errors.New("unknown filesystem type")
	ErrNoFreeSlots   = errors.New("no free file handles")
	ErrNotFound      = errors.New("unknown path")
	ErrOutOfRange    = errors.New("seek offset out of range")
	ErrInvalidHandle = errors.New("invalid file handle")
)

// FileType classifies what an open handle points at.
type FileType int

const (
	Regular FileType = iota
)

// ExternalFS is the contract a block filesystem (FAT32 over ATA/SATA in
// the real kernel) exposes to the dispatcher. The dispatcher never copies
// its file contents; it only reads through this interface.
type ExternalFS interface {
	Mount(device string) error
	Open(path string) (int, error)
	FileSize(fd int) int
	Read(fd int, p []byte) (int, error)
	Close(fd int) error
	Exists(path string) bool
}

type handle struct {
	valid  bool
	path   string
	cursor int
	size   int
	typ    FileType

	// extFD is the backing filesystem's own descriptor, or -1 when the
	// handle resolved to ramfs at open time.
	extFD int
	ext   ExternalFS
}

type mount struct {
	fsType     string
	device     string
	mountPoint string
	mounted    bool
}

type external struct {
	fsType string
	fs     ExternalFS
}

// Dispatcher owns the open-handle and mount tables. Both are fixed
// capacity and never resize.
type Dispatcher struct {
	mu sync.Mutex

	store *ramfs.Store

	handles []handle

	mounts     []mount
	mountCount int

	exts []external
}

// NewDispatcher builds a dispatcher over store with fixed handle and
// mount table capacities.
func NewDispatcher(store *ramfs.Store, maxHandles, maxMounts int) *Dispatcher {
	return &Dispatcher{
		store:   store,
		handles: make([]handle, maxHandles),
		mounts:  make([]mount, maxMounts),
	}
}

// RegisterExternal makes fs resolvable under fsType. External filesystems
// are consulted after ramfs, in registration order.
func (d *Dispatcher) RegisterExternal(fsType string, fs ExternalFS) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.exts = append(d.exts, external{fsType: fsType, fs: fs})
}

// Mount records a filesystem attachment and runs the filesystem's own
// mount step. There is no unmount.
func (d *Dispatcher) Mount(fsType, device, mountPoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mountCount >= len(d.mounts) {
		return errors.Wrapf(ErrTooManyMounts, "type=%q device=%q", fsType, device)
	}

	var mountFn func() error

	switch {
	case fsType == "ramfs":
		mountFn = func() error {
			d.store.Mount()
			return nil
		}
	default:
		ext, ok := d.findExternal(fsType)
		if !ok {
			return errors.Wrapf(ErrUnknownFsType, "type=%q", fsType)
		}

		mountFn = func() error { return ext.Mount(device) }
	}

	d.mounts[d.mountCount] = mount{
		fsType:     fsType,
		device:     device,
		mountPoint: mountPoint,
		mounted:    true,
	}
	d.mountCount++

	log.L.Info("mounting filesystem", "type", fsType, "device", device, "on", mountPoint)

	return mountFn()
}

// MountCount returns the number of recorded attachments.
func (d *Dispatcher) MountCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.mountCount
}

// Open resolves path (ramfs first, then external filesystems) and fills
// the first free handle slot.
func (d *Dispatcher) Open(path string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot := -1
	for i := range d.handles {
		if !d.handles[i].valid {
			slot = i
			break
		}
	}

	if slot == -1 {
		return -1, errors.Wrapf(ErrNoFreeSlots, "path=%q", path)
	}

	if data, err := d.store.GetFile(path); err == nil {
		d.handles[slot] = handle{
			valid: true,
			path:  path,
			size:  len(data),
			typ:   Regular,
			extFD: -1,
		}

		return slot, nil
	}

	for _, ext := range d.exts {
		fd, err := ext.fs.Open(path)
		if err != nil {
			continue
		}

		d.handles[slot] = handle{
			valid: true,
			path:  path,
			size:  ext.fs.FileSize(fd),
			typ:   Regular,
			extFD: fd,
			ext:   ext.fs,
		}

		return slot, nil
	}

	return -1, errors.Wrapf(ErrNotFound, "path=%q", path)
}

// Read copies up to len(p) bytes at the handle's cursor. Reads are
// clamped to the file size; reading past end-of-file returns 0, never an
// error. The backing store is re-resolved on every call, ramfs first, so
// a file added after open becomes visible to later reads.
func (d *Dispatcher) Read(h int, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hd, err := d.handle(h)
	if err != nil {
		return 0, err
	}

	want := len(p)
	if remaining := hd.size - hd.cursor; want > remaining {
		want = remaining
	}

	if want <= 0 {
		return 0, nil
	}

	if data, err := d.store.GetFile(hd.path); err == nil {
		if hd.cursor >= len(data) {
			return 0, nil
		}

		n := copy(p[:want], data[hd.cursor:])
		hd.cursor += n

		return n, nil
	}

	if hd.ext != nil {
		n, err := hd.ext.Read(hd.extFD, p[:want])
		if n > 0 {
			hd.cursor += n
		}

		return n, err
	}

	return 0, errors.Wrapf(ErrNotFound, "path=%q", hd.path)
}

// Seek positions the handle cursor. The offset must not exceed the file
// size.
func (d *Dispatcher) Seek(h int, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hd, err := d.handle(h)
	if err != nil {
		return err
	}

	if offset < 0 || offset > hd.size {
		return errors.Wrapf(ErrOutOfRange, "offset=%d size=%d", offset, hd.size)
	}

	hd.cursor = offset

	return nil
}

// Close frees the handle slot for reuse and releases any resources the
// external filesystem holds for it.
func (d *Dispatcher) Close(h int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hd, err := d.handle(h)
	if err != nil {
		return err
	}

	hd.valid = false

	if hd.ext != nil {
		return hd.ext.Close(hd.extFD)
	}

	return nil
}

// FileSize returns the size resolved at open time, or 0 for an invalid
// handle.
func (d *Dispatcher) FileSize(h int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	hd, err := d.handle(h)
	if err != nil {
		return 0
	}

	return hd.size
}

// FileExists reports whether path is present in either backing store.
func (d *Dispatcher) FileExists(path string) bool {
	if d.store.FileExists(path) {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ext := range d.exts {
		if ext.fs.Exists(path) {
			return true
		}
	}

	return false
}

// ListCount enumerates direct children of the root directory only; the
// external filesystems are not enumerable in this design.
func (d *Dispatcher) ListCount(path string) int {
	if path != "/" {
		return 0
	}

	return d.store.ListCount(path)
}

// ListAt returns the basename of the index-th direct child of the root.
func (d *Dispatcher) ListAt(path string, index int) (string, bool) {
	if path != "/" {
		return "", false
	}

	return d.store.ListAt(path, index)
}

func (d *Dispatcher) handle(h int) (*handle, error) {
	if h < 0 || h >= len(d.handles) || !d.handles[h].valid {
		return nil, errors.Wrapf(ErrInvalidHandle, "handle=%d", h)
	}

	return &d.handles[h], nil
}

func (d *Dispatcher) findExternal(fsType string) (ExternalFS, bool) {
	for _, ext := range d.exts {
		if ext.fsType == fsType {
			return ext.fs, true
		}
	}

	return nil, false
}
