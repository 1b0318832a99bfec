// Package dkm is the dynamic kernel module manager. Module images are
// copied from the VFS into a single bump-allocated code arena and executed
// against the kernel capability table. The arena only ever grows: unload
// removes bookkeeping, never bytes, since unloaded modules may still hold
// live code references.
package dkm

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/elf"
	"github.com/OpenArc-1/Ark-sub001/loader"
	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/vfs"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var (
	ErrTableFull      = errors.New("module table full")
	ErrNotFound       = errors.New("module not found")
	ErrEmptyFile      = errors.New("module file is empty")
	ErrArenaExhausted = errors.New("module too large for arena")
	ErrReadFailed     = errors.New("short read of module file")
	ErrInitFailed     = errors.New("module init failed")
)

const (
	maxVendorName = 64
	maxVendorVer  = 32
)

// Module is one registered module record.
type Module struct {
	Name   string
	Offset int
	Size   int
}

func (m Module) String() string {
	return spew.Sdump(m)
}

// Manager owns the module table and the code arena.
type Manager struct {
	mu sync.Mutex

	vfs    *vfs.Dispatcher
	loader *loader.Loader
	caps   *api.Table
	out    io.Writer

	modules []Module

	arena []byte
	used  int
}

// NewManager builds a manager with a fixed module-table capacity and a
// fixed arena size. Banner lines ("=> name version") go to out.
func NewManager(d *vfs.Dispatcher, l *loader.Loader, caps *api.Table, out io.Writer, maxModules, arenaSize int) *Manager {
	return &Manager{
		vfs:     d,
		loader:  l,
		caps:    caps,
		out:     out,
		modules: make([]Module, 0, maxModules),
		arena:   make([]byte, arenaSize),
	}
}

// Load copies the file at path into the arena and runs it. A module whose
// init returns non-zero is not registered, but the arena bytes it
// consumed stay consumed.
func (m *Manager) Load(ctx context.Context, pth string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.modules) == cap(m.modules) {
		return errors.Wrapf(ErrTableFull, "path=%q", pth)
	}

	h, err := m.vfs.Open(pth)
	if err != nil {
		return errors.Wrapf(err, "opening module %q", pth)
	}

	sz := m.vfs.FileSize(h)
	if sz == 0 {
		m.vfs.Close(h)
		return errors.Wrapf(ErrEmptyFile, "path=%q", pth)
	}

	if sz > len(m.arena)-m.used {
		m.vfs.Close(h)
		return errors.Wrapf(ErrArenaExhausted, "path=%q size=%d free=%d", pth, sz, len(m.arena)-m.used)
	}

	dest := m.arena[m.used : m.used+sz]

	n, err := m.vfs.Read(h, dest)
	m.vfs.Close(h)

	if err != nil || n != sz {
		return errors.Wrapf(ErrReadFailed, "path=%q want=%d got=%d", pth, sz, n)
	}

	offset := m.used
	m.used += sz

	vendorName, vendorVer := vendorInfo(dest)

	log.L.Debug("executing module", "path", pth, "size", humanize.Bytes(uint64(sz)))

	code, err := m.loader.Execute(ctx, dest, m.caps)
	if err != nil {
		fmt.Fprintf(m.out, "=> ...failed to init the dkm\n")
		return errors.Wrapf(err, "executing module %q", pth)
	}

	if code != 0 {
		fmt.Fprintf(m.out, "=> ...failed to init the dkm\n")
		return errors.Wrapf(ErrInitFailed, "path=%q exit=%d", pth, code)
	}

	switch {
	case vendorName != "" && vendorVer != "":
		fmt.Fprintf(m.out, "=> %s %s\n", vendorName, vendorVer)
	case vendorName != "":
		fmt.Fprintf(m.out, "=> %s\n", vendorName)
	default:
		fmt.Fprintf(m.out, "=> %s\n", path.Base(pth))
	}

	m.modules = append(m.modules, Module{
		Name:   path.Base(pth),
		Offset: offset,
		Size:   sz,
	})

	log.L.Info("module loaded", "path", pth, "size", sz, "arena_used", m.used)

	return nil
}

// Unload removes the first module whose name matches exactly; later
// entries shift down one slot. Arena bytes are not reclaimed.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.modules {
		if m.modules[i].Name != name {
			continue
		}

		log.L.Info("unloading module", "name", name)

		m.modules = append(m.modules[:i], m.modules[i+1:]...)

		return nil
	}

	return errors.Wrapf(ErrNotFound, "name=%q", name)
}

// Modules returns the registered module names in table order.
func (m *Manager) Modules() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.modules))
	for i, mod := range m.modules {
		names[i] = mod.Name
	}

	return names
}

// ArenaUsed returns the arena bump offset.
func (m *Manager) ArenaUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.used
}

// vendorInfo extracts the .vendor_mod / .vendor_ver section texts from an
// ELF image. The section contents are raw bytes, not necessarily
// NUL-terminated; they are truncated to the fixed banner widths.
func vendorInfo(buf []byte) (name, version string) {
	img, err := elf.Decode(buf)
	if err != nil {
		return "", ""
	}

	if raw, ok := img.SectionByName(".vendor_mod"); ok {
		name = clampText(raw, maxVendorName)
	}

	if raw, ok := img.SectionByName(".vendor_ver"); ok {
		version = clampText(raw, maxVendorVer)
	}

	return name, version
}

func clampText(raw []byte, max int) string {
	if len(raw) > max-1 {
		raw = raw[:max-1]
	}

	for i, c := range raw {
		if c == 0 {
			return string(raw[:i])
		}
	}

	return string(raw)
}
