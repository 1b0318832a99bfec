// Package loader interprets a byte buffer as an ELF32 binary or a raw
// code blob, stages it into an identity-mapped address space and transfers
// control through the configured Machine.
package loader

import (
	"context"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/elf"
	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var ErrInvalidBinary = errors.New("invalid binary")

// Machine executes native code staged in a Space, starting at entry. The
// capability table is the callee's sole argument; when it is nil the
// callee is entered with the conventional empty (argc, argv) signature
// instead. The return value is the callee's exit code.
type Machine interface {
	Exec(ctx context.Context, space *memory.Space, entry uint32, caps *api.Table) (int, error)
}

// MachineFunc adapts a function to the Machine interface.
type MachineFunc func(ctx context.Context, space *memory.Space, entry uint32, caps *api.Table) (int, error)

func (f MachineFunc) Exec(ctx context.Context, space *memory.Space, entry uint32, caps *api.Table) (int, error) {
	return f(ctx, space, entry, caps)
}

func NewLoader(machine Machine, cache *Cache) *Loader {
	return &Loader{
		L:       log.L,
		machine: machine,
		cache:   cache,
	}
}

type Loader struct {
	L hclog.Logger

	machine Machine
	cache   *Cache
}

// Execute stages buf and transfers control. Buffers that do not start
// with the ELF magic are treated as raw machine code and entered at their
// first byte. No relocation is performed: ELF segment addresses are used
// as absolute physical destinations, and nothing checks them against each
// other.
func (l *Loader) Execute(ctx context.Context, buf []byte, caps *api.Table) (int, error) {
	if len(buf) < 4 {
		return -1, errors.Wrapf(ErrInvalidBinary, "%d bytes", len(buf))
	}

	if !elf.IsELF(buf) {
		return l.execRaw(ctx, buf, caps)
	}

	img, err := l.decode(buf)
	if err != nil {
		return -1, err
	}

	space := memory.NewSpace()

	for i, ph := range img.Progs {
		if ph.Type != elf.PTLoad {
			continue
		}

		space.Place(ph.Paddr, img.SegmentBytes(ph))

		if ph.MemSize > ph.FileSize {
			space.Zero(ph.Paddr+ph.FileSize, ph.MemSize-ph.FileSize)

			l.L.Trace("zeroed segment bss", "segment", i, "bytes", ph.MemSize-ph.FileSize)
		}

		l.L.Trace("loaded segment", "segment", i,
			"paddr", hclog.Fmt("%#x", ph.Paddr),
			"filesz", ph.FileSize, "memsz", ph.MemSize)
	}

	l.L.Debug("transferring control", "entry", hclog.Fmt("%#x", img.Header.Entry))

	return l.machine.Exec(ctx, space, img.Header.Entry, caps)
}

func (l *Loader) execRaw(ctx context.Context, buf []byte, caps *api.Table) (int, error) {
	space := memory.NewSpace()

	base := space.Reserve(uint32(len(buf)))
	space.Place(base, buf)

	l.L.Debug("executing raw code blob", "base", hclog.Fmt("%#x", base), "size", len(buf))

	return l.machine.Exec(ctx, space, base, caps)
}

func (l *Loader) decode(buf []byte) (*elf.Image, error) {
	if l.cache == nil {
		return elf.Decode(buf)
	}

	key, err := cacheKey(buf)
	if err != nil {
		return nil, err
	}

	if img, ok := l.cache.Lookup(key); ok {
		l.L.Trace("image cache hit", "key", key)
		return img, nil
	}

	img, err := elf.Decode(buf)
	if err != nil {
		return nil, err
	}

	l.cache.Set(key, img)

	return img, nil
}
