package dkm

import (
	"bytes"
	"context"
	"testing"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/elf"
	"github.com/OpenArc-1/Ark-sub001/elf/elftest"
	"github.com/OpenArc-1/Ark-sub001/loader"
	"github.com/OpenArc-1/Ark-sub001/memory"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
	"github.com/OpenArc-1/Ark-sub001/vfs"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type testEnv struct {
	store *ramfs.Store
	disp  *vfs.Dispatcher
	out   *bytes.Buffer
	mgr   *Manager

	execs []uint32
}

func newEnv(t *testing.T, exitCode int, maxModules, arenaSize int) *testEnv {
	env := &testEnv{
		store: ramfs.NewStore(16, 8),
		out:   &bytes.Buffer{},
	}

	env.disp = vfs.NewDispatcher(env.store, 8, 2)

	machine := loader.MachineFunc(func(ctx context.Context, space *memory.Space, entry uint32, caps *api.Table) (int, error) {
		env.execs = append(env.execs, entry)
		return exitCode, nil
	})

	l := loader.NewLoader(machine, nil)

	caps := &api.Table{Version: api.Version}

	env.mgr = NewManager(env.disp, l, caps, env.out, maxModules, arenaSize)

	return env
}

func vendorModule(name, version string) []byte {
	img := elftest.Image{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Type: elf.PTLoad, Addr: 0x1000, Data: []byte{0xB8, 0x00, 0x00, 0x00, 0x00, 0xC3}},
		},
	}

	if name != "" {
		img.Sections = append(img.Sections, elftest.Section{Name: ".vendor_mod", Data: []byte(name)})
	}
	if version != "" {
		img.Sections = append(img.Sections, elftest.Section{Name: ".vendor_ver", Data: []byte(version)})
	}

	return img.Bytes()
}

func TestLoad(t *testing.T) {
	n := neko.Modern(t)

	n.It("loads a module and prints the vendor banner", func(t *testing.T) {
		env := newEnv(t, 0, 4, 1<<20)

		mod := vendorModule("e1000", "2.1")
		require.NoError(t, env.store.AddFile("/mods/e1000.ko", mod, len(mod)))

		require.NoError(t, env.mgr.Load(context.Background(), "/mods/e1000.ko"))

		require.Equal(t, "=> e1000 2.1\n", env.out.String())
		require.Equal(t, []string{"e1000.ko"}, env.mgr.Modules())
		require.Equal(t, len(mod), env.mgr.ArenaUsed())
		require.Len(t, env.execs, 1)
	})

	n.It("falls back to the basename when vendor sections are absent", func(t *testing.T) {
		env := newEnv(t, 0, 4, 1<<20)

		mod := vendorModule("", "")
		require.NoError(t, env.store.AddFile("/mods/plain.ko", mod, len(mod)))

		require.NoError(t, env.mgr.Load(context.Background(), "/mods/plain.ko"))

		require.Equal(t, "=> plain.ko\n", env.out.String())
	})

	n.It("prints only the vendor name when the version is missing", func(t *testing.T) {
		env := newEnv(t, 0, 4, 1<<20)

		mod := vendorModule("snd-ac97", "")
		require.NoError(t, env.store.AddFile("/mods/snd.ko", mod, len(mod)))

		require.NoError(t, env.mgr.Load(context.Background(), "/mods/snd.ko"))

		require.Equal(t, "=> snd-ac97\n", env.out.String())
	})

	n.It("accepts raw code blobs as modules", func(t *testing.T) {
		env := newEnv(t, 0, 4, 1<<20)

		raw := bytes.Repeat([]byte{0x90}, 32)
		require.NoError(t, env.store.AddFile("/mods/raw.bin", raw, len(raw)))

		require.NoError(t, env.mgr.Load(context.Background(), "/mods/raw.bin"))

		require.Equal(t, "=> raw.bin\n", env.out.String())
		require.Equal(t, []string{"raw.bin"}, env.mgr.Modules())
	})

	n.It("does not register a module whose init fails but keeps its arena bytes", func(t *testing.T) {
		env := newEnv(t, 3, 4, 1<<20)

		mod := vendorModule("bad", "0.1")
		require.NoError(t, env.store.AddFile("/mods/bad.ko", mod, len(mod)))

		err := env.mgr.Load(context.Background(), "/mods/bad.ko")
		require.ErrorIs(t, err, ErrInitFailed)

		require.Empty(t, env.mgr.Modules())
		require.Equal(t, len(mod), env.mgr.ArenaUsed())
		require.Equal(t, "=> ...failed to init the dkm\n", env.out.String())
	})

	n.It("reports missing module files", func(t *testing.T) {
		env := newEnv(t, 0, 4, 1<<20)

		err := env.mgr.Load(context.Background(), "/mods/ghost.ko")
		require.ErrorIs(t, err, vfs.ErrNotFound)
	})

	n.It("caps the module table", func(t *testing.T) {
		env := newEnv(t, 0, 1, 1<<20)

		mod := vendorModule("", "")
		require.NoError(t, env.store.AddFile("/a.ko", mod, len(mod)))
		require.NoError(t, env.store.AddFile("/b.ko", mod, len(mod)))

		require.NoError(t, env.mgr.Load(context.Background(), "/a.ko"))
		require.ErrorIs(t, env.mgr.Load(context.Background(), "/b.ko"), ErrTableFull)
	})

	n.It("exhausts the arena without disturbing loaded modules", func(t *testing.T) {
		const arena = 128

		env := newEnv(t, 0, 4, arena)

		big := bytes.Repeat([]byte{0x90}, arena/2+1)
		require.NoError(t, env.store.AddFile("/one.bin", big, len(big)))
		require.NoError(t, env.store.AddFile("/two.bin", big, len(big)))

		require.NoError(t, env.mgr.Load(context.Background(), "/one.bin"))

		err := env.mgr.Load(context.Background(), "/two.bin")
		require.ErrorIs(t, err, ErrArenaExhausted)

		require.Equal(t, []string{"one.bin"}, env.mgr.Modules())
		require.Equal(t, arena/2+1, env.mgr.ArenaUsed())
	})

	n.Meow()
}

func TestUnload(t *testing.T) {
	n := neko.Modern(t)

	load3 := func(t *testing.T) *testEnv {
		env := newEnv(t, 0, 8, 1<<20)

		mod := vendorModule("", "")
		for _, name := range []string{"/a.ko", "/b.ko", "/c.ko"} {
			require.NoError(t, env.store.AddFile(name, mod, len(mod)))
			require.NoError(t, env.mgr.Load(context.Background(), name))
		}

		return env
	}

	n.It("removes the named module and shifts later entries down", func(t *testing.T) {
		env := load3(t)

		used := env.mgr.ArenaUsed()

		require.NoError(t, env.mgr.Unload("b.ko"))

		require.Equal(t, []string{"a.ko", "c.ko"}, env.mgr.Modules())
		require.Equal(t, used, env.mgr.ArenaUsed())
	})

	n.It("reports unknown module names", func(t *testing.T) {
		env := load3(t)

		require.ErrorIs(t, env.mgr.Unload("ghost.ko"), ErrNotFound)
	})

	n.It("frees a module-table slot for reuse", func(t *testing.T) {
		env := newEnv(t, 0, 1, 1<<20)

		mod := vendorModule("", "")
		require.NoError(t, env.store.AddFile("/a.ko", mod, len(mod)))
		require.NoError(t, env.store.AddFile("/b.ko", mod, len(mod)))

		require.NoError(t, env.mgr.Load(context.Background(), "/a.ko"))
		require.NoError(t, env.mgr.Unload("a.ko"))
		require.NoError(t, env.mgr.Load(context.Background(), "/b.ko"))

		require.Equal(t, []string{"b.ko"}, env.mgr.Modules())
	})

	n.Meow()
}
