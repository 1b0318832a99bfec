// Package kernel wires the stores, the loader, the module manager and the
// script interpreter into one bootable unit and hands loaded code the
// capability table it calls back through.
package kernel

import (
	"fmt"
	"io"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/dkm"
	"github.com/OpenArc-1/Ark-sub001/loader"
	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
	"github.com/OpenArc-1/Ark-sub001/script"
	"github.com/OpenArc-1/Ark-sub001/vfs"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Kernel owns every boot-time table. All capacities come from Config and
// are fixed for the life of the kernel.
type Kernel struct {
	cfg    Config
	bootID uuid.UUID

	Store   *ramfs.Store
	VFS     *vfs.Dispatcher
	Loader  *loader.Loader
	Modules *dkm.Manager
	Sink    *LogSink

	ttys   *ttyTable
	input  InputSource
	out    io.Writer
	caps   *api.Table
	interp *script.Interpreter

	mu            sync.Mutex
	startupScript string
}

// New builds a kernel around the given execution machine. Console output
// goes to out; nil means discard. A nil input reads as a keyboard with no
// keys.
func New(cfg Config, machine loader.Machine, out io.Writer, input InputSource) *Kernel {
	if out == nil {
		out = io.Discard
	}

	if input == nil {
		input = NullInput{}
	}

	k := &Kernel{
		cfg:    cfg,
		bootID: uuid.New(),
		out:    out,
		input:  input,
	}

	k.Store = ramfs.NewStore(cfg.MaxFiles, cfg.MaxDirs)
	k.Store.Prepare()

	k.Sink = NewLogSink(k.Store, cfg.LogBufferSize)
	k.VFS = vfs.NewDispatcher(k.Store, cfg.MaxHandles, cfg.MaxMounts)
	k.Loader = loader.NewLoader(machine, loader.NewCache())
	k.ttys = newTtyTable(cfg.MaxTtys)
	k.caps = k.buildTable()

	k.Modules = dkm.NewManager(k.VFS, k.Loader, k.caps, k.Console(), cfg.MaxModules, cfg.ArenaSize)

	k.interp = &script.Interpreter{
		Store:      k.Store,
		Output:     k.Console(),
		Exec:       k.execBuffer,
		LoadModule: k.loadModule,
		OpenLog:    k.Sink.Open,
	}

	log.L.Info("kernel constructed",
		"boot_id", k.bootID.String(),
		"files", cfg.MaxFiles,
		"handles", cfg.MaxHandles,
		"arena", cfg.ArenaSize)

	return k
}

// BootID identifies this kernel instance in logs.
func (k *Kernel) BootID() string {
	return k.bootID.String()
}

// Caps exposes the capability table, mainly so tests and host front ends
// can poke at what loaded code would see.
func (k *Kernel) Caps() *api.Table {
	return k.caps
}

// Console returns the kernel's text output. Everything written through it
// is mirrored into the ramfs log capture when one is open.
func (k *Kernel) Console() io.Writer {
	return consoleWriter{k}
}

// Writef prints to the console.
func (k *Kernel) Writef(format string, args ...interface{}) {
	fmt.Fprintf(k.Console(), format, args...)
}

// writec prints with an ANSI foreground color. Only the low three bits of
// c matter, matching the VGA palette indices loaded code passes in.
func (k *Kernel) writec(c uint8, format string, args ...interface{}) {
	attr := color.Attribute(30 + int(c&7))
	color.New(attr).Fprintf(k.Console(), format, args...)
}

func (k *Kernel) setStartupScript(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.startupScript = path
}

func (k *Kernel) startupScriptPath() string {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.startupScript
}

type consoleWriter struct {
	k *Kernel
}

func (w consoleWriter) Write(p []byte) (int, error) {
	w.k.Sink.Write(p)

	return w.k.out.Write(p)
}
