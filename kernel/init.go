package kernel

import (
	"context"
	"strings"

	"github.com/OpenArc-1/Ark-sub001/elf"
	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/script"
)

// RunInit locates and runs the boot entry point. The priority chain for
// /init is: ELF binary, #!init script, foreign shebang interpreter, plain
// command text, raw binary. When /init is absent or executes nothing, the
// whole ramfs is scanned for the first #!init script that does.
//
// It reports whether anything executed; deciding what a failed boot means
// is the caller's business.
func (k *Kernel) RunInit(ctx context.Context) bool {
	if k.Store.HasInit() {
		data, err := k.Store.GetInit()
		if err == nil && len(data) > 0 {
			if k.runInitData(ctx, data) {
				return true
			}

			log.L.Warn("/init executed nothing, scanning ramfs")
		}
	}

	return k.interp.ScanAndRun(ctx)
}

func (k *Kernel) runInitData(ctx context.Context, data []byte) bool {
	switch {
	case elf.IsELF(data):
		log.L.Info("running /init", "format", "elf")
		return k.execInit(ctx, data)

	case script.IsScript(data):
		log.L.Info("running /init", "format", "script")
		return k.interp.Run(ctx, data)

	case len(data) > 2 && data[0] == '#' && data[1] == '!':
		log.L.Info("running /init", "format", "shebang")
		return k.runForeignShebang(ctx, data)

	case isText(data):
		log.L.Info("running /init", "format", "text")
		return k.runPlainText(ctx, data)
	}

	log.L.Info("running /init", "format", "raw")

	return k.execInit(ctx, data)
}

func (k *Kernel) execInit(ctx context.Context, data []byte) bool {
	code, err := k.Loader.Execute(ctx, data, k.caps)
	if err != nil {
		k.Writef("init: %v\n", err)
		return false
	}

	if code != 0 {
		k.Writef("init: exited with %d\n", code)
	}

	return true
}

// runForeignShebang runs the interpreter named on the first line of data,
// publishing /init through the capability table so the interpreter can
// find the script it is supposed to execute.
func (k *Kernel) runForeignShebang(ctx context.Context, data []byte) bool {
	line := data[2:]
	if i := strings.IndexAny(string(line), "\r\n"); i >= 0 {
		line = line[:i]
	}

	path := strings.TrimSpace(string(line))
	if path == "" {
		return false
	}

	interp, err := k.Store.GetFile(path)
	if err != nil || len(interp) == 0 {
		k.Writef("init: interpreter not found: %s\n", path)
		return false
	}

	k.setStartupScript("/init")
	defer k.setStartupScript("")

	log.L.Info("running /init via interpreter", "interpreter", path)

	return k.execInit(ctx, interp)
}

// runPlainText feeds each non-blank, non-comment line through the script
// dispatcher. A shebang-less text /init behaves like a script body.
func (k *Kernel) runPlainText(ctx context.Context, data []byte) bool {
	executed := false

	for _, line := range strings.Split(string(data), "\n") {
		ln := strings.Trim(line, " \t\r")
		if ln == "" || ln[0] == '#' {
			continue
		}

		if k.interp.ExecLine(ctx, ln) {
			executed = true
		}
	}

	return executed
}

func isText(data []byte) bool {
	for _, c := range data {
		if c >= 0x20 && c < 0x7F {
			continue
		}

		switch c {
		case '\n', '\r', '\t':
			continue
		}

		return false
	}

	return true
}

func (k *Kernel) execBuffer(ctx context.Context, data []byte) (int, error) {
	return k.Loader.Execute(ctx, data, k.caps)
}

func (k *Kernel) loadModule(ctx context.Context, path string) error {
	return k.Modules.Load(ctx, path)
}
