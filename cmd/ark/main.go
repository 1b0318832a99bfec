package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/hostfs"
	"github.com/OpenArc-1/Ark-sub001/initramfs"
	"github.com/OpenArc-1/Ark-sub001/kernel"
	"github.com/OpenArc-1/Ark-sub001/loader"
	clog "github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/memory"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

var (
	fArchive = pflag.StringP("initramfs", "i", "", "tar or zip archive to load as the boot ramfs")
	fRoot    = pflag.StringP("root", "r", "", "host directory to mount as a secondary filesystem")
	fEnvFile = pflag.String("env-file", "", "load kernel configuration from this env file")
)

func main() {
	pflag.Parse()

	if *fEnvFile != "" {
		if err := godotenv.Load(*fEnvFile); err != nil {
			fatal("loading env file: %v", err)
		}

		// The logger initialized before the env file loaded; re-check TRACE.
		clog.EnableDebug()
	}

	cfg, err := kernel.LoadConfig()
	if err != nil {
		fatal("loading config: %v", err)
	}

	if *fArchive == "" {
		fatal("an --initramfs archive is required")
	}

	// No machine can run native code from a host process; executed
	// binaries are staged, logged and reported as if they exited cleanly.
	machine := loader.MachineFunc(func(ctx context.Context, space *memory.Space, entry uint32, caps *api.Table) (int, error) {
		clog.L.Info("exec requested", "entry", fmt.Sprintf("%#x", entry))
		return 0, nil
	})

	k := kernel.New(cfg, machine, os.Stdout, kernel.NewStreamInput(os.Stdin))

	color.New(color.FgCyan).Printf("ark boot %s\n", k.BootID())

	if err := loadArchive(k, *fArchive); err != nil {
		fatal("loading initramfs: %v", err)
	}

	if err := k.VFS.Mount("ramfs", "", "/"); err != nil {
		fatal("mounting ramfs: %v", err)
	}

	if *fRoot != "" {
		k.VFS.RegisterExternal("hostfs", hostfs.New(*fRoot))

		if err := k.VFS.Mount("hostfs", *fRoot, "/host"); err != nil {
			fatal("mounting host root: %v", err)
		}
	}

	if !k.RunInit(context.Background()) {
		color.New(color.FgRed).Fprintf(os.Stderr, "no init found in the boot archive\n")
		os.Exit(1)
	}
}

func loadArchive(k *kernel.Kernel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		st, err := f.Stat()
		if err != nil {
			return err
		}

		return initramfs.FromZip(k.Store, f, st.Size())
	}

	return initramfs.FromTar(k.Store, f)
}

func fatal(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "ark: "+format+"\n", args...)
	os.Exit(1)
}
