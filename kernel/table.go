package kernel

import (
	"encoding/binary"
	"time"

	"github.com/OpenArc-1/Ark-sub001/api"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
	"github.com/klauspost/cpuid/v2"
)

// buildTable constructs the capability table loaded code receives. Every
// field is bound here; nothing is filled in lazily.
func (k *Kernel) buildTable() *api.Table {
	return &api.Table{
		Version: api.Version,

		Writef: k.Writef,
		Writec: k.writec,

		LogOpen: k.Sink.Open,
		LogWrite: func(p []byte) {
			k.Sink.Write(p)
		},
		LogClose: k.Sink.Close,

		InputHasKey: k.input.HasKey,
		InputGetc:   k.input.Getc,
		InputRead:   k.input.Read,

		ReadClock: time.Now,

		CPUID:     cpuIdentify,
		CPUVendor: cpuVendor,

		Open:       k.VFS.Open,
		Read:       k.VFS.Read,
		Close:      k.VFS.Close,
		FileSize:   k.VFS.FileSize,
		FileExists: k.VFS.FileExists,
		ListCount:  k.VFS.ListCount,
		ListAt:     k.VFS.ListAt,

		Mkdir: k.Store.Mkdir,
		Mknod: func(path string, kind api.DevKind, major, minor uint32) error {
			return k.Store.Mknod(path, nodeKind(kind), major, minor)
		},

		TtyAlloc:   k.ttys.Alloc,
		TtyFree:    k.ttys.Free,
		TtyCurrent: k.ttys.Current,
		TtySwitch:  k.ttys.Switch,
		TtyName:    k.ttys.Name,
		TtyValid:   k.ttys.Valid,

		HasUSBKeyboard: k.cfg.HasUSBKeyboard,
		HasE1000:       k.cfg.HasE1000,

		StartupScriptPath: k.startupScriptPath,
	}
}

func nodeKind(kind api.DevKind) ramfs.NodeKind {
	if kind == api.DevBlock {
		return ramfs.BlockDevice
	}

	return ramfs.CharDevice
}

func cpuVendor() string {
	return cpuid.CPU.VendorString
}

// cpuIdentify synthesizes the x86 CPUID leaf-0 register layout from the
// host's identification: eax holds the max supported leaf, ebx/edx/ecx the
// vendor string. All other leaves read as zero.
func cpuIdentify(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32) {
	if leaf != 0 {
		return 0, 0, 0, 0
	}

	var raw [12]byte
	copy(raw[:], cpuid.CPU.VendorString)

	return 1,
		binary.LittleEndian.Uint32(raw[0:4]),
		binary.LittleEndian.Uint32(raw[8:12]),
		binary.LittleEndian.Uint32(raw[4:8])
}
