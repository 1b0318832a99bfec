// Package api defines the versioned capability table handed to every
// executed binary as its sole call argument. Loaded code runs in the
// kernel's address space; this table is the only sanctioned way for it to
// reach kernel facilities.
package api

import (
	"time"

	"github.com/pkg/errors"
)

// Version is the current capability-table version. Callers needing the
// log or directory operations must require at least version 3.
const Version = 3

// DevKind enumerates device-node kinds for Mknod.
type DevKind uint32

const (
	DevBlock DevKind = 1
	DevChar  DevKind = 2
)

// Major numbers, kept in sync with the driver table.
const (
	MajSda    = 8
	MajPS2Kbd = 11
	MajUSBKbd = 12
	MajE1000  = 13
)

var ErrVersionTooOld = errors.New("capability table version too old")

// Table is the flat capability table. The kernel fills every field at
// boot; loaded code must check Version before touching fields that were
// added in later revisions.
type Table struct {
	Version uint32

	// Output.
	Writef func(format string, args ...interface{})
	Writec func(color uint8, format string, args ...interface{})

	// Kernel log capture, writes into a ramfs file. Version >= 3.
	LogOpen  func(path string)
	LogWrite func(p []byte)
	LogClose func()

	// Input. InputGetc blocks by busy-polling; there is no timeout.
	InputHasKey func() bool
	InputGetc   func() byte
	InputRead   func(max int, hide bool) string

	// Wall clock.
	ReadClock func() time.Time

	// CPU identification.
	CPUID     func(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)
	CPUVendor func() string

	// VFS file operations.
	Open       func(path string) (int, error)
	Read       func(fd int, p []byte) (int, error)
	Close      func(fd int) error
	FileSize   func(fd int) int
	FileExists func(path string) bool
	ListCount  func(path string) int
	ListAt     func(path string, index int) (string, bool)

	// VFS directory and device-node creation. Version >= 3.
	Mkdir func(path string) error
	Mknod func(path string, kind DevKind, major, minor uint32) error

	// TTY sessions.
	TtyAlloc   func() (uint32, bool)
	TtyFree    func(sid uint32)
	TtyCurrent func() uint32
	TtySwitch  func(sid uint32)
	TtyName    func(sid uint32) string
	TtyValid   func(sid uint32) bool

	// Hardware presence, filled by the kernel at boot.
	HasUSBKeyboard bool
	HasE1000       bool

	// Set while the kernel runs /init through a shebang interpreter so
	// the interpreter can find the script it should execute.
	StartupScriptPath func() string
}

// Require fails when the table predates min. Call it before using any
// field introduced after version 1.
func (t *Table) Require(min uint32) error {
	if t.Version < min {
		return errors.Wrapf(ErrVersionTooOld, "have=%d need=%d", t.Version, min)
	}

	return nil
}
