// Package script runs the line-oriented #!init boot script format:
//
//	#!init
//	# comment
//	file:/some/elf          load and run a binary from ramfs
//	log:/var/boot.log       mirror output into a ramfs file
//	hook::dkm:/etc/mods.cfg load modules listed in a config file
//	echo hello world        print a line
//	printk some message     same as echo
//	/bin/sh                 load and run /bin/sh from ramfs
//
// A bad line is reported and skipped; no line failure aborts the script.
package script

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
)

const maxLine = 512

// Interpreter dispatches script lines to the stores and managers the
// kernel binds in. Exec runs a binary image, LoadModule drives the module
// manager, OpenLog starts the ramfs-backed output capture.
type Interpreter struct {
	Store  *ramfs.Store
	Output io.Writer

	Exec       func(ctx context.Context, data []byte) (int, error)
	LoadModule func(ctx context.Context, path string) error
	OpenLog    func(path string)
}

// IsScript reports whether data starts with the #!init shebang: "#!",
// optional blanks, the word "init", then a blank, line end or EOF.
func IsScript(data []byte) bool {
	if len(data) < 2 || data[0] != '#' || data[1] != '!' {
		return false
	}

	k := 2
	for k < len(data) && (data[k] == ' ' || data[k] == '\t') {
		k++
	}

	if k+4 > len(data) || string(data[k:k+4]) != "init" {
		return false
	}

	if k+4 == len(data) {
		return true
	}

	switch data[k+4] {
	case ' ', '\t', '\n', '\r', 0:
		return true
	}

	return false
}

// Run executes a #!init script buffer. It returns whether any line
// executed something.
func (in *Interpreter) Run(ctx context.Context, data []byte) bool {
	pos := 0
	executed := false

	// Skip the shebang line.
	readLine(data, &pos)

	for pos < len(data) {
		line := readLine(data, &pos)

		ln := strings.TrimLeft(line, " \t")
		if ln == "" || ln[0] == '#' {
			continue
		}

		log.L.Debug("script line", "line", ln)

		if in.ExecLine(ctx, ln) {
			executed = true
		}
	}

	return executed
}

// ExecLine dispatches a single trimmed script line.
func (in *Interpreter) ExecLine(ctx context.Context, line string) bool {
	switch {
	case strings.HasPrefix(line, "file:"):
		return in.execFile(ctx, strings.TrimLeft(line[len("file:"):], " \t"))

	case strings.HasPrefix(line, "log:"):
		return in.openLog(strings.TrimLeft(line[len("log:"):], " \t"))

	case strings.HasPrefix(line, "hook::dkm:"):
		return in.runHook(ctx, strings.TrimLeft(line[len("hook::dkm:"):], " \t"))

	case strings.HasPrefix(line, "echo "):
		fmt.Fprintf(in.Output, "%s\n", line[len("echo "):])
		return true

	case strings.HasPrefix(line, "printk "):
		fmt.Fprintf(in.Output, "%s\n", line[len("printk "):])
		return true
	}

	// Bare path: prefix a slash when absent and cut at the first blank;
	// anything after it is discarded, not passed as arguments.
	path := line
	if i := strings.IndexAny(path, " \t"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if data, err := in.Store.GetFile(path); err == nil && len(data) > 0 {
		in.exec(ctx, path, data)
		return true
	}

	fmt.Fprintf(in.Output, "script: unknown command: %s\n", line)

	return false
}

// ScanAndRun walks every ramfs file in table order and runs the first
// #!init script that executes something.
func (in *Interpreter) ScanAndRun(ctx context.Context) bool {
	count := in.Store.FileCount()

	log.L.Debug("scanning ramfs for init scripts", "files", count)

	for i := 0; i < count; i++ {
		path, data, ok := in.Store.FileAt(i)
		if !ok || !IsScript(data) {
			continue
		}

		log.L.Info("found init script", "path", path, "size", len(data))

		if in.Run(ctx, data) {
			return true
		}
	}

	log.L.Info("no init scripts found")

	return false
}

func (in *Interpreter) execFile(ctx context.Context, path string) bool {
	if path == "" {
		fmt.Fprintf(in.Output, "script: file: missing path\n")
		return false
	}

	data, err := in.Store.GetFile(path)
	if err != nil || len(data) == 0 {
		fmt.Fprintf(in.Output, "script: file not found: %s\n", path)
		return false
	}

	in.exec(ctx, path, data)

	return true
}

func (in *Interpreter) exec(ctx context.Context, path string, data []byte) {
	log.L.Info("script exec", "path", path, "size", len(data))

	code, err := in.Exec(ctx, data)
	if err != nil {
		fmt.Fprintf(in.Output, "script: %s failed: %v\n", path, err)
		return
	}

	log.L.Info("script exec done", "path", path, "exit", code)
}

func (in *Interpreter) openLog(path string) bool {
	if path == "" {
		fmt.Fprintf(in.Output, "script: log: missing path\n")
		return false
	}

	in.OpenLog(path)

	return true
}

func (in *Interpreter) runHook(ctx context.Context, cfgPath string) bool {
	if cfgPath == "" {
		fmt.Fprintf(in.Output, "script: hook::dkm: missing config path\n")
		return false
	}

	data, err := in.Store.GetFile(cfgPath)
	if err != nil {
		fmt.Fprintf(in.Output, "script: hook config not found: %s\n", cfgPath)
		return false
	}

	actions := parseHookConfig(data)

	for _, mod := range actions {
		if err := in.LoadModule(ctx, mod); err != nil {
			fmt.Fprintf(in.Output, "script: dkm load failed: %s: %v\n", mod, err)
		}
	}

	return true
}

// parseHookConfig extracts the ordered [Action] entries from an INI-shaped
// module config. The [Trigger] section is informational and never acted
// on. Comments start with '#'.
func parseHookConfig(data []byte) []string {
	var actions []string

	section := ""
	pos := 0

	for pos < len(data) {
		line := strings.TrimSpace(readLine(data, &pos))
		if line == "" || line[0] == '#' {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		if section == "Action" {
			actions = append(actions, line)
		}
	}

	return actions
}

// readLine consumes one line from data, handling \n, \r and the \r\n /
// \n\r pairs. The terminator is not retained.
func readLine(data []byte, pos *int) string {
	if *pos >= len(data) {
		return ""
	}

	out := make([]byte, 0, 64)

	for *pos < len(data) && len(out)+1 < maxLine {
		c := data[*pos]
		*pos++

		if c == '\n' || c == '\r' {
			if *pos < len(data) &&
				((c == '\r' && data[*pos] == '\n') ||
					(c == '\n' && data[*pos] == '\r')) {
				*pos++
			}
			break
		}

		out = append(out, c)
	}

	return string(out)
}
