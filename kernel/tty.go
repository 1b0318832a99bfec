package kernel

import (
	"fmt"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/log"
)

type ttySession struct {
	valid bool
	name  string
}

// ttyTable is the fixed-size session table behind the capability table's
// tty operations. Session 0 is the boot console and always exists.
type ttyTable struct {
	mu sync.Mutex

	sessions []ttySession
	current  uint32
}

func newTtyTable(max int) *ttyTable {
	t := &ttyTable{
		sessions: make([]ttySession, max),
	}

	t.sessions[0] = ttySession{valid: true, name: "tty0"}

	return t
}

func (t *ttyTable) Alloc() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.sessions {
		if t.sessions[i].valid {
			continue
		}

		t.sessions[i] = ttySession{valid: true, name: fmt.Sprintf("tty%d", i)}

		log.L.Debug("tty allocated", "sid", i)

		return uint32(i), true
	}

	return 0, false
}

func (t *ttyTable) Free(sid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// The boot console is never freed.
	if sid == 0 || int(sid) >= len(t.sessions) {
		return
	}

	t.sessions[sid] = ttySession{}

	if t.current == sid {
		t.current = 0
	}
}

func (t *ttyTable) Current() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current
}

func (t *ttyTable) Switch(sid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(sid) >= len(t.sessions) || !t.sessions[sid].valid {
		return
	}

	t.current = sid
}

func (t *ttyTable) Name(sid uint32) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(sid) >= len(t.sessions) || !t.sessions[sid].valid {
		return ""
	}

	return t.sessions[sid].name
}

func (t *ttyTable) Valid(sid uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return int(sid) < len(t.sessions) && t.sessions[sid].valid
}
