package kernel

import (
	"sync"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
)

// LogSink mirrors kernel text output into a ramfs file so loaded code can
// open the path and read back the accumulated log. The backing buffer is
// fixed; writes past the end are dropped. The ramfs entry is created on
// the first write and grown in place afterwards.
type LogSink struct {
	mu sync.Mutex

	store *ramfs.Store

	path    string
	buf     []byte
	pos     int
	active  bool
	created bool
}

func NewLogSink(store *ramfs.Store, size int) *LogSink {
	return &LogSink{
		store: store,
		buf:   make([]byte, size),
	}
}

// Open starts capturing into path, resetting any previous capture.
func (s *LogSink) Open(path string) {
	if path == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.path = path
	s.pos = 0
	s.active = true
	s.created = false

	// Reuse an existing entry by pointing it at our buffer.
	if err := s.store.SetFileData(path, s.buf, 0); err == nil {
		s.created = true
	}

	log.L.Debug("log capture opened", "path", path)
}

// Active reports whether a capture is in progress.
func (s *LogSink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Write appends p to the capture. It never fails; bytes that do not fit
// in the fixed buffer are dropped.
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || len(p) == 0 {
		return len(p), nil
	}

	n := copy(s.buf[s.pos:], p)
	s.pos += n

	if s.pos == 0 {
		return len(p), nil
	}

	if !s.created {
		if err := s.store.AddFile(s.path, s.buf, s.pos); err != nil {
			log.L.Error("cannot create log file", "path", s.path, "error", err)
			return len(p), nil
		}

		s.created = true

		return len(p), nil
	}

	if err := s.store.SetFileSize(s.path, s.pos); err != nil {
		log.L.Error("cannot grow log file", "path", s.path, "error", err)
	}

	return len(p), nil
}

// Close stops capturing. The ramfs file keeps whatever was written.
func (s *LogSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}
