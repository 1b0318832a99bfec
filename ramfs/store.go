package ramfs

import (
	"strings"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/pkg/errors"
)

var (
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrTableFull     = errors.New("file table full")
	ErrDirTableFull  = errors.New("directory table full")
	ErrAlreadyExists = errors.New("file already exists")
	ErrNotFound      = errors.New("unknown path")
)

// NodeKind enumerates the directory-table entry kinds.
type NodeKind int

const (
	// Dir is a plain directory.
	Dir NodeKind = iota

	// BlockDevice is a block device node (e.g. sda).
	BlockDevice

	// CharDevice is a character device node (e.g. kbd, nic).
	CharDevice
)

func (k NodeKind) String() string {
	switch k {
	case Dir:
		return "directory"
	case BlockDevice:
		return "block-device"
	case CharDevice:
		return "character-device"
	default:
		return "unknown"
	}
}

type file struct {
	path  string
	data  []byte
	size  int
	valid bool
}

type dirent struct {
	path  string
	kind  NodeKind
	major uint32
	minor uint32
	valid bool
}

// Store is the in-memory file and directory store. Files are handed to it
// by the boot loader (initramfs unpacking) and owned by it afterwards. All
// tables are fixed capacity and never resize.
type Store struct {
	mu sync.Mutex

	files []file
	dirs  []dirent

	fileCount int
	dirCount  int

	mounted bool
}

// NewStore builds a Store with the given table capacities.
func NewStore(maxFiles, maxDirs int) *Store {
	return &Store{
		files: make([]file, maxFiles),
		dirs:  make([]dirent, maxDirs),
	}
}

// Prepare marks the store ready for boot-loader population without
// clearing files that are already present.
func (s *Store) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mounted = false

	log.L.Debug("ramfs prepared for population", "files", s.fileCount)
}

// Mount attaches the store as the root filesystem. Mounting twice is
// harmless.
func (s *Store) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		log.L.Debug("ramfs already mounted")
		return
	}

	s.mounted = true

	log.L.Info("ramfs root filesystem mounted", "files", s.fileCount)
}

// AddFile stores a new file. The store takes ownership of data; size may be
// smaller than len(data) when the caller keeps a larger backing buffer (the
// kernel log sink does this).
func (s *Store) AddFile(path string, data []byte, size int) error {
	if path == "" || size <= 0 || len(data) == 0 || size > len(data) {
		return errors.Wrapf(ErrInvalidArgs, "path=%q size=%d", path, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(path) != nil {
		return errors.Wrapf(ErrAlreadyExists, "path=%q", path)
	}

	if s.fileCount >= len(s.files) {
		return errors.Wrapf(ErrTableFull, "path=%q", path)
	}

	s.files[s.fileCount] = file{
		path:  path,
		data:  data,
		size:  size,
		valid: true,
	}
	s.fileCount++

	log.L.Debug("ramfs file added", "path", path, "size", size)

	return nil
}

// FileExists reports whether path names a stored file.
func (s *Store) FileExists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(path) != nil
}

// GetFile returns the stored bytes for path, truncated to the recorded
// size.
func (s *Store) GetFile(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.lookup(path)
	if f == nil {
		return nil, errors.Wrapf(ErrNotFound, "path=%q", path)
	}

	return f.data[:f.size], nil
}

// SetFileSize adjusts the recorded size of an existing file. The caller is
// responsible for the backing buffer being large enough; only metadata
// changes here.
func (s *Store) SetFileSize(path string, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.lookup(path)
	if f == nil {
		return errors.Wrapf(ErrNotFound, "path=%q", path)
	}

	if size < 0 || size > len(f.data) {
		return errors.Wrapf(ErrInvalidArgs, "path=%q size=%d backing=%d", path, size, len(f.data))
	}

	f.size = size

	return nil
}

// SetFileData replaces the backing buffer and size of an existing file.
func (s *Store) SetFileData(path string, data []byte, size int) error {
	if size < 0 || size > len(data) {
		return errors.Wrapf(ErrInvalidArgs, "path=%q size=%d", path, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.lookup(path)
	if f == nil {
		return errors.Wrapf(ErrNotFound, "path=%q", path)
	}

	f.data = data
	f.size = size

	return nil
}

// Mkdir records a directory. Creating a directory that already exists
// succeeds.
func (s *Store) Mkdir(path string) error {
	if path == "" {
		return ErrInvalidArgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupDir(path) != nil {
		return nil
	}

	return s.addDirent(dirent{path: path, kind: Dir, valid: true})
}

// Mknod records a device node. Unlike Mkdir this is not idempotent.
func (s *Store) Mknod(path string, kind NodeKind, major, minor uint32) error {
	if path == "" {
		return ErrInvalidArgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupDir(path) != nil {
		return errors.Wrapf(ErrAlreadyExists, "path=%q", path)
	}

	return s.addDirent(dirent{path: path, kind: kind, major: major, minor: minor, valid: true})
}

// DirExists reports whether path names a directory or device node.
func (s *Store) DirExists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookupDir(path) != nil
}

// FileCount returns the number of stored files.
func (s *Store) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fileCount
}

// FileAt returns the path and contents of the file at the given table
// index, for iteration.
func (s *Store) FileAt(index int) (string, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= s.fileCount {
		return "", nil, false
	}

	f := &s.files[index]
	if !f.valid {
		return "", nil, false
	}

	return f.path, f.data[:f.size], true
}

// HasInit reports whether the boot loader delivered an /init file.
func (s *Store) HasInit() bool {
	return s.FileExists("/init")
}

// GetInit returns the /init file contents.
func (s *Store) GetInit() ([]byte, error) {
	return s.GetFile("/init")
}

// ListCount returns how many direct children parent has, counting both
// files and directory/device entries.
func (s *Store) ListCount(parent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for i := 0; i < s.fileCount; i++ {
		if _, ok := directChild(parent, s.files[i].path); ok {
			n++
		}
	}

	for i := 0; i < s.dirCount; i++ {
		if _, ok := directChild(parent, s.dirs[i].path); ok {
			n++
		}
	}

	return n
}

// ListAt returns the basename of the index-th direct child of parent.
// Files come first in table order, then directory entries.
func (s *Store) ListAt(parent string, index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.fileCount; i++ {
		name, ok := directChild(parent, s.files[i].path)
		if !ok {
			continue
		}
		if index == 0 {
			return name, true
		}
		index--
	}

	for i := 0; i < s.dirCount; i++ {
		name, ok := directChild(parent, s.dirs[i].path)
		if !ok {
			continue
		}
		if index == 0 {
			return name, true
		}
		index--
	}

	return "", false
}

func (s *Store) lookup(path string) *file {
	for i := 0; i < s.fileCount; i++ {
		if s.files[i].valid && s.files[i].path == path {
			return &s.files[i]
		}
	}

	return nil
}

func (s *Store) lookupDir(path string) *dirent {
	for i := 0; i < s.dirCount; i++ {
		if s.dirs[i].valid && s.dirs[i].path == path {
			return &s.dirs[i]
		}
	}

	return nil
}

func (s *Store) addDirent(d dirent) error {
	if s.dirCount >= len(s.dirs) {
		return errors.Wrapf(ErrDirTableFull, "path=%q", d.path)
	}

	s.dirs[s.dirCount] = d
	s.dirCount++

	return nil
}

// directChild reports whether path is exactly one segment below parent and
// returns that final segment. The root directory is special-cased: every
// single-segment path is its direct child.
func directChild(parent, path string) (string, bool) {
	if parent == "/" {
		rest := strings.TrimPrefix(path, "/")
		if rest == "" || rest == path || strings.Contains(rest, "/") {
			return "", false
		}
		return rest, true
	}

	prefix := parent
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path || strings.Contains(rest, "/") {
		return "", false
	}

	return rest, true
}
