package ramfs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestStore(t *testing.T) {
	n := neko.Modern(t)

	n.It("round-trips a file through add and get", func(t *testing.T) {
		s := NewStore(8, 8)

		data := []byte("hello kernel")

		err := s.AddFile("/init", data, len(data))
		require.NoError(t, err)

		got, err := s.GetFile("/init")
		require.NoError(t, err)

		require.Equal(t, data, got)
		require.True(t, s.FileExists("/init"))
		require.True(t, s.HasInit())
	})

	n.It("rejects empty paths and sizes", func(t *testing.T) {
		s := NewStore(8, 8)

		require.ErrorIs(t, s.AddFile("", []byte("x"), 1), ErrInvalidArgs)
		require.ErrorIs(t, s.AddFile("/x", nil, 0), ErrInvalidArgs)
		require.ErrorIs(t, s.AddFile("/x", []byte("x"), 0), ErrInvalidArgs)
	})

	n.It("rejects duplicate paths and leaves the table unchanged", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.AddFile("/a", []byte("one"), 3))

		err := s.AddFile("/a", []byte("two"), 3)
		require.ErrorIs(t, err, ErrAlreadyExists)

		got, err := s.GetFile("/a")
		require.NoError(t, err)
		require.Equal(t, []byte("one"), got)
		require.Equal(t, 1, s.FileCount())
	})

	n.It("reports a full file table", func(t *testing.T) {
		s := NewStore(2, 2)

		require.NoError(t, s.AddFile("/a", []byte("a"), 1))
		require.NoError(t, s.AddFile("/b", []byte("b"), 1))

		require.ErrorIs(t, s.AddFile("/c", []byte("c"), 1), ErrTableFull)
	})

	n.It("grows a file in place for the log sink", func(t *testing.T) {
		s := NewStore(8, 8)

		backing := make([]byte, 64)
		copy(backing, "boot")

		require.NoError(t, s.AddFile("/log", backing, 4))
		require.NoError(t, s.SetFileSize("/log", 7))

		copy(backing[4:], "ing")

		got, err := s.GetFile("/log")
		require.NoError(t, err)
		require.Equal(t, []byte("booting"), got)

		require.ErrorIs(t, s.SetFileSize("/log", len(backing)+1), ErrInvalidArgs)
		require.ErrorIs(t, s.SetFileSize("/nope", 1), ErrNotFound)
	})

	n.It("replaces file data in place", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.AddFile("/log", []byte("tiny"), 4))

		bigger := make([]byte, 128)
		copy(bigger, "moved")

		require.NoError(t, s.SetFileData("/log", bigger, 5))

		got, err := s.GetFile("/log")
		require.NoError(t, err)
		require.Equal(t, []byte("moved"), got)

		require.ErrorIs(t, s.SetFileData("/nope", bigger, 5), ErrNotFound)
	})

	n.It("iterates files by table index", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.AddFile("/a", []byte("a"), 1))
		require.NoError(t, s.AddFile("/b", []byte("bb"), 2))

		path, data, ok := s.FileAt(0)
		require.True(t, ok)
		require.Equal(t, "/a", path)
		require.Equal(t, []byte("a"), data)

		path, data, ok = s.FileAt(1)
		require.True(t, ok)
		require.Equal(t, "/b", path)
		require.Equal(t, []byte("bb"), data)

		_, _, ok = s.FileAt(2)
		require.False(t, ok)
	})

	n.Meow()
}

func TestStoreDirs(t *testing.T) {
	n := neko.Modern(t)

	n.It("mkdir is idempotent", func(t *testing.T) {
		s := NewStore(4, 4)

		require.NoError(t, s.Mkdir("/dev"))
		require.NoError(t, s.Mkdir("/dev"))
		require.True(t, s.DirExists("/dev"))
	})

	n.It("mknod is not idempotent", func(t *testing.T) {
		s := NewStore(4, 4)

		require.NoError(t, s.Mknod("/dev/sda", BlockDevice, 8, 0))
		require.ErrorIs(t, s.Mknod("/dev/sda", BlockDevice, 8, 0), ErrAlreadyExists)
	})

	n.It("reports a full directory table", func(t *testing.T) {
		s := NewStore(4, 1)

		require.NoError(t, s.Mkdir("/a"))
		require.ErrorIs(t, s.Mkdir("/b"), ErrDirTableFull)
	})

	n.Meow()
}

func TestStoreEnumeration(t *testing.T) {
	n := neko.Modern(t)

	n.It("enumerates only direct children", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.AddFile("/a", []byte("x"), 1))
		require.NoError(t, s.AddFile("/a/b", []byte("x"), 1))
		require.NoError(t, s.AddFile("/a/b/c", []byte("x"), 1))

		require.Equal(t, 1, s.ListCount("/a"))

		name, ok := s.ListAt("/a", 0)
		require.True(t, ok)
		require.Equal(t, "b", name)

		_, ok = s.ListAt("/a", 1)
		require.False(t, ok)
	})

	n.It("treats any top-level name as a child of root", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.AddFile("/init", []byte("x"), 1))
		require.NoError(t, s.AddFile("/etc/rc", []byte("x"), 1))
		require.NoError(t, s.Mkdir("/dev"))

		require.Equal(t, 2, s.ListCount("/"))

		name, ok := s.ListAt("/", 0)
		require.True(t, ok)
		require.Equal(t, "init", name)

		name, ok = s.ListAt("/", 1)
		require.True(t, ok)
		require.Equal(t, "dev", name)
	})

	n.It("lists files before directories in table order", func(t *testing.T) {
		s := NewStore(8, 8)

		require.NoError(t, s.Mkdir("/a/zdir"))
		require.NoError(t, s.AddFile("/a/bfile", []byte("x"), 1))
		require.NoError(t, s.AddFile("/a/afile", []byte("x"), 1))

		require.Equal(t, 3, s.ListCount("/a"))

		names := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			name, ok := s.ListAt("/a", i)
			require.True(t, ok)
			names = append(names, name)
		}

		require.Equal(t, []string{"bfile", "afile", "zdir"}, names)
	})

	n.Meow()
}
