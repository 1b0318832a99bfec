package elf

import (
	"encoding/binary"
	"testing"

	"github.com/OpenArc-1/Ark-sub001/elf/elftest"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestDecode(t *testing.T) {
	n := neko.Modern(t)

	n.It("rejects buffers without the magic", func(t *testing.T) {
		_, err := Decode([]byte{0x90, 0x90, 0x90, 0x90, 0x90})
		require.ErrorIs(t, err, ErrNotELF)

		require.False(t, IsELF([]byte{0x90, 0x90}))
	})

	n.It("rejects a magic-only truncated header", func(t *testing.T) {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf, Magic)

		require.True(t, IsELF(buf))

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.It("decodes entry and load segments", func(t *testing.T) {
		img := elftest.Image{
			Entry: 0x1000,
			Segments: []elftest.Segment{
				{Type: PTLoad, Addr: 0x1000, Data: []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3}},
			},
		}

		decoded, err := Decode(img.Bytes())
		require.NoError(t, err)

		require.Equal(t, uint32(0x1000), decoded.Header.Entry)
		require.Len(t, decoded.Progs, 1)

		ph := decoded.Progs[0]
		require.Equal(t, uint32(PTLoad), ph.Type)
		require.Equal(t, uint32(0x1000), ph.Paddr)
		require.Equal(t, uint32(6), ph.FileSize)
		require.Equal(t, []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3}, decoded.SegmentBytes(ph))
	})

	n.It("rejects a program-header table past the end of the image", func(t *testing.T) {
		img := elftest.Image{
			Segments: []elftest.Segment{
				{Type: PTLoad, Addr: 0x1000, Data: []byte{0xC3}},
			},
		}

		buf := img.Bytes()
		binary.LittleEndian.PutUint16(buf[0x2C:], 40) // phnum far beyond the image

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.It("rejects a load segment whose bytes exceed the image", func(t *testing.T) {
		img := elftest.Image{
			Segments: []elftest.Segment{
				{Type: PTLoad, Addr: 0x1000, Data: []byte{0xC3, 0xC3}},
			},
		}

		buf := img.Bytes()
		// Inflate filesz in the first program header.
		binary.LittleEndian.PutUint32(buf[52+16:], 0xFFFF)

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.It("rejects memsz smaller than filesz", func(t *testing.T) {
		img := elftest.Image{
			Segments: []elftest.Segment{
				{Type: PTLoad, Addr: 0x1000, Data: []byte{0xC3, 0xC3}},
			},
		}

		buf := img.Bytes()
		binary.LittleEndian.PutUint32(buf[52+20:], 1) // memsz below filesz

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.It("rejects a section-header table past the end of the image", func(t *testing.T) {
		img := elftest.Image{
			Sections: []elftest.Section{
				{Name: ".vendor_mod", Data: []byte("driver")},
			},
		}

		buf := img.Bytes()
		binary.LittleEndian.PutUint16(buf[0x30:], 200) // shnum beyond the image

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.It("rejects a bad section-name table index", func(t *testing.T) {
		img := elftest.Image{
			Sections: []elftest.Section{
				{Name: ".vendor_mod", Data: []byte("driver")},
			},
		}

		buf := img.Bytes()
		binary.LittleEndian.PutUint16(buf[0x32:], 99)

		_, err := Decode(buf)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	n.Meow()
}

func TestSections(t *testing.T) {
	n := neko.Modern(t)

	n.It("finds named sections and their raw bytes", func(t *testing.T) {
		img := elftest.Image{
			Sections: []elftest.Section{
				{Name: ".vendor_mod", Data: []byte("e1000")},
				{Name: ".vendor_ver", Data: []byte("2.1")},
			},
		}

		decoded, err := Decode(img.Bytes())
		require.NoError(t, err)

		mod, ok := decoded.SectionByName(".vendor_mod")
		require.True(t, ok)
		require.Equal(t, []byte("e1000"), mod)

		ver, ok := decoded.SectionByName(".vendor_ver")
		require.True(t, ok)
		require.Equal(t, []byte("2.1"), ver)

		_, ok = decoded.SectionByName(".missing")
		require.False(t, ok)
	})

	n.It("skips sections whose contents fall outside the image", func(t *testing.T) {
		img := elftest.Image{
			Sections: []elftest.Section{
				{Name: ".vendor_mod", Data: []byte("e1000")},
			},
		}

		buf := img.Bytes()

		decoded, err := Decode(buf)
		require.NoError(t, err)

		// Push the first section's offset out of range; the lookup must
		// skip it rather than read out of bounds.
		shoff := binary.LittleEndian.Uint32(buf[0x20:])
		binary.LittleEndian.PutUint32(buf[shoff+16:], uint32(len(buf)))

		decoded, err = Decode(buf)
		require.NoError(t, err)

		_, ok := decoded.SectionByName(".vendor_mod")
		require.False(t, ok)
	})

	n.It("handles images without a section table", func(t *testing.T) {
		img := elftest.Image{
			Segments: []elftest.Segment{
				{Type: PTLoad, Addr: 0x1000, Data: []byte{0xC3}},
			},
		}

		decoded, err := Decode(img.Bytes())
		require.NoError(t, err)

		require.Empty(t, decoded.Sections)

		_, ok := decoded.SectionByName(".vendor_mod")
		require.False(t, ok)
	})

	n.Meow()
}
