// Package elf decodes 32-bit little-endian ELF images into typed views.
//
// Every offset and length taken from the image is validated against the
// buffer bound before it is dereferenced. Segment *addresses* are
// deliberately not validated: the loader uses them as absolute physical
// destinations under the kernel's identity-mapped execution model, and an
// inconsistent program header will corrupt memory exactly as it does on
// the real machine.
package elf

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic is the ELF32 magic read as a little-endian word: 0x7F 'E' 'L' 'F'.
const Magic = 0x464C457F

const (
	headerSize    = 52
	progEntrySize = 32
	sectEntrySize = 40
)

// PTLoad marks a program header whose segment must be copied into memory.
const PTLoad = 1

var (
	ErrNotELF        = errors.New("not an ELF image")
	ErrInvalidFormat = errors.New("invalid ELF format")
)

// Header is the decoded ELF32 file header.
type Header struct {
	Type    uint16
	Machine uint16
	Entry   uint32
	PhOff   uint32
	ShOff   uint32
	Flags   uint32
	PhNum   uint16
	ShNum   uint16
	ShStrNd uint16
}

// ProgHeader is one decoded program-header entry.
type ProgHeader struct {
	Type     uint32
	Offset   uint32
	Vaddr    uint32
	Paddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

// SectionHeader is one decoded section-header entry.
type SectionHeader struct {
	NameOff uint32
	Type    uint32
	Flags   uint32
	Addr    uint32
	Offset  uint32
	Size    uint32
}

// Image is a validated view over an ELF32 buffer. It does not copy the
// underlying bytes.
type Image struct {
	Header   Header
	Progs    []ProgHeader
	Sections []SectionHeader

	data  []byte
	names []byte
}

// IsELF reports whether buf begins with the ELF32 magic word.
func IsELF(buf []byte) bool {
	return len(buf) >= 4 && binary.LittleEndian.Uint32(buf) == Magic
}

// Decode parses buf as an ELF32 image. The header, the program-header
// table and the section-header table must lie fully inside buf; a
// truncated or inconsistent table is a hard error.
func Decode(buf []byte) (*Image, error) {
	if !IsELF(buf) {
		return nil, ErrNotELF
	}

	if len(buf) < headerSize {
		return nil, errors.Wrapf(ErrInvalidFormat, "image too short for header: %d bytes", len(buf))
	}

	le := binary.LittleEndian

	img := &Image{
		Header: Header{
			Type:    le.Uint16(buf[0x10:]),
			Machine: le.Uint16(buf[0x12:]),
			Entry:   le.Uint32(buf[0x18:]),
			PhOff:   le.Uint32(buf[0x1C:]),
			ShOff:   le.Uint32(buf[0x20:]),
			Flags:   le.Uint32(buf[0x24:]),
			PhNum:   le.Uint16(buf[0x2C:]),
			ShNum:   le.Uint16(buf[0x30:]),
			ShStrNd: le.Uint16(buf[0x32:]),
		},
		data: buf,
	}

	if err := img.decodeProgs(); err != nil {
		return nil, err
	}

	if err := img.decodeSections(); err != nil {
		return nil, err
	}

	return img, nil
}

func (img *Image) decodeProgs() error {
	h := img.Header

	if h.PhNum == 0 {
		return nil
	}

	end := uint64(h.PhOff) + uint64(h.PhNum)*progEntrySize
	if end > uint64(len(img.data)) {
		return errors.Wrapf(ErrInvalidFormat, "program-header table out of bounds: off=%#x num=%d", h.PhOff, h.PhNum)
	}

	le := binary.LittleEndian

	img.Progs = make([]ProgHeader, h.PhNum)

	for i := range img.Progs {
		ent := img.data[int(h.PhOff)+i*progEntrySize:]

		ph := ProgHeader{
			Type:     le.Uint32(ent),
			Offset:   le.Uint32(ent[4:]),
			Vaddr:    le.Uint32(ent[8:]),
			Paddr:    le.Uint32(ent[12:]),
			FileSize: le.Uint32(ent[16:]),
			MemSize:  le.Uint32(ent[20:]),
			Flags:    le.Uint32(ent[24:]),
			Align:    le.Uint32(ent[28:]),
		}

		if ph.Type == PTLoad {
			if uint64(ph.Offset)+uint64(ph.FileSize) > uint64(len(img.data)) {
				return errors.Wrapf(ErrInvalidFormat, "segment %d exceeds image: off=%#x filesz=%#x", i, ph.Offset, ph.FileSize)
			}

			if ph.MemSize < ph.FileSize {
				return errors.Wrapf(ErrInvalidFormat, "segment %d memsz %#x < filesz %#x", i, ph.MemSize, ph.FileSize)
			}
		}

		img.Progs[i] = ph
	}

	return nil
}

func (img *Image) decodeSections() error {
	h := img.Header

	if h.ShOff == 0 || h.ShNum == 0 {
		return nil
	}

	end := uint64(h.ShOff) + uint64(h.ShNum)*sectEntrySize
	if end > uint64(len(img.data)) {
		return errors.Wrapf(ErrInvalidFormat, "section-header table out of bounds: off=%#x num=%d", h.ShOff, h.ShNum)
	}

	le := binary.LittleEndian

	img.Sections = make([]SectionHeader, h.ShNum)

	for i := range img.Sections {
		ent := img.data[int(h.ShOff)+i*sectEntrySize:]

		img.Sections[i] = SectionHeader{
			NameOff: le.Uint32(ent),
			Type:    le.Uint32(ent[4:]),
			Flags:   le.Uint32(ent[8:]),
			Addr:    le.Uint32(ent[12:]),
			Offset:  le.Uint32(ent[16:]),
			Size:    le.Uint32(ent[20:]),
		}
	}

	if int(h.ShStrNd) >= len(img.Sections) {
		return errors.Wrapf(ErrInvalidFormat, "section name table index %d out of range", h.ShStrNd)
	}

	strs := img.Sections[h.ShStrNd]

	if uint64(strs.Offset)+uint64(strs.Size) > uint64(len(img.data)) {
		return errors.Wrapf(ErrInvalidFormat, "section name table out of bounds: off=%#x size=%#x", strs.Offset, strs.Size)
	}

	img.names = img.data[strs.Offset : strs.Offset+strs.Size]

	return nil
}

// SectionName returns the NUL-terminated name of sh from the section name
// table.
func (img *Image) SectionName(sh SectionHeader) string {
	if int(sh.NameOff) >= len(img.names) {
		return ""
	}

	name := img.names[sh.NameOff:]

	for i, c := range name {
		if c == 0 {
			return string(name[:i])
		}
	}

	return string(name)
}

// SectionByName returns the raw contents of the first section with the
// given name. Sections whose contents fall outside the image are skipped,
// not treated as errors; the contents are not necessarily NUL-terminated.
func (img *Image) SectionByName(name string) ([]byte, bool) {
	for _, sh := range img.Sections {
		if img.SectionName(sh) != name {
			continue
		}

		if uint64(sh.Offset)+uint64(sh.Size) > uint64(len(img.data)) {
			continue
		}

		return img.data[sh.Offset : sh.Offset+sh.Size], true
	}

	return nil, false
}

// SegmentBytes returns the file-backed bytes of a LOAD segment.
func (img *Image) SegmentBytes(ph ProgHeader) []byte {
	return img.data[ph.Offset : ph.Offset+ph.FileSize]
}
