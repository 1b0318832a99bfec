// Package elftest constructs small ELF32 images for tests.
package elftest

import "encoding/binary"

const (
	headerSize    = 52
	progEntrySize = 32
	sectEntrySize = 40
)

// Segment describes one program-header entry to emit.
type Segment struct {
	Type uint32
	Addr uint32
	Data []byte

	// MemSize defaults to len(Data) when zero. Setting it larger asks the
	// loader to zero the tail (BSS).
	MemSize uint32
}

// Section describes one named section to emit.
type Section struct {
	Name string
	Data []byte
}

// Image describes an ELF32 image to build.
type Image struct {
	Entry    uint32
	Segments []Segment
	Sections []Section
}

// Bytes serializes the image. Layout: header, program headers, segment
// data, section data, section name table, section headers.
func (im Image) Bytes() []byte {
	le := binary.LittleEndian

	off := headerSize + len(im.Segments)*progEntrySize

	segOffsets := make([]int, len(im.Segments))
	for i, seg := range im.Segments {
		segOffsets[i] = off
		off += len(seg.Data)
	}

	sectOffsets := make([]int, len(im.Sections))
	for i, sect := range im.Sections {
		sectOffsets[i] = off
		off += len(sect.Data)
	}

	// Section name table: leading NUL, then each name NUL-terminated,
	// ".shstrtab" last.
	var names []byte
	var shnum, shstrndx int
	var nameOffsets []int
	var strtabOff, strtabNameOff int

	if len(im.Sections) > 0 {
		names = append(names, 0)
		nameOffsets = make([]int, len(im.Sections))
		for i, sect := range im.Sections {
			nameOffsets[i] = len(names)
			names = append(names, sect.Name...)
			names = append(names, 0)
		}
		strtabNameOff = len(names)
		names = append(names, ".shstrtab"...)
		names = append(names, 0)

		strtabOff = off
		off += len(names)

		shnum = len(im.Sections) + 1
		shstrndx = len(im.Sections)
	}

	shoff := 0
	if shnum > 0 {
		shoff = off
		off += shnum * sectEntrySize
	}

	buf := make([]byte, off)

	// File header.
	le.PutUint32(buf, 0x464C457F)
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // little endian
	buf[6] = 1
	le.PutUint16(buf[0x10:], 2) // ET_EXEC
	le.PutUint16(buf[0x12:], 3) // EM_386
	le.PutUint32(buf[0x14:], 1)
	le.PutUint32(buf[0x18:], im.Entry)
	if len(im.Segments) > 0 {
		le.PutUint32(buf[0x1C:], headerSize)
	}
	le.PutUint32(buf[0x20:], uint32(shoff))
	le.PutUint16(buf[0x28:], headerSize)
	le.PutUint16(buf[0x2A:], progEntrySize)
	le.PutUint16(buf[0x2C:], uint16(len(im.Segments)))
	le.PutUint16(buf[0x2E:], sectEntrySize)
	le.PutUint16(buf[0x30:], uint16(shnum))
	le.PutUint16(buf[0x32:], uint16(shstrndx))

	// Program headers and segment bytes.
	for i, seg := range im.Segments {
		ent := buf[headerSize+i*progEntrySize:]

		memsz := seg.MemSize
		if memsz == 0 {
			memsz = uint32(len(seg.Data))
		}

		le.PutUint32(ent, seg.Type)
		le.PutUint32(ent[4:], uint32(segOffsets[i]))
		le.PutUint32(ent[8:], seg.Addr)
		le.PutUint32(ent[12:], seg.Addr)
		le.PutUint32(ent[16:], uint32(len(seg.Data)))
		le.PutUint32(ent[20:], memsz)
		le.PutUint32(ent[24:], 7)
		le.PutUint32(ent[28:], 4)

		copy(buf[segOffsets[i]:], seg.Data)
	}

	if shnum == 0 {
		return buf
	}

	// Section bytes, name table, section headers.
	for i, sect := range im.Sections {
		copy(buf[sectOffsets[i]:], sect.Data)
	}

	copy(buf[strtabOff:], names)

	for i, sect := range im.Sections {
		ent := buf[shoff+i*sectEntrySize:]

		le.PutUint32(ent, uint32(nameOffsets[i]))
		le.PutUint32(ent[4:], 1) // SHT_PROGBITS
		le.PutUint32(ent[16:], uint32(sectOffsets[i]))
		le.PutUint32(ent[20:], uint32(len(sect.Data)))
	}

	ent := buf[shoff+shstrndx*sectEntrySize:]
	le.PutUint32(ent, uint32(strtabNameOff))
	le.PutUint32(ent[4:], 3) // SHT_STRTAB
	le.PutUint32(ent[16:], uint32(strtabOff))
	le.PutUint32(ent[20:], uint32(len(names)))

	return buf
}
