// Package memory models the identity-mapped physical address space that
// loaded binaries are copied into. Regions are sparse: the loader places
// segments at whatever physical address their program header names, and
// nothing validates those addresses against each other.
package memory

import (
	"github.com/pkg/errors"
)

// PageSize is the x86 page granularity regions grow by.
const PageSize = 4096

var ErrInvalidAccess = errors.New("invalid memory access via projection")

type Region struct {
	Start, Size uint32

	linear []byte
}

func (reg *Region) Contains(x uint32) bool {
	if x < reg.Start {
		return false
	}

	if x >= reg.Start+reg.Size {
		return false
	}

	return true
}

func pageRound(sz uint32) uint32 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

// Project returns a writable window over [addr, addr+sz), growing the
// backing storage as needed.
func (reg *Region) Project(addr, sz uint32) []byte {
	offset := addr - reg.Start

	if len(reg.linear) == 0 {
		reg.linear = make([]byte, pageRound(offset+sz))
	}

	if len(reg.linear) < int(offset+sz) {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz]
}

// Space is a sparse collection of regions addressed by physical address.
type Space struct {
	regions []*Region

	nextScratch uint32
	size        uint32
}

// NewSpace builds an empty address space. Scratch placements (raw code
// blobs with no load address of their own) start at 64 KiB.
func NewSpace() *Space {
	return &Space{
		nextScratch: 0x10000,
	}
}

func (s *Space) Size() int {
	return int(s.size)
}

func (s *Space) FindRegion(addr uint32) (*Region, bool) {
	for _, reg := range s.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

// Project returns a window over an existing region.
func (s *Space) Project(addr, sz uint32) ([]byte, error) {
	reg, ok := s.FindRegion(addr)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidAccess, "address=%#x size=%#x", addr, sz)
	}

	return reg.Project(addr, sz), nil
}

// NewRegion carves out [addr, addr+size). Asking for an address inside or
// exactly at the end of an existing region grows that region to fit
// instead of overlapping it, and any region the result now touches is
// folded in, so byte-adjacent placements stay readable across the seam.
func (s *Space) NewRegion(addr, size uint32) *Region {
	reg, ok := s.FindRegion(addr)
	if !ok {
		for _, r := range s.regions {
			if r.Start+r.Size == addr {
				reg, ok = r, true
				break
			}
		}
	}

	if !ok {
		reg = &Region{
			Start: addr,
			Size:  size,
		}

		s.regions = append(s.regions, reg)
	} else if addr+size > reg.Start+reg.Size {
		reg.Size = addr + size - reg.Start
	}

	s.coalesce(reg)

	s.size = 0
	for _, r := range s.regions {
		s.size += r.Size
	}

	if reg.Contains(s.nextScratch) {
		s.nextScratch = pageRound(reg.Start + reg.Size)
	}

	return reg
}

// coalesce folds every region that starts inside reg or exactly at its
// end into reg, carrying the folded region's bytes over.
func (s *Space) coalesce(reg *Region) {
	for {
		var next *Region

		for _, r := range s.regions {
			if r != reg && r.Start >= reg.Start && r.Start <= reg.Start+reg.Size {
				next = r
				break
			}
		}

		if next == nil {
			return
		}

		if next.Start+next.Size > reg.Start+reg.Size {
			reg.Size = next.Start + next.Size - reg.Start
		}

		if next.Size > 0 && len(next.linear) > 0 {
			n := next.Size
			if uint32(len(next.linear)) < n {
				n = uint32(len(next.linear))
			}

			copy(reg.Project(next.Start, n), next.linear[:n])
		}

		kept := s.regions[:0]
		for _, r := range s.regions {
			if r != next {
				kept = append(kept, r)
			}
		}

		s.regions = kept
	}
}

// Reserve allocates a scratch base address for images that carry no load
// address of their own.
func (s *Space) Reserve(size uint32) uint32 {
	base := s.nextScratch
	s.nextScratch += pageRound(size)

	return base
}

// Place copies data to addr, creating or growing a region to fit.
func (s *Space) Place(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}

	reg := s.NewRegion(addr, uint32(len(data)))

	copy(reg.Project(addr, uint32(len(data))), data)
}

// Zero clears [addr, addr+n), creating or growing a region to fit.
func (s *Space) Zero(addr, n uint32) {
	if n == 0 {
		return
	}

	reg := s.NewRegion(addr, n)

	window := reg.Project(addr, n)
	for i := range window {
		window[i] = 0
	}
}

// Bytes returns a copy of [addr, addr+n).
func (s *Space) Bytes(addr, n uint32) ([]byte, error) {
	window, err := s.Project(addr, n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, window)

	return out, nil
}
