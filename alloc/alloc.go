package alloc

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-tinyfs/addr"
	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/util"
)

var ErrFull = errors.New("alloc: no free bit")

// Alloc hands out numbers from a single bitmap block. Bit i corresponds to
// number base+i. The lowest free bit always wins, so allocation order is
// deterministic.
//
// Bits are never cleared, so every bit below next is known to be set and the
// scan can start there without changing which bit is chosen.
type Alloc struct {
	d    disk.Disk
	bmap common.Bnum
	max  uint64
	base uint64
	next uint64 // first number to try
}

func MkAlloc(d disk.Disk, bmap common.Bnum, max uint64, base uint64) *Alloc {
	if max > common.NBITBLOCK {
		panic("MkAlloc")
	}
	a := &Alloc{
		d:    d,
		bmap: bmap,
		max:  max,
		base: base,
		next: 0,
	}
	return a
}

func BitIsSet(blk []byte, n uint64) bool {
	return blk[n/8]&(1<<(n%8)) != 0
}

func SetBit(blk []byte, n uint64) {
	blk[n/8] = blk[n/8] | (1 << (n % 8))
}

func popCnt(b byte) uint64 {
	var n uint64
	for b != 0 {
		n += uint64(b & 1)
		b = b >> 1
	}
	return n
}

// AllocNum finds the first zero bit, sets it, writes the bitmap block back
// and returns the corresponding number.
func (a *Alloc) AllocNum() (uint64, error) {
	blk, err := a.d.Read(a.bmap)
	if err != nil {
		return 0, err
	}
	for i := a.next; i < a.max; i++ {
		if BitIsSet(blk, i) {
			continue
		}
		SetBit(blk, i)
		if err := a.d.Write(a.bmap, blk); err != nil {
			return 0, err
		}
		a.next = i + 1
		util.DPrintf(5, "AllocNum: bmap %d bit %d -> %d\n", a.bmap, i, a.base+i)
		return a.base + i, nil
	}
	a.next = a.max
	return 0, fmt.Errorf("bitmap %d (%d bits): %w", a.bmap, a.max, ErrFull)
}

func (a *Alloc) index(num uint64) uint64 {
	if num < a.base || num-a.base >= a.max {
		panic(fmt.Errorf("alloc: %d outside [%d, %d)", num, a.base, a.base+a.max))
	}
	return num - a.base
}

// bit reads the bitmap block holding num and returns it with num's bit
// offset in that block.
func (a *Alloc) bit(num uint64) (disk.Block, uint64, error) {
	ba := addr.MkBitAddr(a.bmap, a.index(num))
	if ba.Blkno != a.bmap {
		panic("alloc: bit outside bitmap block")
	}
	blk, err := a.d.Read(ba.Blkno)
	if err != nil {
		return nil, 0, err
	}
	return blk, ba.Off, nil
}

// MarkUsed sets the bit for num without searching.
func (a *Alloc) MarkUsed(num uint64) error {
	blk, off, err := a.bit(num)
	if err != nil {
		return err
	}
	SetBit(blk, off)
	util.DPrintf(5, "MarkUsed: bmap %d bit %d\n", a.bmap, off)
	return a.d.Write(a.bmap, blk)
}

func (a *Alloc) IsUsed(num uint64) (bool, error) {
	blk, off, err := a.bit(num)
	if err != nil {
		return false, err
	}
	return BitIsSet(blk, off), nil
}

// NumFree counts clear bits among the first max.
func (a *Alloc) NumFree() (uint64, error) {
	blk, err := a.d.Read(a.bmap)
	if err != nil {
		return 0, err
	}
	var used uint64
	for i := uint64(0); i < a.max/8; i++ {
		used += popCnt(blk[i])
	}
	for i := (a.max / 8) * 8; i < a.max; i++ {
		if BitIsSet(blk, i) {
			used++
		}
	}
	return a.max - used, nil
}

func (a *Alloc) Max() uint64 {
	return a.max
}
