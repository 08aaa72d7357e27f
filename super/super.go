// Package super describes the on-disk layout: the superblock at block 0,
// the inode and data bitmaps, the inode table and the data region.
package super

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-tinyfs/addr"
	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/util"
)

var (
	ErrTooSmall = errors.New("super: disk too small for layout")
	ErrLimits   = errors.New("super: inode or data limit out of range")
)

// SUPERSZ is the encoded size of FsSuper; the rest of block 0 is zero.
const SUPERSZ uint64 = 7 * 8

type FsSuper struct {
	Magic   uint64
	MaxInum uint64
	MaxDnum uint64
	IBitmap common.Bnum
	DBitmap common.Bnum
	IStart  common.Bnum
	DStart  common.Bnum
}

// MkFsSuper computes a layout for a disk of diskBlocks blocks holding up to
// maxInum inodes. The data region follows the inode table and holds the
// lesser of maxDnum and the remaining blocks.
func MkFsSuper(diskBlocks uint64, maxInum uint64, maxDnum uint64) (*FsSuper, error) {
	if maxInum == 0 || maxInum > common.NBITBLOCK || maxDnum == 0 || maxDnum > common.NBITBLOCK {
		return nil, fmt.Errorf("max inodes %d, max data blocks %d: %w",
			maxInum, maxDnum, ErrLimits)
	}
	ninodeblk := util.RoundUp(maxInum, common.INODEBLK)
	dstart := common.INODESTART + ninodeblk
	// need at least one data block for the root directory
	if diskBlocks < dstart+1 {
		return nil, fmt.Errorf("%d blocks, need %d: %w", diskBlocks, dstart+1, ErrTooSmall)
	}
	return &FsSuper{
		Magic:   common.MAGIC,
		MaxInum: maxInum,
		MaxDnum: util.Min(diskBlocks-dstart, maxDnum),
		IBitmap: common.IBITMAP,
		DBitmap: common.DBITMAP,
		IStart:  common.INODESTART,
		DStart:  dstart,
	}, nil
}

func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(fs.Magic)
	enc.PutInt(fs.MaxInum)
	enc.PutInt(fs.MaxDnum)
	enc.PutInt(fs.IBitmap)
	enc.PutInt(fs.DBitmap)
	enc.PutInt(fs.IStart)
	enc.PutInt(fs.DStart)
	return enc.Finish()
}

func Decode(b disk.Block) *FsSuper {
	dec := marshal.NewDec(b)
	fs := &FsSuper{}
	fs.Magic = dec.GetInt()
	fs.MaxInum = dec.GetInt()
	fs.MaxDnum = dec.GetInt()
	fs.IBitmap = dec.GetInt()
	fs.DBitmap = dec.GetInt()
	fs.IStart = dec.GetInt()
	fs.DStart = dec.GetInt()
	return fs
}

func (fs *FsSuper) NInodeBlk() uint64 {
	return util.RoundUp(fs.MaxInum, common.INODEBLK)
}

func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkObjAddr(fs.IStart, uint64(inum), common.INODESZ)
}

// DataBnum converts a data-bitmap index into an absolute block number.
func (fs *FsSuper) DataBnum(idx uint64) common.Bnum {
	return fs.DStart + common.Bnum(idx)
}

func (fs *FsSuper) InDataRegion(bn common.Bnum) bool {
	return bn >= fs.DStart && bn < fs.DStart+fs.MaxDnum
}

// Valid reports whether a decoded superblock describes a usable layout on a
// disk of diskBlocks blocks.
func (fs *FsSuper) Valid(diskBlocks uint64) bool {
	if fs.Magic != common.MAGIC {
		return false
	}
	if fs.MaxInum == 0 || fs.MaxInum > common.NBITBLOCK || fs.MaxDnum > common.NBITBLOCK {
		return false
	}
	if fs.IBitmap == common.SUPERBLK || fs.DBitmap == common.SUPERBLK || fs.IStart == common.SUPERBLK {
		return false
	}
	if fs.IStart+fs.NInodeBlk() > fs.DStart {
		return false
	}
	return fs.DStart+fs.MaxDnum <= diskBlocks
}
