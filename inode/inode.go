package inode

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/super"
	"github.com/mit-pdos/go-tinyfs/util"
)

var (
	ErrRange = errors.New("inode: inode number out of range")
	ErrFBig  = errors.New("inode: file too large")
)

// Inode is the in-memory copy of an on-disk inode record.
//
// Direct[i] == NULLBNUM means file block i is unallocated; block 0 holds the
// superblock, so it is never a data block.
type Inode struct {
	Inum    common.Inum
	Valid   bool
	Kind    common.Kind
	Nlink   uint64
	Size    uint64
	PtrKind uint64
	Direct  [common.NDIRECT]common.Bnum
	Mode    uint32
	Atime   uint64
	Mtime   uint64
}

// MkInode returns a fresh, valid inode of kind with no data blocks.
func MkInode(inum common.Inum, kind common.Kind, now uint64) *Inode {
	ip := &Inode{
		Inum:    inum,
		Valid:   true,
		Kind:    kind,
		PtrKind: common.PTR_DIRECT,
		Atime:   now,
		Mtime:   now,
	}
	if kind == common.KIND_DIR {
		ip.Nlink = 2
		ip.Mode = common.DIRMODE
	} else {
		ip.Nlink = 1
		ip.Mode = common.FILEMODE
	}
	return ip
}

func (ip *Inode) IsDir() bool {
	return ip.Kind == common.KIND_DIR
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d v %v k %v sz %d", ip.Inum, ip.Valid, ip.Kind, ip.Size)
}

// NBlocks counts allocated direct pointers.
func (ip *Inode) NBlocks() uint64 {
	var n uint64
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			n++
		}
	}
	return n
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Inum))
	enc.PutInt(b2u(ip.Valid))
	enc.PutInt(uint64(ip.Kind))
	enc.PutInt(ip.Nlink)
	enc.PutInt(ip.Size)
	enc.PutInt(ip.PtrKind)
	for _, bn := range ip.Direct {
		enc.PutInt(bn)
	}
	enc.PutInt(uint64(ip.Mode))
	enc.PutInt(ip.Atime)
	enc.PutInt(ip.Mtime)
	return enc.Finish()
}

func Decode(buf []byte) *Inode {
	ip := &Inode{}
	dec := marshal.NewDec(buf)
	ip.Inum = common.Inum(dec.GetInt())
	ip.Valid = dec.GetInt() != 0
	ip.Kind = common.Kind(dec.GetInt())
	ip.Nlink = dec.GetInt()
	ip.Size = dec.GetInt()
	ip.PtrKind = dec.GetInt()
	for i := range ip.Direct {
		ip.Direct[i] = dec.GetInt()
	}
	ip.Mode = uint32(dec.GetInt())
	ip.Atime = dec.GetInt()
	ip.Mtime = dec.GetInt()
	return ip
}

// Table reads and writes inode records in place. There is no cache: every
// call goes to the owning block.
type Table struct {
	d  disk.Disk
	sb *super.FsSuper
}

func MkTable(d disk.Disk, sb *super.FsSuper) *Table {
	return &Table{d: d, sb: sb}
}

func (t *Table) check(inum common.Inum) error {
	if uint64(inum) >= t.sb.MaxInum {
		return fmt.Errorf("inum %d (max %d): %w", inum, t.sb.MaxInum, ErrRange)
	}
	return nil
}

func (t *Table) Read(inum common.Inum) (*Inode, error) {
	if err := t.check(inum); err != nil {
		return nil, err
	}
	a := t.sb.Inum2Addr(inum)
	blk, err := t.d.Read(a.Blkno)
	if err != nil {
		return nil, err
	}
	off := a.ByteOff()
	return Decode(blk[off : off+common.INODESZ]), nil
}

func (t *Table) Write(ip *Inode) error {
	if err := t.check(ip.Inum); err != nil {
		return err
	}
	a := t.sb.Inum2Addr(ip.Inum)
	blk, err := t.d.Read(a.Blkno)
	if err != nil {
		return err
	}
	copy(blk[a.ByteOff():], ip.Encode())
	util.DPrintf(5, "writei: %v\n", ip)
	return t.d.Write(a.Blkno, blk)
}

// InodesInBlock decodes every inode record of an inode-table block.
func InodesInBlock(blk disk.Block) []*Inode {
	var inodes []*Inode
	for off := uint64(0); off+common.INODESZ <= uint64(len(blk)); off += common.INODESZ {
		inodes = append(inodes, Decode(blk[off:off+common.INODESZ]))
	}
	return inodes
}
