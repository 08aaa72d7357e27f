// Package dir stores name to inode mappings in directory data blocks.
//
// Each directory block is a table of fixed-size dirents. A directory reaches
// its blocks through the direct pointers of its inode; entries carry no
// ordering across blocks.
package dir

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/util"
)

var (
	ErrNotFound    = errors.New("dir: name not found")
	ErrExist       = errors.New("dir: name exists")
	ErrFull        = errors.New("dir: no free directory block slot")
	ErrNotDir      = errors.New("dir: not a directory")
	ErrNameTooLong = errors.New("dir: name too long")
	ErrEmptyName   = errors.New("dir: empty name")
)

type Dirent struct {
	Valid bool
	Inum  common.Inum
	Name  string
}

func (de Dirent) Encode() []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	if de.Valid {
		enc.PutInt(1)
	} else {
		enc.PutInt(0)
	}
	enc.PutInt(uint64(de.Inum))
	enc.PutInt(uint64(len(de.Name)))
	b := enc.Finish()
	copy(b[common.DIRENTHDR:], de.Name)
	return b
}

func DecodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b)
	de := Dirent{}
	de.Valid = dec.GetInt() != 0
	de.Inum = common.Inum(dec.GetInt())
	l := util.Min(dec.GetInt(), common.NAMELEN)
	de.Name = string(b[common.DIRENTHDR : common.DIRENTHDR+l])
	return de
}

// DirentsInBlock decodes every slot of a directory block, valid or not.
func DirentsInBlock(blk disk.Block) []Dirent {
	des := make([]Dirent, 0, common.DIRENTBLK)
	for i := uint64(0); i < common.DIRENTBLK; i++ {
		off := i * common.DIRENTSZ
		des = append(des, DecodeDirent(blk[off:off+common.DIRENTSZ]))
	}
	return des
}

func putDirent(blk disk.Block, slot uint64, de Dirent) {
	copy(blk[slot*common.DIRENTSZ:], de.Encode())
}

func CheckName(name string) error {
	if len(name) == 0 {
		return ErrEmptyName
	}
	if uint64(len(name)) > common.NAMELEN {
		return fmt.Errorf("%d bytes: %w", len(name), ErrNameTooLong)
	}
	return nil
}

// InitDirBlock writes a fresh directory block at bn holding "." and "..".
func InitDirBlock(d disk.Disk, bn common.Bnum, self common.Inum, parent common.Inum) error {
	blk := make(disk.Block, disk.BlockSize)
	putDirent(blk, 0, Dirent{Valid: true, Inum: self, Name: "."})
	putDirent(blk, 1, Dirent{Valid: true, Inum: parent, Name: ".."})
	return d.Write(bn, blk)
}

type Directory struct {
	d      disk.Disk
	itab   *inode.Table
	balloc inode.Allocator
}

func MkDirectory(d disk.Disk, itab *inode.Table, balloc inode.Allocator) *Directory {
	return &Directory{d: d, itab: itab, balloc: balloc}
}

func (dt *Directory) readDir(dnum common.Inum) (*inode.Inode, error) {
	dip, err := dt.itab.Read(dnum)
	if err != nil {
		return nil, err
	}
	if !dip.Valid {
		return nil, fmt.Errorf("directory %d invalid: %w", dnum, ErrNotFound)
	}
	if !dip.IsDir() {
		return nil, fmt.Errorf("inode %d: %w", dnum, ErrNotDir)
	}
	return dip, nil
}

// Lookup returns the first valid entry named name, scanning blocks in
// direct-pointer order.
func (dt *Directory) Lookup(dnum common.Inum, name string) (Dirent, error) {
	dip, err := dt.readDir(dnum)
	if err != nil {
		return Dirent{}, err
	}
	for _, bn := range dip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		blk, err := dt.d.Read(bn)
		if err != nil {
			return Dirent{}, err
		}
		for _, de := range DirentsInBlock(blk) {
			if de.Valid && de.Name == name {
				util.DPrintf(5, "Lookup: %d %q -> %d\n", dnum, name, de.Inum)
				return de, nil
			}
		}
	}
	return Dirent{}, fmt.Errorf("%q in %d: %w", name, dnum, ErrNotFound)
}

// Insert adds name -> inum to directory dnum. A free slot in an existing
// block is reused before a new block is allocated. Every insert grows the
// directory's size by one dirent, so size counts inserts rather than live
// entries.
func (dt *Directory) Insert(dnum common.Inum, inum common.Inum, name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	_, err := dt.Lookup(dnum, name)
	if err == nil {
		return fmt.Errorf("%q in %d: %w", name, dnum, ErrExist)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	dip, err := dt.readDir(dnum)
	if err != nil {
		return err
	}
	de := Dirent{Valid: true, Inum: inum, Name: name}

	for _, bn := range dip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		blk, err := dt.d.Read(bn)
		if err != nil {
			return err
		}
		for slot, old := range DirentsInBlock(blk) {
			if old.Valid {
				continue
			}
			putDirent(blk, uint64(slot), de)
			if err := dt.d.Write(bn, blk); err != nil {
				return err
			}
			util.DPrintf(3, "Insert: %d %q -> %d in block %d slot %d\n",
				dnum, name, inum, bn, slot)
			dip.Size += common.DIRENTSZ
			return dt.itab.Write(dip)
		}
	}

	ptr := -1
	for i, bn := range dip.Direct {
		if bn == common.NULLBNUM {
			ptr = i
			break
		}
	}
	if ptr < 0 {
		return fmt.Errorf("directory %d: %w", dnum, ErrFull)
	}
	bn, err := dt.balloc.AllocNum()
	if err != nil {
		return err
	}
	blk := make(disk.Block, disk.BlockSize)
	putDirent(blk, 0, de)
	if err := dt.d.Write(bn, blk); err != nil {
		return err
	}
	util.DPrintf(3, "Insert: %d %q -> %d in new block %d\n", dnum, name, inum, bn)
	dip.Direct[ptr] = bn
	dip.Size += common.DIRENTSZ
	return dt.itab.Write(dip)
}

// ReadDir returns every valid entry of directory dnum, "." and ".."
// included, in on-disk order.
func (dt *Directory) ReadDir(dnum common.Inum) ([]Dirent, error) {
	dip, err := dt.readDir(dnum)
	if err != nil {
		return nil, err
	}
	var des []Dirent
	for _, bn := range dip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		blk, err := dt.d.Read(bn)
		if err != nil {
			return nil, err
		}
		for _, de := range DirentsInBlock(blk) {
			if de.Valid {
				des = append(des, de)
			}
		}
	}
	return des, nil
}
