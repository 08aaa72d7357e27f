// Package fs is the file system engine: it formats and mounts a disk and
// implements the path-level operations on top of the inode table, the
// bitmap allocators and the directory module.
//
// A FileSystem is not safe for concurrent use. Every operation runs to
// completion with plain block reads and writes and there is no journal, so a
// failure between two writes of one operation can leave, for example, a
// directory entry in place while the directory's size predates it. Hosts
// that serve requests concurrently must serialize calls.
package fs

import (
	"fmt"

	"github.com/mit-pdos/go-tinyfs/alloc"
	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/super"
	"github.com/mit-pdos/go-tinyfs/util"
)

type FileSystem struct {
	d    disk.Disk
	sb   *super.FsSuper
	ia   *alloc.Alloc
	ba   *alloc.Alloc
	itab *inode.Table
	dirs *dir.Directory
	opts Options
}

func mkFileSystem(d disk.Disk, sb *super.FsSuper, opts Options) *FileSystem {
	ba := alloc.MkAlloc(d, sb.DBitmap, sb.MaxDnum, sb.DStart)
	itab := inode.MkTable(d, sb)
	return &FileSystem{
		d:    d,
		sb:   sb,
		ia:   alloc.MkAlloc(d, sb.IBitmap, sb.MaxInum, 0),
		ba:   ba,
		itab: itab,
		dirs: dir.MkDirectory(d, itab, ba),
		opts: opts,
	}
}

// Format lays out an empty file system on d: clear bitmaps and inode table,
// a root directory at inode 0 with "." and "..", and finally the superblock.
func Format(d disk.Disk, opts Options) (*FileSystem, error) {
	size, err := d.Size()
	if err != nil {
		return nil, mkError("format", "", err)
	}
	sb, err := super.MkFsSuper(size, opts.MaxInum, opts.MaxDnum)
	if err != nil {
		return nil, mkError("format", "", err)
	}
	util.DPrintf(1, "Format: %d blocks, %d inodes at %d, %d data blocks at %d\n",
		size, sb.MaxInum, sb.IStart, sb.MaxDnum, sb.DStart)

	zero := []common.Bnum{sb.IBitmap, sb.DBitmap}
	for i := uint64(0); i < sb.NInodeBlk(); i++ {
		zero = append(zero, sb.IStart+common.Bnum(i))
	}
	for _, bn := range zero {
		if err := disk.ZeroBlock(d, bn); err != nil {
			return nil, mkError("format", "", err)
		}
	}

	fs := mkFileSystem(d, sb, opts)
	if err := fs.mkRoot(); err != nil {
		return nil, mkError("format", "", err)
	}
	if err := d.Write(common.SUPERBLK, sb.Encode()); err != nil {
		return nil, mkError("format", "", err)
	}
	if err := d.Barrier(); err != nil {
		return nil, mkError("format", "", err)
	}
	return fs, nil
}

func (fs *FileSystem) mkRoot() error {
	if err := fs.ia.MarkUsed(uint64(common.ROOTINUM)); err != nil {
		return err
	}
	bn, err := fs.ba.AllocNum()
	if err != nil {
		return err
	}
	if err := dir.InitDirBlock(fs.d, bn, common.ROOTINUM, common.ROOTINUM); err != nil {
		return err
	}
	root := inode.MkInode(common.ROOTINUM, common.KIND_DIR, fs.opts.now())
	root.Direct[0] = bn
	root.Size = 2 * common.DIRENTSZ
	return fs.itab.Write(root)
}

// MountDisk loads the superblock of d. A disk without a recognizable
// superblock is reformatted, destroying its contents, unless opts.Strict is
// set, in which case ErrBadMagic is returned.
func MountDisk(d disk.Disk, opts Options) (*FileSystem, error) {
	size, err := d.Size()
	if err != nil {
		return nil, mkError("mount", "", err)
	}
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, mkError("mount", "", err)
	}
	sb := super.Decode(blk)
	if !sb.Valid(size) {
		if opts.Strict {
			return nil, mkError("mount", "", fmt.Errorf("%w: %#x", ErrBadMagic, sb.Magic))
		}
		util.DPrintf(0, "Mount: bad superblock (magic %#x); reformatting\n", sb.Magic)
		return Format(d, opts)
	}
	util.DPrintf(1, "Mount: %d inodes, %d data blocks at %d\n", sb.MaxInum, sb.MaxDnum, sb.DStart)
	return mkFileSystem(d, sb, opts), nil
}

// Mount opens the disk image at path. A missing image is created with
// opts.DiskBlocks blocks and formatted.
func Mount(path string, opts Options) (*FileSystem, error) {
	if !disk.Exists(path) {
		util.DPrintf(0, "Mount: creating %s\n", path)
		d, err := disk.NewFileDisk(path, opts.DiskBlocks)
		if err != nil {
			return nil, mkError("mount", path, err)
		}
		fs, err := Format(d, opts)
		if err != nil {
			d.Close()
			return nil, err
		}
		return fs, nil
	}
	n, err := disk.FileBlocks(path)
	if err != nil {
		return nil, mkError("mount", path, err)
	}
	if n == 0 {
		n = opts.DiskBlocks
	}
	d, err := disk.NewFileDisk(path, n)
	if err != nil {
		return nil, mkError("mount", path, err)
	}
	fs, err := MountDisk(d, opts)
	if err != nil {
		d.Close()
		return nil, err
	}
	return fs, nil
}

// Unmount flushes and releases the disk.
func (fs *FileSystem) Unmount() error {
	if err := fs.d.Barrier(); err != nil {
		return mkError("unmount", "", err)
	}
	if err := fs.d.Close(); err != nil {
		return mkError("unmount", "", err)
	}
	return nil
}

func (fs *FileSystem) Super() *super.FsSuper {
	return fs.sb
}

func (fs *FileSystem) Disk() disk.Disk {
	return fs.d
}

type StatFS struct {
	BlockSize  uint64
	Inodes     uint64
	FreeInodes uint64
	Blocks     uint64
	FreeBlocks uint64
	NameLen    uint64
}

func (fs *FileSystem) StatFS() (StatFS, error) {
	ifree, err := fs.ia.NumFree()
	if err != nil {
		return StatFS{}, mkError("statfs", "", err)
	}
	bfree, err := fs.ba.NumFree()
	if err != nil {
		return StatFS{}, mkError("statfs", "", err)
	}
	return StatFS{
		BlockSize:  disk.BlockSize,
		Inodes:     fs.sb.MaxInum,
		FreeInodes: ifree,
		Blocks:     fs.sb.MaxDnum,
		FreeBlocks: bfree,
		NameLen:    common.NAMELEN,
	}, nil
}
