package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8

	INODESZ  uint64 = 256 // on-disk size
	INODEBLK uint64 = disk.BlockSize / INODESZ

	DIRENTSZ  uint64 = 256 // on-disk size
	DIRENTHDR uint64 = 3 * 8
	NAMELEN   uint64 = DIRENTSZ - DIRENTHDR
	DIRENTBLK uint64 = disk.BlockSize / DIRENTSZ

	NDIRECT uint64 = 16
	MAXFILE uint64 = NDIRECT * disk.BlockSize

	MAGIC uint64 = 0x5255465321 // "RUFS!"
)

// Fixed block positions; everything after INODESTART is computed at format
// time.
const (
	SUPERBLK   Bnum = 0
	IBITMAP    Bnum = 1
	DBITMAP    Bnum = 2
	INODESTART Bnum = 3
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

type Kind uint64

const (
	KIND_FREE Kind = 0
	KIND_DIR  Kind = 1
	KIND_FILE Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KIND_DIR:
		return "dir"
	case KIND_FILE:
		return "file"
	default:
		return "free"
	}
}

// Pointer table layouts. Only PTR_DIRECT is implemented; the field is
// recorded in every inode so that indirect layouts can be added without
// changing the record shape.
const (
	PTR_DIRECT    uint64 = 0
	PTR_INDIRECT  uint64 = 1
	PTR_DINDIRECT uint64 = 2
)

const (
	S_IFDIR uint32 = 0040000
	S_IFREG uint32 = 0100000

	DIRMODE  = S_IFDIR | 0755
	FILEMODE = S_IFREG | 0644
)
