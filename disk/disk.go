package disk

import (
	"errors"
	"fmt"
	"os"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// Block is a BlockSize-byte buffer
type Block = gdisk.Block

const BlockSize uint64 = gdisk.BlockSize

var (
	ErrRange     = errors.New("disk: block number out of range")
	ErrBlockSize = errors.New("disk: buffer is not block-sized")
	ErrPartial   = errors.New("disk: image size is not a multiple of the block size")
)

// Disk provides access to a logical block-based disk
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// Exists reports whether a backing file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileBlocks reports how many blocks the file at path holds. A file ending
// in a partial block is refused rather than rounded down.
func FileBlocks(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	sz := uint64(st.Size())
	if sz%BlockSize != 0 {
		return 0, fmt.Errorf("%s: %d bytes: %w", path, sz, ErrPartial)
	}
	return sz / BlockSize, nil
}

// ZeroBlock writes an all-zero block at a.
func ZeroBlock(d Disk, a uint64) error {
	return d.Write(a, make(Block, BlockSize))
}
