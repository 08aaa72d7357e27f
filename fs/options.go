package fs

import (
	"time"
)

// Options configures Format and Mount.
type Options struct {
	// MaxInum is the number of inodes in the inode table.
	MaxInum uint64
	// MaxDnum caps the number of data blocks; the data region is the
	// lesser of MaxDnum and what fits on the disk.
	MaxDnum uint64
	// DiskBlocks sizes a backing file created by Mount.
	DiskBlocks uint64
	// Strict refuses to mount a disk whose superblock is unrecognized
	// instead of reformatting it.
	Strict bool
	// Now supplies access and modify times.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxInum:    1024,
		MaxDnum:    16384,
		DiskBlocks: 8192,
		Strict:     false,
		Now:        time.Now,
	}
}

func (o Options) now() uint64 {
	if o.Now == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(o.Now().Unix())
}
