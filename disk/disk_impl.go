package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-tinyfs/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if needed) a disk image at path holding
// numBlocks blocks. A regular file of a different length is resized.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*BlockSize {
		if stat.Size != 0 {
			util.DPrintf(0, "NewFileDisk: resizing %s from %d to %d bytes\n",
				path, stat.Size, numBlocks*BlockSize)
		}
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	util.DPrintf(1, "NewFileDisk: %s %d blocks\n", path, numBlocks)
	return &fileDisk{fd: fd, numBlocks: numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return ErrBlockSize
	}
	if a >= d.numBlocks {
		return fmt.Errorf("read at %d: %w", a, ErrRange)
	}
	_, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("read at %d: %w", a, err)
	}
	util.DPrintf(10, "read: %d\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return ErrBlockSize
	}
	if a >= d.numBlocks {
		return fmt.Errorf("write at %d: %w", a, ErrRange)
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("write at %d: %w", a, err)
	}
	util.DPrintf(10, "write: %d\n", a)
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("file sync failed: %w", err)
	}
	util.DPrintf(10, "barrier\n")
	return nil
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////
/////////////////////////

var _ Disk = (*gooseDisk)(nil)

// gooseDisk adapts a goose disk, which panics on misuse, to the
// error-returning Disk interface.
type gooseDisk struct {
	d gdisk.Disk
}

// FromGoose wraps an existing goose disk.
func FromGoose(d gdisk.Disk) Disk {
	return &gooseDisk{d: d}
}

// NewMemDisk creates an in-memory disk of numBlocks zeroed blocks.
func NewMemDisk(numBlocks uint64) Disk {
	return FromGoose(gdisk.NewMemDisk(numBlocks))
}

func (d *gooseDisk) check(a uint64) error {
	if a >= d.d.Size() {
		return fmt.Errorf("access at %d: %w", a, ErrRange)
	}
	return nil
}

func (d *gooseDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return ErrBlockSize
	}
	if err := d.check(a); err != nil {
		return err
	}
	copy(buf, d.d.Read(a))
	return nil
}

func (d *gooseDisk) Read(a uint64) (Block, error) {
	if err := d.check(a); err != nil {
		return nil, err
	}
	return d.d.Read(a), nil
}

func (d *gooseDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return ErrBlockSize
	}
	if err := d.check(a); err != nil {
		return err
	}
	d.d.Write(a, v)
	return nil
}

func (d *gooseDisk) Size() (uint64, error) {
	return d.d.Size(), nil
}

func (d *gooseDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d *gooseDisk) Close() error {
	d.d.Close()
	return nil
}
