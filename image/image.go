// Package image saves a disk to a compressed stream and restores it.
//
// The stream is zstd-compressed. It starts with a 16-byte header (magic and
// block count) followed by every block of the disk in order.
package image

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/util"
)

const (
	MAGIC uint64 = 0x54494e5946534947
	HDRSZ uint64 = 16
)

var ErrFormat = errors.New("image: not a disk image")

func encodeHdr(nblocks uint64) []byte {
	enc := marshal.NewEnc(HDRSZ)
	enc.PutInt(MAGIC)
	enc.PutInt(nblocks)
	return enc.Finish()
}

func decodeHdr(b []byte) (uint64, error) {
	dec := marshal.NewDec(b)
	if dec.GetInt() != MAGIC {
		return 0, ErrFormat
	}
	return dec.GetInt(), nil
}

// Export writes all of d to w.
func Export(d disk.Disk, w io.Writer) error {
	n, err := d.Size()
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(encodeHdr(n)); err != nil {
		enc.Close()
		return err
	}
	buf := make(disk.Block, disk.BlockSize)
	for a := uint64(0); a < n; a++ {
		if err := d.ReadTo(a, buf); err != nil {
			enc.Close()
			return fmt.Errorf("block %d: %w", a, err)
		}
		if _, err := enc.Write(buf); err != nil {
			enc.Close()
			return err
		}
	}
	util.DPrintf(1, "Export: %d blocks\n", n)
	return enc.Close()
}

func openImage(r io.Reader) (*zstd.Decoder, uint64, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, 0, err
	}
	hdr := make([]byte, HDRSZ)
	if _, err := io.ReadFull(dec, hdr); err != nil {
		dec.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	n, err := decodeHdr(hdr)
	if err != nil {
		dec.Close()
		return nil, 0, err
	}
	return dec, n, nil
}

func copyBlocks(src io.Reader, d disk.Disk, n uint64) error {
	buf := make(disk.Block, disk.BlockSize)
	for a := uint64(0); a < n; a++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return fmt.Errorf("block %d: %w", a, err)
		}
		if err := d.Write(a, buf); err != nil {
			return err
		}
	}
	return d.Barrier()
}

// Restore reads an image from r into d, which must be at least as large as
// the exported disk. It returns the number of blocks restored.
func Restore(r io.Reader, d disk.Disk) (uint64, error) {
	dec, n, err := openImage(r)
	if err != nil {
		return 0, err
	}
	defer dec.Close()
	sz, err := d.Size()
	if err != nil {
		return 0, err
	}
	if n > sz {
		return 0, fmt.Errorf("image of %d blocks, disk of %d: %w", n, sz, disk.ErrRange)
	}
	if err := copyBlocks(dec, d, n); err != nil {
		return 0, err
	}
	util.DPrintf(1, "Restore: %d blocks\n", n)
	return n, nil
}

// Import creates a disk file at path from the image in r.
func Import(r io.Reader, path string) (disk.Disk, error) {
	dec, n, err := openImage(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	d, err := disk.NewFileDisk(path, n)
	if err != nil {
		return nil, err
	}
	if err := copyBlocks(dec, d, n); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
