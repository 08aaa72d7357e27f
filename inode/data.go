package inode

import (
	"fmt"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/util"
)

// Allocator hands out absolute data block numbers.
type Allocator interface {
	AllocNum() (uint64, error)
}

// Read returns up to count bytes of file data starting at off. The range is
// clamped to the file size, and the result stops short at the first
// unallocated block.
func (ip *Inode) Read(d disk.Disk, off uint64, count uint64) ([]byte, error) {
	if off >= ip.Size {
		return nil, nil
	}
	n := util.Min(count, ip.Size-off)
	data := make([]byte, n)
	var done uint64
	for done < n {
		idx := (off + done) / disk.BlockSize
		boff := (off + done) % disk.BlockSize
		if idx >= common.NDIRECT {
			break
		}
		bn := ip.Direct[idx]
		if bn == common.NULLBNUM {
			util.DPrintf(5, "Read: %d hole at block %d\n", ip.Inum, idx)
			break
		}
		blk, err := d.Read(bn)
		if err != nil {
			return data[:done], err
		}
		chunk := util.Min(disk.BlockSize-boff, n-done)
		copy(data[done:done+chunk], blk[boff:boff+chunk])
		done += chunk
	}
	return data[:done], nil
}

// Write copies data into the file at off, allocating and zero-filling
// blocks on first touch. It returns the number of bytes written; if that is
// less than len(data) the error says why (ErrFBig at the direct-pointer
// limit, or the allocator's error). Size grows to cover what was written.
//
// The caller persists ip.
func (ip *Inode) Write(d disk.Disk, a Allocator, off uint64, data []byte) (uint64, error) {
	if util.SumOverflows(off, uint64(len(data))) {
		return 0, fmt.Errorf("offset %d: %w", off, ErrFBig)
	}
	var done uint64
	var err error
	n := uint64(len(data))
	for done < n {
		idx := (off + done) / disk.BlockSize
		boff := (off + done) % disk.BlockSize
		if idx >= common.NDIRECT {
			err = fmt.Errorf("inode %d block %d: %w", ip.Inum, idx, ErrFBig)
			break
		}
		var blk disk.Block
		bn := ip.Direct[idx]
		if bn == common.NULLBNUM {
			bn, err = a.AllocNum()
			if err != nil {
				break
			}
			util.DPrintf(5, "Write: %d block %d -> %d\n", ip.Inum, idx, bn)
			blk = make(disk.Block, disk.BlockSize)
		} else {
			blk, err = d.Read(bn)
			if err != nil {
				break
			}
		}
		chunk := util.Min(disk.BlockSize-boff, n-done)
		copy(blk[boff:boff+chunk], data[done:done+chunk])
		err = d.Write(bn, blk)
		if err != nil {
			break
		}
		// only a block that reached the disk is linked in
		ip.Direct[idx] = bn
		done += chunk
	}
	if done > 0 {
		ip.Size = util.Max(ip.Size, off+done)
	}
	return done, err
}
