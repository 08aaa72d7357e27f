// Package check verifies the cross-structure invariants of a file system
// image: valid inodes have their bitmap bit set, data pointers stay inside
// the data region and are marked in the data bitmap, no block has two
// owners, and every valid directory entry names a valid inode.
//
// Check only reads the disk. Inode blocks and directories are scanned in
// parallel on a worker pool; the disk must not be modified meanwhile.
package check

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mit-pdos/go-tinyfs/alloc"
	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/super"
	"github.com/mit-pdos/go-tinyfs/util"
)

var ErrNoSuper = errors.New("check: no valid superblock")

type Report struct {
	Inodes   uint64
	Dirs     uint64
	Files    uint64
	Blocks   uint64
	Dirents  uint64
	Problems []string
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

type checker struct {
	d    disk.Disk
	sb   *super.FsSuper
	ia   *alloc.Alloc
	da   *alloc.Alloc
	pool *ants.Pool

	mu     sync.Mutex
	err    error
	rep    *Report
	inodes map[common.Inum]*inode.Inode
	owner  map[common.Bnum]common.Inum
}

func (c *checker) problem(format string, a ...interface{}) {
	c.mu.Lock()
	c.rep.Problems = append(c.rep.Problems, fmt.Sprintf(format, a...))
	c.mu.Unlock()
}

func (c *checker) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *checker) run(tasks []func()) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			task()
		})
		if err != nil {
			wg.Done()
			c.fail(err)
		}
	}
	wg.Wait()
}

// Check scans d using up to workers goroutines.
func Check(d disk.Disk, workers int) (*Report, error) {
	size, err := d.Size()
	if err != nil {
		return nil, err
	}
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, err
	}
	sb := super.Decode(blk)
	if !sb.Valid(size) {
		return nil, fmt.Errorf("magic %#x: %w", sb.Magic, ErrNoSuper)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	c := &checker{
		d:      d,
		sb:     sb,
		ia:     alloc.MkAlloc(d, sb.IBitmap, sb.MaxInum, 0),
		da:     alloc.MkAlloc(d, sb.DBitmap, sb.MaxDnum, sb.DStart),
		pool:   pool,
		rep:    &Report{},
		inodes: make(map[common.Inum]*inode.Inode),
		owner:  make(map[common.Bnum]common.Inum),
	}

	var tasks []func()
	for i := uint64(0); i < sb.NInodeBlk(); i++ {
		i := i
		tasks = append(tasks, func() { c.checkInodeBlock(i) })
	}
	c.run(tasks)
	if c.err != nil {
		return nil, c.err
	}

	root, ok := c.inodes[common.ROOTINUM]
	if !ok || !root.IsDir() {
		c.problem("root inode %d missing or not a directory", common.ROOTINUM)
	}

	tasks = nil
	for _, ip := range c.inodes {
		if ip.IsDir() {
			ip := ip
			tasks = append(tasks, func() { c.checkDir(ip) })
		}
	}
	c.run(tasks)
	if c.err != nil {
		return nil, c.err
	}

	c.rep.Blocks = uint64(len(c.owner))
	sort.Strings(c.rep.Problems)
	util.DPrintf(1, "Check: %d inodes, %d blocks, %d dirents, %d problems\n",
		c.rep.Inodes, c.rep.Blocks, c.rep.Dirents, len(c.rep.Problems))
	return c.rep, nil
}

func (c *checker) checkInodeBlock(i uint64) {
	blk, err := c.d.Read(c.sb.IStart + common.Bnum(i))
	if err != nil {
		c.fail(err)
		return
	}
	for slot, ip := range inode.InodesInBlock(blk) {
		inum := common.Inum(i*common.INODEBLK + uint64(slot))
		if uint64(inum) >= c.sb.MaxInum {
			break
		}
		if !ip.Valid {
			continue
		}
		c.checkInode(inum, ip)
	}
}

func (c *checker) checkInode(inum common.Inum, ip *inode.Inode) {
	used, err := c.ia.IsUsed(uint64(inum))
	if err != nil {
		c.fail(err)
		return
	}
	if !used {
		c.problem("inode %d valid but free in inode bitmap", inum)
	}
	if ip.Inum != inum {
		c.problem("inode %d records number %d", inum, ip.Inum)
	}
	if ip.Kind != common.KIND_DIR && ip.Kind != common.KIND_FILE {
		c.problem("inode %d has kind %d", inum, ip.Kind)
	}
	if ip.PtrKind != common.PTR_DIRECT {
		c.problem("inode %d has pointer layout %d", inum, ip.PtrKind)
	}
	if ip.Kind == common.KIND_FILE && ip.Size > common.MAXFILE {
		c.problem("inode %d size %d exceeds %d", inum, ip.Size, common.MAXFILE)
	}

	free := make(map[common.Bnum]bool)
	for _, bn := range ip.Direct {
		if bn == common.NULLBNUM || !c.sb.InDataRegion(bn) {
			continue
		}
		used, err := c.da.IsUsed(bn)
		if err != nil {
			c.fail(err)
			return
		}
		free[bn] = !used
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inodes[inum] = ip
	c.rep.Inodes++
	if ip.IsDir() {
		c.rep.Dirs++
	} else {
		c.rep.Files++
	}
	for _, bn := range ip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		if !c.sb.InDataRegion(bn) {
			c.rep.Problems = append(c.rep.Problems,
				fmt.Sprintf("inode %d points outside data region at %d", inum, bn))
			continue
		}
		if free[bn] {
			c.rep.Problems = append(c.rep.Problems,
				fmt.Sprintf("inode %d uses block %d free in data bitmap", inum, bn))
		}
		if other, ok := c.owner[bn]; ok {
			c.rep.Problems = append(c.rep.Problems,
				fmt.Sprintf("block %d shared by inodes %d and %d", bn, other, inum))
		} else {
			c.owner[bn] = inum
		}
	}
}

// checkDir runs after all inodes are loaded; c.inodes is read-only here.
func (c *checker) checkDir(dip *inode.Inode) {
	for _, bn := range dip.Direct {
		if bn == common.NULLBNUM || !c.sb.InDataRegion(bn) {
			continue
		}
		blk, err := c.d.Read(bn)
		if err != nil {
			c.fail(err)
			return
		}
		var n uint64
		for _, de := range dir.DirentsInBlock(blk) {
			if !de.Valid {
				continue
			}
			n++
			if uint64(de.Inum) >= c.sb.MaxInum {
				c.problem("dir %d entry %q names out-of-range inode %d", dip.Inum, de.Name, de.Inum)
				continue
			}
			if _, ok := c.inodes[de.Inum]; !ok {
				c.problem("dir %d entry %q names invalid inode %d", dip.Inum, de.Name, de.Inum)
			}
			if de.Name == "." && de.Inum != dip.Inum {
				c.problem("dir %d has \".\" -> %d", dip.Inum, de.Inum)
			}
		}
		c.mu.Lock()
		c.rep.Dirents += n
		c.mu.Unlock()
	}
}
