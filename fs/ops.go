package fs

import (
	"errors"
	"time"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/util"
)

type Stat struct {
	Inum   common.Inum
	Kind   common.Kind
	Mode   uint32
	Nlink  uint64
	Size   uint64
	Blocks uint64
	Atime  time.Time
	Mtime  time.Time
}

func (st Stat) IsDir() bool {
	return st.Kind == common.KIND_DIR
}

type DirEntry struct {
	Name string
	Inum common.Inum
	Kind common.Kind
}

// GetAttr returns the attributes of the file or directory at p.
func (fs *FileSystem) GetAttr(p string) (Stat, error) {
	ip, err := fs.namei(p, common.ROOTINUM)
	if err != nil {
		return Stat{}, mkError("getattr", p, err)
	}
	mode := common.FILEMODE
	if ip.IsDir() {
		mode = common.DIRMODE
	}
	return Stat{
		Inum:   ip.Inum,
		Kind:   ip.Kind,
		Mode:   mode,
		Nlink:  ip.Nlink,
		Size:   ip.Size,
		Blocks: ip.NBlocks(),
		Atime:  time.Unix(int64(ip.Atime), 0),
		Mtime:  time.Unix(int64(ip.Mtime), 0),
	}, nil
}

func (fs *FileSystem) lookupDir(op, p string) (*inode.Inode, error) {
	ip, err := fs.namei(p, common.ROOTINUM)
	if err != nil {
		return nil, mkError(op, p, err)
	}
	if !ip.IsDir() {
		return nil, mkError(op, p, ErrNotDir)
	}
	return ip, nil
}

func (fs *FileSystem) lookupFile(op, p string) (*inode.Inode, error) {
	ip, err := fs.namei(p, common.ROOTINUM)
	if err != nil {
		return nil, mkError(op, p, err)
	}
	if ip.IsDir() {
		return nil, mkError(op, p, ErrIsDir)
	}
	return ip, nil
}

// OpenDir checks that p names a directory.
func (fs *FileSystem) OpenDir(p string) error {
	_, err := fs.lookupDir("opendir", p)
	return err
}

// ReadDir lists directory p. "." and ".." come first.
func (fs *FileSystem) ReadDir(p string) ([]DirEntry, error) {
	dip, err := fs.lookupDir("readdir", p)
	if err != nil {
		return nil, err
	}
	des, err := fs.dirs.ReadDir(dip.Inum)
	if err != nil {
		return nil, mkError("readdir", p, err)
	}
	parent := dip.Inum
	var ents []DirEntry
	for _, de := range des {
		if de.Name == ".." {
			parent = de.Inum
		}
		if de.Name == "." || de.Name == ".." {
			continue
		}
		ip, err := fs.itab.Read(de.Inum)
		if err != nil {
			return nil, mkError("readdir", p, err)
		}
		ents = append(ents, DirEntry{Name: de.Name, Inum: de.Inum, Kind: ip.Kind})
	}
	return append([]DirEntry{
		{Name: ".", Inum: dip.Inum, Kind: common.KIND_DIR},
		{Name: "..", Inum: parent, Kind: common.KIND_DIR},
	}, ents...), nil
}

// mknod allocates an inode of kind and links it into the parent of p. The
// new inode is written before its directory entry so that an entry never
// names an invalid inode.
func (fs *FileSystem) mknod(op, p string, kind common.Kind) (common.Inum, error) {
	parent, name, err := splitPath(p)
	if err != nil {
		return 0, mkError(op, p, err)
	}
	pip, err := fs.lookupDir(op, parent)
	if err != nil {
		return 0, err
	}
	_, err = fs.dirs.Lookup(pip.Inum, name)
	if err == nil {
		return 0, mkError(op, p, ErrExist)
	}
	if !errors.Is(err, dir.ErrNotFound) {
		return 0, mkError(op, p, err)
	}
	n, err := fs.ia.AllocNum()
	if err != nil {
		return 0, mkError(op, p, err)
	}
	ip := inode.MkInode(common.Inum(n), kind, fs.opts.now())
	if kind == common.KIND_DIR {
		bn, err := fs.ba.AllocNum()
		if err != nil {
			return 0, mkError(op, p, err)
		}
		if err := dir.InitDirBlock(fs.d, bn, ip.Inum, pip.Inum); err != nil {
			return 0, mkError(op, p, err)
		}
		ip.Direct[0] = bn
		ip.Size = 2 * common.DIRENTSZ
	}
	if err := fs.itab.Write(ip); err != nil {
		return 0, mkError(op, p, err)
	}
	if err := fs.dirs.Insert(pip.Inum, ip.Inum, name); err != nil {
		ip.Valid = false
		if werr := fs.itab.Write(ip); werr != nil {
			util.DPrintf(0, "%s %s: cannot invalidate inode %d: %v\n", op, p, ip.Inum, werr)
		}
		return 0, mkError(op, p, err)
	}
	util.DPrintf(3, "%s: %s -> %d\n", op, p, ip.Inum)
	return ip.Inum, nil
}

// Mkdir creates directory p; its parent must exist.
func (fs *FileSystem) Mkdir(p string) (common.Inum, error) {
	return fs.mknod("mkdir", p, common.KIND_DIR)
}

// Create creates an empty regular file p; its parent must exist.
func (fs *FileSystem) Create(p string) (common.Inum, error) {
	return fs.mknod("create", p, common.KIND_FILE)
}

// Open checks that p exists.
func (fs *FileSystem) Open(p string) (common.Inum, error) {
	ip, err := fs.namei(p, common.ROOTINUM)
	if err != nil {
		return 0, mkError("open", p, err)
	}
	return ip.Inum, nil
}

// Read returns up to count bytes of file p starting at off. Reads stop at
// the end of the file and, silently, at the first unallocated block.
func (fs *FileSystem) Read(p string, off uint64, count uint64) ([]byte, error) {
	ip, err := fs.lookupFile("read", p)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	data, err := ip.Read(fs.d, off, count)
	if err != nil {
		return nil, mkError("read", p, err)
	}
	ip.Atime = fs.opts.now()
	if err := fs.itab.Write(ip); err != nil {
		return nil, mkError("read", p, err)
	}
	return data, nil
}

// Write stores data in file p at off, growing the file as needed. If the
// write runs into the file size limit or out of data blocks after some
// bytes were committed, the short count is returned without an error.
func (fs *FileSystem) Write(p string, off uint64, data []byte) (uint64, error) {
	ip, err := fs.lookupFile("write", p)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, werr := ip.Write(fs.d, fs.ba, off, data)
	now := fs.opts.now()
	ip.Mtime = now
	ip.Atime = now
	if err := fs.itab.Write(ip); err != nil {
		return 0, mkError("write", p, err)
	}
	if werr != nil {
		if n == 0 {
			return 0, mkError("write", p, werr)
		}
		util.DPrintf(1, "write %s: short write %d of %d: %v\n", p, n, len(data), werr)
	}
	return n, nil
}
