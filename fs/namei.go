package fs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/util"
)

// namei walks p one component at a time starting from directory start.
// "/" always names the root. Every component but the last must resolve to
// a directory.
func (fs *FileSystem) namei(p string, start common.Inum) (*inode.Inode, error) {
	if p == "" {
		return nil, ErrInval
	}
	if p == "/" {
		return fs.itab.Read(common.ROOTINUM)
	}
	cur, err := fs.itab.Read(start)
	if err != nil {
		return nil, err
	}
	if !cur.Valid {
		return nil, fmt.Errorf("start inode %d: %w", start, ErrNotExist)
	}
	for _, name := range strings.Split(p, "/") {
		if name == "" {
			continue
		}
		if !cur.IsDir() {
			return nil, fmt.Errorf("%q under inode %d: %w", name, cur.Inum, ErrNotDir)
		}
		de, err := fs.dirs.Lookup(cur.Inum, name)
		if err != nil {
			return nil, err
		}
		cur, err = fs.itab.Read(de.Inum)
		if err != nil {
			return nil, err
		}
		if !cur.Valid {
			return nil, fmt.Errorf("%q -> inode %d: %w", name, de.Inum, ErrNotExist)
		}
	}
	util.DPrintf(3, "namei: %s -> %d\n", p, cur.Inum)
	return cur, nil
}

// Namei resolves p relative to directory start; absolute and relative
// paths are treated alike except that "/" is always the root.
func (fs *FileSystem) Namei(p string, start common.Inum) (common.Inum, error) {
	ip, err := fs.namei(p, start)
	if err != nil {
		return 0, mkError("namei", p, err)
	}
	return ip.Inum, nil
}

// splitPath separates p into its parent directory and final name. The
// parent is returned as written so that namei checks every component of it,
// ".." included.
func splitPath(p string) (string, string, error) {
	if p == "" || !strings.HasPrefix(p, "/") {
		return "", "", ErrInval
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "", "", ErrExist
	}
	i := strings.LastIndex(p, "/")
	parent, name := p[:i+1], p[i+1:]
	if name == "." || name == ".." {
		return "", "", fmt.Errorf("final component %q: %w", name, ErrInval)
	}
	if err := dir.CheckName(name); err != nil {
		return "", "", err
	}
	return parent, name, nil
}
