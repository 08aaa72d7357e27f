// Package fusefs exposes a tinyfs file system through FUSE.
package fusefs

import (
	"context"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/disk"
	tinyfs "github.com/mit-pdos/go-tinyfs/fs"
	"github.com/mit-pdos/go-tinyfs/util"
)

// FS serializes FUSE requests onto a single file system.
type FS struct {
	mu   sync.Mutex
	fsys *tinyfs.FileSystem
}

func NewFS(fsys *tinyfs.FileSystem) *FS {
	return &FS{fsys: fsys}
}

func (f *FS) Root() (fs.Node, error) {
	return &Node{fs: f, path: "/"}, nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.fsys.StatFS()
	if err != nil {
		return errno(err)
	}
	resp.Blocks = st.Blocks
	resp.Bfree = st.FreeBlocks
	resp.Bavail = st.FreeBlocks
	resp.Files = st.Inodes
	resp.Ffree = st.FreeInodes
	resp.Bsize = uint32(st.BlockSize)
	resp.Frsize = uint32(st.BlockSize)
	resp.Namelen = uint32(st.NameLen)
	return nil
}

// Node is a file or directory, named by its absolute path. It also serves
// as its own open handle.
type Node struct {
	fs   *FS
	path string
}

func errno(err error) error {
	return fuse.Errno(tinyfs.Errno(err))
}

// fuse reserves inode 0, so inode numbers are shifted by one.
func fuseInode(inum common.Inum) uint64 {
	return uint64(inum) + 1
}

func fillAttr(st tinyfs.Stat, a *fuse.Attr) {
	a.Inode = fuseInode(st.Inum)
	a.Size = st.Size
	a.Blocks = st.Blocks * (disk.BlockSize / 512)
	a.BlockSize = uint32(disk.BlockSize)
	a.Nlink = uint32(st.Nlink)
	a.Atime = st.Atime
	a.Mtime = st.Mtime
	a.Ctime = st.Mtime
	a.Mode = os.FileMode(st.Mode & 0777)
	if st.IsDir() {
		a.Mode |= os.ModeDir
	}
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	a.Valid = time.Second
}

func direntType(k common.Kind) fuse.DirentType {
	if k == common.KIND_DIR {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}

func (n *Node) child(name string) *Node {
	return &Node{fs: n.fs, path: path.Join(n.path, name)}
}

func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	st, err := n.fs.fsys.GetAttr(n.path)
	if err != nil {
		return errno(err)
	}
	fillAttr(st, a)
	return nil
}

func (n *Node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	c := n.child(name)
	if _, err := n.fs.fsys.Open(c.path); err != nil {
		return nil, errno(err)
	}
	return c, nil
}

func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	if req.Dir {
		if err := n.fs.fsys.OpenDir(n.path); err != nil {
			return nil, errno(err)
		}
		return n, nil
	}
	if _, err := n.fs.fsys.Open(n.path); err != nil {
		return nil, errno(err)
	}
	return n, nil
}

func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	ents, err := n.fs.fsys.ReadDir(n.path)
	if err != nil {
		return nil, errno(err)
	}
	des := make([]fuse.Dirent, 0, len(ents))
	for _, e := range ents {
		des = append(des, fuse.Dirent{
			Inode: fuseInode(e.Inum),
			Type:  direntType(e.Kind),
			Name:  e.Name,
		})
	}
	return des, nil
}

func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	c := n.child(req.Name)
	if _, err := n.fs.fsys.Mkdir(c.path); err != nil {
		return nil, errno(err)
	}
	return c, nil
}

func (n *Node) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	c := n.child(req.Name)
	if _, err := n.fs.fsys.Create(c.path); err != nil {
		return nil, nil, errno(err)
	}
	return c, c, nil
}

func (n *Node) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if req.Offset < 0 {
		return errno(tinyfs.ErrInval)
	}
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	data, err := n.fs.fsys.Read(n.path, uint64(req.Offset), uint64(req.Size))
	if err != nil {
		return errno(err)
	}
	resp.Data = data
	return nil
}

func (n *Node) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if req.Offset < 0 {
		return errno(tinyfs.ErrInval)
	}
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	cnt, err := n.fs.fsys.Write(n.path, uint64(req.Offset), req.Data)
	if err != nil {
		return errno(err)
	}
	resp.Size = int(cnt)
	return nil
}

// Fsync flushes the whole disk; there is no per-file state to sync.
func (n *Node) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	if err := n.fs.fsys.Disk().Barrier(); err != nil {
		return fuse.EIO
	}
	return nil
}

// Setattr accepts mode, owner and time changes without applying them. Size
// changes are refused since files cannot be truncated.
func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	st, err := n.fs.fsys.GetAttr(n.path)
	if err != nil {
		return errno(err)
	}
	if req.Valid.Size() && req.Size != st.Size {
		util.DPrintf(1, "setattr %s: size %d -> %d unsupported\n", n.path, st.Size, req.Size)
		return fuse.Errno(syscall.ENOTSUP)
	}
	fillAttr(st, &resp.Attr)
	return nil
}
