package fusefs

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/go-tinyfs/disk"
	tinyfs "github.com/mit-pdos/go-tinyfs/fs"
)

type FuseSuite struct {
	suite.Suite
	ctx  context.Context
	fs   *FS
	root *Node
}

func (suite *FuseSuite) SetupTest() {
	opts := tinyfs.DefaultOptions()
	opts.MaxInum = 64
	opts.Now = func() time.Time { return time.Unix(1000, 0) }
	fsys, err := tinyfs.Format(disk.NewMemDisk(512), opts)
	suite.Require().NoError(err)
	suite.ctx = context.Background()
	suite.fs = NewFS(fsys)
	r, err := suite.fs.Root()
	suite.Require().NoError(err)
	suite.root = r.(*Node)
}

func TestFuse(t *testing.T) {
	suite.Run(t, new(FuseSuite))
}

func (suite *FuseSuite) TestRootAttr() {
	var a fuse.Attr
	suite.NoError(suite.root.Attr(suite.ctx, &a))
	suite.Equal(uint64(1), a.Inode)
	suite.True(a.Mode.IsDir())
	suite.Equal(os.FileMode(0755), a.Mode.Perm())
	suite.Equal(uint32(2), a.Nlink)
	suite.Equal(time.Unix(1000, 0), a.Mtime)
}

func (suite *FuseSuite) TestCreateWriteRead() {
	n, h, err := suite.root.Create(suite.ctx, &fuse.CreateRequest{Name: "f"}, &fuse.CreateResponse{})
	suite.Require().NoError(err)
	suite.Equal(n, h)
	f := n.(*Node)
	suite.Equal("/f", f.path)

	wresp := &fuse.WriteResponse{}
	err = f.Write(suite.ctx, &fuse.WriteRequest{Offset: 4090, Data: []byte("0123456789")}, wresp)
	suite.NoError(err)
	suite.Equal(10, wresp.Size)

	rresp := &fuse.ReadResponse{}
	err = f.Read(suite.ctx, &fuse.ReadRequest{Offset: 4090, Size: 100}, rresp)
	suite.NoError(err)
	suite.Equal([]byte("0123456789"), rresp.Data)

	var a fuse.Attr
	suite.NoError(f.Attr(suite.ctx, &a))
	suite.Equal(uint64(4100), a.Size)
	suite.Equal(uint64(16), a.Blocks, "two 4K blocks in 512-byte units")
	suite.True(a.Mode.IsRegular())
	suite.Equal(os.FileMode(0644), a.Mode.Perm())

	err = f.Read(suite.ctx, &fuse.ReadRequest{Offset: -1, Size: 1}, rresp)
	suite.Equal(fuse.Errno(syscall.EINVAL), err)
}

func (suite *FuseSuite) TestMkdirLookupReadDir() {
	d, err := suite.root.Mkdir(suite.ctx, &fuse.MkdirRequest{Name: "d"})
	suite.Require().NoError(err)
	_, _, err = d.(*Node).Create(suite.ctx, &fuse.CreateRequest{Name: "x"}, &fuse.CreateResponse{})
	suite.Require().NoError(err)

	n, err := suite.root.Lookup(suite.ctx, "d")
	suite.NoError(err)
	suite.Equal("/d", n.(*Node).path)
	n, err = n.(*Node).Lookup(suite.ctx, "x")
	suite.NoError(err)
	suite.Equal("/d/x", n.(*Node).path)

	_, err = suite.root.Lookup(suite.ctx, "missing")
	suite.Equal(fuse.Errno(syscall.ENOENT), err)

	ents, err := d.(*Node).ReadDirAll(suite.ctx)
	suite.NoError(err)
	suite.Equal([]fuse.Dirent{
		{Inode: 2, Type: fuse.DT_Dir, Name: "."},
		{Inode: 1, Type: fuse.DT_Dir, Name: ".."},
		{Inode: 3, Type: fuse.DT_File, Name: "x"},
	}, ents)
}

func (suite *FuseSuite) TestErrors() {
	_, err := suite.root.Mkdir(suite.ctx, &fuse.MkdirRequest{Name: "d"})
	suite.Require().NoError(err)
	_, err = suite.root.Mkdir(suite.ctx, &fuse.MkdirRequest{Name: "d"})
	suite.Equal(fuse.Errno(syscall.EEXIST), err)

	d := suite.root.child("d")
	err = d.Read(suite.ctx, &fuse.ReadRequest{Size: 1}, &fuse.ReadResponse{})
	suite.Equal(fuse.Errno(syscall.EISDIR), err)

	_, err = d.Open(suite.ctx, &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	suite.NoError(err)
	_, _, err = suite.root.Create(suite.ctx, &fuse.CreateRequest{Name: "f"}, &fuse.CreateResponse{})
	suite.Require().NoError(err)
	_, err = suite.root.child("f").Open(suite.ctx, &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	suite.Equal(fuse.Errno(syscall.ENOTDIR), err)
}

func (suite *FuseSuite) TestSetattr() {
	_, _, err := suite.root.Create(suite.ctx, &fuse.CreateRequest{Name: "f"}, &fuse.CreateResponse{})
	suite.Require().NoError(err)
	f := suite.root.child("f")

	resp := &fuse.SetattrResponse{}
	err = f.Setattr(suite.ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 0}, resp)
	suite.NoError(err, "truncating an empty file is a no-op")
	suite.Equal(uint64(2), resp.Attr.Inode)

	err = f.Setattr(suite.ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 10}, resp)
	suite.Equal(fuse.Errno(syscall.ENOTSUP), err)
}

func (suite *FuseSuite) TestStatfs() {
	resp := &fuse.StatfsResponse{}
	suite.NoError(suite.fs.Statfs(suite.ctx, &fuse.StatfsRequest{}, resp))
	suite.Equal(uint64(64), resp.Files)
	suite.Equal(uint64(63), resp.Ffree)
	suite.Equal(uint32(4096), resp.Bsize)
	suite.Equal(resp.Blocks-1, resp.Bfree)
}

func (suite *FuseSuite) TestFsync() {
	suite.NoError(suite.root.Fsync(suite.ctx, &fuse.FsyncRequest{}))
}
