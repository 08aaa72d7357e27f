package check_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-tinyfs/check"
	"github.com/mit-pdos/go-tinyfs/common"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/fs"
	"github.com/mit-pdos/go-tinyfs/inode"
)

func mkfs(t *testing.T) (disk.Disk, *fs.FileSystem) {
	d := disk.NewMemDisk(1024)
	opts := fs.DefaultOptions()
	opts.MaxInum = 64
	opts.MaxDnum = 128
	fsys, err := fs.Format(d, opts)
	require.NoError(t, err)

	_, err = fsys.Mkdir("/a")
	require.NoError(t, err)
	_, err = fsys.Create("/a/f")
	require.NoError(t, err)
	_, err = fsys.Write("/a/f", 0, make([]byte, 3*disk.BlockSize))
	require.NoError(t, err)
	return d, fsys
}

func TestCleanImage(t *testing.T) {
	d, _ := mkfs(t)
	rep, err := check.Check(d, 4)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "problems: %v", rep.Problems)
	assert.Equal(t, uint64(3), rep.Inodes)
	assert.Equal(t, uint64(2), rep.Dirs)
	assert.Equal(t, uint64(1), rep.Files)
	assert.Equal(t, uint64(2+3), rep.Blocks)
	assert.Equal(t, uint64(2+1+2+1), rep.Dirents, "root: . .. a; a: . .. f")
}

func TestNoSuperblock(t *testing.T) {
	_, err := check.Check(disk.NewMemDisk(64), 2)
	assert.True(t, errors.Is(err, check.ErrNoSuper))
}

func TestFreeBitDetected(t *testing.T) {
	d, fsys := mkfs(t)
	sb := fsys.Super()
	blk, err := d.Read(sb.IBitmap)
	require.NoError(t, err)
	blk[0] &^= 1 << 2 // inode 2 is /a/f
	require.NoError(t, d.Write(sb.IBitmap, blk))

	rep, err := check.Check(d, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"inode 2 valid but free in inode bitmap"}, rep.Problems)
}

func TestDanglingDirent(t *testing.T) {
	d, fsys := mkfs(t)
	sb := fsys.Super()
	itab := inode.MkTable(d, sb)
	root, err := itab.Read(common.ROOTINUM)
	require.NoError(t, err)
	blk, err := d.Read(root.Direct[0])
	require.NoError(t, err)
	copy(blk[5*common.DIRENTSZ:], dir.Dirent{Valid: true, Inum: 40, Name: "ghost"}.Encode())
	require.NoError(t, d.Write(root.Direct[0], blk))

	rep, err := check.Check(d, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{`dir 0 entry "ghost" names invalid inode 40`}, rep.Problems)
}

func TestSharedBlock(t *testing.T) {
	d, fsys := mkfs(t)
	sb := fsys.Super()
	itab := inode.MkTable(d, sb)
	f, err := itab.Read(2)
	require.NoError(t, err)
	root, err := itab.Read(common.ROOTINUM)
	require.NoError(t, err)
	f.Direct[5] = root.Direct[0]
	require.NoError(t, itab.Write(f))

	rep, err := check.Check(d, 2)
	require.NoError(t, err)
	require.Len(t, rep.Problems, 1)
	assert.Contains(t, rep.Problems[0], "shared by inodes")
}
