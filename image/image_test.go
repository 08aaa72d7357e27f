package image

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/fs"
)

func populated(t *testing.T) disk.Disk {
	d := disk.NewMemDisk(256)
	opts := fs.DefaultOptions()
	opts.MaxInum = 32
	fsys, err := fs.Format(d, opts)
	require.NoError(t, err)
	_, err = fsys.Mkdir("/dir")
	require.NoError(t, err)
	_, err = fsys.Create("/dir/file")
	require.NoError(t, err)
	_, err = fsys.Write("/dir/file", 100, []byte("hello, image"))
	require.NoError(t, err)
	return d
}

func sameBlocks(t *testing.T, d1, d2 disk.Disk, n uint64) {
	for a := uint64(0); a < n; a++ {
		b1, err := d1.Read(a)
		require.NoError(t, err)
		b2, err := d2.Read(a)
		require.NoError(t, err)
		require.Equal(t, b1, b2, "block %d", a)
	}
}

func TestExportRestore(t *testing.T) {
	d := populated(t)
	var buf bytes.Buffer
	require.NoError(t, Export(d, &buf))
	assert.Less(t, buf.Len(), int(256*disk.BlockSize), "mostly-zero disk compresses")

	d2 := disk.NewMemDisk(300)
	n, err := Restore(&buf, d2)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), n)
	sameBlocks(t, d, d2, 256)

	fsys, err := fs.MountDisk(d2, fs.DefaultOptions())
	require.NoError(t, err)
	got, err := fsys.Read("/dir/file", 100, 12)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello, image"), got)
}

func TestRestoreTooSmall(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(populated(t), &buf))
	_, err := Restore(&buf, disk.NewMemDisk(10))
	assert.True(t, errors.Is(err, disk.ErrRange))
}

func TestImport(t *testing.T) {
	d := populated(t)
	var buf bytes.Buffer
	require.NoError(t, Export(d, &buf))

	path := filepath.Join(t.TempDir(), "img")
	d2, err := Import(&buf, path)
	require.NoError(t, err)
	defer d2.Close()
	sz, err := d2.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(256), sz)
	sameBlocks(t, d, d2, 256)
}

func TestNotAnImage(t *testing.T) {
	_, err := Restore(bytes.NewReader([]byte("plain text")), disk.NewMemDisk(10))
	assert.Error(t, err)

	junk := mustCompress(t, bytes.Repeat([]byte{0xaa}, 64))
	_, err = Restore(bytes.NewReader(junk), disk.NewMemDisk(10))
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestHeader(t *testing.T) {
	n, err := decodeHdr(encodeHdr(42))
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), n)
	_, err = decodeHdr(make([]byte, HDRSZ))
	assert.ErrorIs(t, err, ErrFormat)
}

func mustCompress(t *testing.T, b []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(b, nil)
}
