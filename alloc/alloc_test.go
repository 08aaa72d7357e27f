package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-tinyfs/disk"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

func TestBits(t *testing.T) {
	blk := make([]byte, 4)
	SetBit(blk, 0)
	SetBit(blk, 9)
	assert.Equal(t, []byte{0x01, 0x02, 0, 0}, blk)
	assert.True(t, BitIsSet(blk, 9))
	assert.False(t, BitIsSet(blk, 8))
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(4)
	max := uint64(32)
	a := MkAlloc(d, 1, max, 0)

	n, err := a.NumFree()
	assert.NoError(err)
	assert.Equal(max, n, "everything should be initially free")

	num, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(uint64(0), num, "lowest free bit wins")

	assert.NoError(a.MarkUsed(num + 1))
	num2, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(uint64(2), num2, "should not allocate something marked used")

	n, err = a.NumFree()
	assert.NoError(err)
	assert.Equal(max-3, n, "should have used 3 items")

	used, err := a.IsUsed(1)
	assert.NoError(err)
	assert.True(used)
	used, err = a.IsUsed(3)
	assert.NoError(err)
	assert.False(used)
}

func TestAllocBase(t *testing.T) {
	d := disk.NewMemDisk(4)
	a := MkAlloc(d, 2, 10, 100)
	num, err := a.AllocNum()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), num, "numbers are offset by base")

	blk, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), blk[0], "bitmap block should be persisted")
}

func TestMarkUsedBase(t *testing.T) {
	d := disk.NewMemDisk(4)
	a := MkAlloc(d, 2, 10, 100)
	require.NoError(t, a.MarkUsed(103))
	used, err := a.IsUsed(103)
	require.NoError(t, err)
	assert.True(t, used)
	used, err = a.IsUsed(100)
	require.NoError(t, err)
	assert.False(t, used)

	blk, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), blk[0], "bit 3 of the bitmap block")
	assert.Panics(t, func() { a.IsUsed(110) }, "outside the bitmap")
}

func TestAllocExhaust(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(4)
	max := uint64(13)
	a := MkAlloc(d, 1, max, 0)
	for i := uint64(0); i < max; i++ {
		num, err := a.AllocNum()
		require.NoError(t, err)
		assert.Equal(i, num)
	}
	_, err := a.AllocNum()
	assert.True(errors.Is(err, ErrFull))
	n, err := a.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(0), n)
}

func TestAllocDeterministic(t *testing.T) {
	run := func() []uint64 {
		d := disk.NewMemDisk(4)
		a := MkAlloc(d, 1, 64, 0)
		require.NoError(t, a.MarkUsed(0))
		require.NoError(t, a.MarkUsed(5))
		var nums []uint64
		for i := 0; i < 6; i++ {
			num, err := a.AllocNum()
			require.NoError(t, err)
			nums = append(nums, num)
		}
		return nums
	}
	first := run()
	assert.Equal(t, []uint64{1, 2, 3, 4, 6, 7}, first)
	assert.Equal(t, first, run())
}

func TestAllocFreshView(t *testing.T) {
	d := disk.NewMemDisk(4)
	a := MkAlloc(d, 1, 16, 0)
	for i := 0; i < 3; i++ {
		_, err := a.AllocNum()
		require.NoError(t, err)
	}
	// a second allocator over the same bitmap sees the persisted bits
	b := MkAlloc(d, 1, 16, 0)
	num, err := b.AllocNum()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), num)
}
