package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-tinyfs/common"
)

func TestBitAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkBitAddr(1, 5)
	assert.Equal(MkAddr(1, 5), a)
	a = MkBitAddr(1, common.NBITBLOCK+3)
	assert.Equal(MkAddr(2, 3), a, "bit should spill into the next bitmap block")
}

func TestObjAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkObjAddr(3, 0, common.INODESZ)
	assert.Equal(common.Bnum(3), a.Blkno)
	assert.Equal(uint64(0), a.ByteOff())

	a = MkObjAddr(3, common.INODEBLK+2, common.INODESZ)
	assert.Equal(common.Bnum(4), a.Blkno)
	assert.Equal(2*common.INODESZ, a.ByteOff())
}
