package fs

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/mit-pdos/go-tinyfs/alloc"
	"github.com/mit-pdos/go-tinyfs/dir"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/inode"
	"github.com/mit-pdos/go-tinyfs/super"
)

// errno is a failure code with a POSIX equivalent.
type errno struct {
	msg string
	no  syscall.Errno
}

func (e *errno) Error() string { return e.msg }

// Errno returns the POSIX error number for the failure.
func (e *errno) Errno() syscall.Errno { return e.no }

var (
	ErrNotExist    error = &errno{"file does not exist", syscall.ENOENT}
	ErrExist       error = &errno{"file already exists", syscall.EEXIST}
	ErrNotDir      error = &errno{"not a directory", syscall.ENOTDIR}
	ErrIsDir       error = &errno{"is a directory", syscall.EISDIR}
	ErrNoSpace     error = &errno{"no space left on device", syscall.ENOSPC}
	ErrInval       error = &errno{"invalid argument", syscall.EINVAL}
	ErrFBig        error = &errno{"file too large", syscall.EFBIG}
	ErrNameTooLong error = &errno{"file name too long", syscall.ENAMETOOLONG}
	ErrBadMagic    error = &errno{"bad superblock magic", syscall.EINVAL}
)

// Error records a failed operation and the path it was applied to.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno extracts the POSIX error number of err, or EIO if it has none.
func Errno(err error) syscall.Errno {
	var e *errno
	if errors.As(err, &e) {
		return e.no
	}
	return syscall.EIO
}

func classify(err error) error {
	switch {
	case errors.Is(err, dir.ErrNotFound):
		return ErrNotExist
	case errors.Is(err, dir.ErrExist):
		return ErrExist
	case errors.Is(err, dir.ErrNotDir):
		return ErrNotDir
	case errors.Is(err, dir.ErrFull), errors.Is(err, alloc.ErrFull),
		errors.Is(err, super.ErrTooSmall):
		return ErrNoSpace
	case errors.Is(err, dir.ErrNameTooLong):
		return ErrNameTooLong
	case errors.Is(err, dir.ErrEmptyName), errors.Is(err, inode.ErrRange),
		errors.Is(err, super.ErrLimits), errors.Is(err, disk.ErrPartial):
		return ErrInval
	case errors.Is(err, inode.ErrFBig):
		return ErrFBig
	}
	return nil
}

// mkError wraps err for op on path. Errors from the lower layers are tagged
// with the matching public error so errors.Is works against either.
func mkError(op, path string, err error) error {
	var e *errno
	if !errors.As(err, &e) {
		if pub := classify(err); pub != nil {
			err = fmt.Errorf("%w: %w", pub, err)
		}
	}
	return &Error{Op: op, Path: path, Err: err}
}
