package fusefs

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	tinyfs "github.com/mit-pdos/go-tinyfs/fs"
	"github.com/mit-pdos/go-tinyfs/util"
)

type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	// Debug logs every FUSE message.
	Debug bool
}

// Serve mounts fsys at opts.MountPoint and serves requests until the file
// system is unmounted or the process receives SIGINT or SIGTERM.
func Serve(fsys *tinyfs.FileSystem, opts MountOptions) error {
	mopts := []fuse.MountOption{
		fuse.FSName("tinyfs"),
		fuse.Subtype("tinyfs"),
	}
	if opts.ReadOnly {
		mopts = append(mopts, fuse.ReadOnly())
	}
	if opts.AllowOther {
		mopts = append(mopts, fuse.AllowOther())
	}
	if opts.Debug {
		fuse.Debug = func(msg interface{}) {
			util.DPrintf(0, "fuse: %v\n", msg)
		}
	}

	c, err := fuse.Mount(opts.MountPoint, mopts...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", opts.MountPoint, err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- fs.Serve(c, NewFS(fsys))
	}()
	util.DPrintf(0, "Serving tinyfs at %s\n", opts.MountPoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-done:
		return err
	case s := <-sig:
		util.DPrintf(0, "Received %v, unmounting %s\n", s, opts.MountPoint)
		if err := fuse.Unmount(opts.MountPoint); err != nil {
			return fmt.Errorf("unmount %s: %w", opts.MountPoint, err)
		}
		return <-done
	}
}
