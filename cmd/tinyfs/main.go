package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mit-pdos/go-tinyfs/check"
	"github.com/mit-pdos/go-tinyfs/disk"
	"github.com/mit-pdos/go-tinyfs/fs"
	"github.com/mit-pdos/go-tinyfs/fusefs"
	"github.com/mit-pdos/go-tinyfs/image"
	"github.com/mit-pdos/go-tinyfs/util"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: tinyfs <command> [flags]

commands:
  mkfs    format a disk image
  mount   serve a disk image through FUSE
  check   verify a disk image
  export  write a compressed copy of a disk image
  import  create a disk image from a compressed copy
`)
	os.Exit(2)
}

func fsFlags(set *flag.FlagSet) *fs.Options {
	opts := fs.DefaultOptions()
	set.Uint64Var(&opts.MaxInum, "inodes", opts.MaxInum, "number of inodes")
	set.Uint64Var(&opts.MaxDnum, "data", opts.MaxDnum, "maximum number of data blocks")
	set.Uint64Var(&opts.DiskBlocks, "blocks", opts.DiskBlocks, "size of a new disk image in blocks")
	set.BoolVar(&opts.Strict, "strict", opts.Strict, "refuse to reformat an unrecognized image")
	return &opts
}

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]
	set := flag.NewFlagSet(cmd, flag.ExitOnError)
	debug := set.Uint64("debug", 0, "debug level")
	diskPath := set.String("disk", "DISKFILE", "path of the disk image")

	var err error
	switch cmd {
	case "mkfs":
		opts := fsFlags(set)
		set.Parse(args)
		util.Debug = *debug
		err = mkfs(*diskPath, *opts)
	case "mount":
		opts := fsFlags(set)
		mnt := fusefs.MountOptions{}
		set.StringVar(&mnt.MountPoint, "mount", "", "mount point")
		set.BoolVar(&mnt.ReadOnly, "readonly", false, "mount read-only")
		set.BoolVar(&mnt.AllowOther, "allow-other", false, "allow other users to access the mount")
		set.BoolVar(&mnt.Debug, "fuse-debug", false, "log FUSE messages")
		set.Parse(args)
		util.Debug = *debug
		err = mount(*diskPath, *opts, mnt)
	case "check":
		workers := set.Int("workers", 8, "number of checker goroutines")
		set.Parse(args)
		util.Debug = *debug
		err = fsck(*diskPath, *workers)
	case "export":
		out := set.String("o", "", "output file")
		set.Parse(args)
		util.Debug = *debug
		err = export(*diskPath, *out)
	case "import":
		in := set.String("i", "", "input file")
		set.Parse(args)
		util.Debug = *debug
		err = imprt(*in, *diskPath)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func openDisk(path string) (disk.Disk, error) {
	n, err := disk.FileBlocks(path)
	if err != nil {
		return nil, err
	}
	return disk.NewFileDisk(path, n)
}

func mkfs(path string, opts fs.Options) error {
	d, err := disk.NewFileDisk(path, opts.DiskBlocks)
	if err != nil {
		return err
	}
	fsys, err := fs.Format(d, opts)
	if err != nil {
		d.Close()
		return err
	}
	sb := fsys.Super()
	log.Printf("%s: %d inodes, %d data blocks starting at block %d",
		path, sb.MaxInum, sb.MaxDnum, sb.DStart)
	return fsys.Unmount()
}

func mount(path string, opts fs.Options, mnt fusefs.MountOptions) error {
	if mnt.MountPoint == "" {
		return fmt.Errorf("-mount is required")
	}
	if _, err := os.Stat(mnt.MountPoint); os.IsNotExist(err) {
		log.Printf("Creating mount point %s", mnt.MountPoint)
		if err := os.MkdirAll(mnt.MountPoint, 0755); err != nil {
			return err
		}
	}
	fsys, err := fs.Mount(path, opts)
	if err != nil {
		return err
	}
	serr := fusefs.Serve(fsys, mnt)
	if err := fsys.Unmount(); err != nil {
		log.Printf("Unmount %s: %v", path, err)
	}
	return serr
}

func fsck(path string, workers int) error {
	d, err := openDisk(path)
	if err != nil {
		return err
	}
	defer d.Close()
	rep, err := check.Check(d, workers)
	if err != nil {
		return err
	}
	fmt.Printf("%d inodes (%d dirs, %d files), %d data blocks, %d entries\n",
		rep.Inodes, rep.Dirs, rep.Files, rep.Blocks, rep.Dirents)
	for _, p := range rep.Problems {
		fmt.Println(p)
	}
	if !rep.OK() {
		return fmt.Errorf("%d problems", len(rep.Problems))
	}
	return nil
}

func export(path, out string) error {
	d, err := openDisk(path)
	if err != nil {
		return err
	}
	defer d.Close()
	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return image.Export(d, w)
}

func imprt(in, path string) error {
	r := os.Stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	d, err := image.Import(r, path)
	if err != nil {
		return err
	}
	return d.Close()
}
