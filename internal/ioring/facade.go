//go:build linux

package ioring

import (
	"golang.org/x/sys/unix"
)

// Facade is the single entry point the rest of the tree uses to talk to
// the kernel. It owns a Ring for the operations that are first-class on
// the submission queue (read, write, fsync, fallocate) and a fallbackPool
// for the rest of its operations (open-at, range copy, access-pattern
// hints, fchown/fchmod/futimens, ftruncate, mkdirat, symlinkat, linkat,
// unlinkat, mknodat, getdents) - callers see one uniform surface
// regardless of which path served the call. Extended-stat and xattr
// get/set/list are not part of the Facade; package direntry issues those
// calls itself.
type Facade struct {
	ring     *Ring
	fallback *fallbackPool
}

// New builds a Facade. If the kernel does not support io_uring (or
// IORING_FEAT_SINGLE_MMAP specifically), ring is nil: Read, Write, Fsync
// and Fallocate then issue their syscalls directly on the calling
// goroutine, and every other operation is served by the fallback pool as
// usual.
func New(queueDepth uint32, fallbackWorkers int) (*Facade, error) {
	ring, err := NewRing(queueDepth)
	if err != nil {
		ring = nil
	}
	return &Facade{ring: ring, fallback: newFallbackPool(fallbackWorkers)}, nil
}

// Close releases the ring and stops the fallback pool.
func (f *Facade) Close() error {
	f.fallback.close()
	if f.ring != nil {
		return f.ring.Close()
	}
	return nil
}

// Read submits a read of len(buf) bytes at off from fd into buf, which
// the caller retains ownership of until Read returns.
func (f *Facade) Read(fd int, buf []byte, off int64) (int, error) {
	if f.ring == nil {
		return unix.Pread(fd, buf, off)
	}
	c, err := f.ring.submit(sqe{
		Opcode: opRead,
		Fd:     int32(fd),
		Addr:   uint64(uintptr(unsafePointer(buf))),
		Len:    uint32(len(buf)),
		Off:    uint64(off),
	})
	if err != nil {
		return 0, err
	}
	if c.Res < 0 {
		return 0, unix.Errno(-c.Res)
	}
	return int(c.Res), nil
}

// Write submits a write of buf at off to fd, which the caller retains
// ownership of until Write returns.
func (f *Facade) Write(fd int, buf []byte, off int64) (int, error) {
	if f.ring == nil {
		return unix.Pwrite(fd, buf, off)
	}
	c, err := f.ring.submit(sqe{
		Opcode: opWrite,
		Fd:     int32(fd),
		Addr:   uint64(uintptr(unsafePointer(buf))),
		Len:    uint32(len(buf)),
		Off:    uint64(off),
	})
	if err != nil {
		return 0, err
	}
	if c.Res < 0 {
		return 0, unix.Errno(-c.Res)
	}
	return int(c.Res), nil
}

// Fsync issues fdatasync (or fsync when fullSync is set) on fd.
func (f *Facade) Fsync(fd int, fullSync bool) error {
	if f.ring == nil {
		return fallbackFsync(fd, fullSync)
	}
	var flags uint32
	if !fullSync {
		flags = 1 // IORING_FSYNC_DATASYNC
	}
	c, err := f.ring.submit(sqe{Opcode: opFsync, Fd: int32(fd), OpFlags: flags})
	if err != nil {
		return err
	}
	if c.Res < 0 {
		return unix.Errno(-c.Res)
	}
	return nil
}

// RangeCopy performs an in-kernel copy of up to len bytes from srcFd at
// srcOff to dstFd at dstOff, returning the number of bytes actually
// copied (which may be short; the caller loops).
func (f *Facade) RangeCopy(srcFd int, srcOff int64, dstFd int, dstOff int64, length int) (int, error) {
	return f.fallback.copyFileRange(srcFd, srcOff, dstFd, dstOff, length)
}

// OpenAt opens name relative to dirFd.
func (f *Facade) OpenAt(dirFd int, name string, flags int, mode uint32) (int, error) {
	return f.fallback.openAt(dirFd, name, flags, mode)
}

// Mkdirat creates a directory relative to dirFd.
func (f *Facade) Mkdirat(dirFd int, name string, mode uint32) error {
	return f.fallback.mkdirat(dirFd, name, mode)
}

// Symlinkat creates a symlink at newPath pointing to target.
func (f *Facade) Symlinkat(target string, dirFd int, newPath string) error {
	return f.fallback.symlinkat(target, dirFd, newPath)
}

// Linkat creates a hardlink from oldPath to newPath.
func (f *Facade) Linkat(oldDirFd int, oldPath string, newDirFd int, newPath string, flags int) error {
	return f.fallback.linkat(oldDirFd, oldPath, newDirFd, newPath, flags)
}

// Unlinkat removes name relative to dirFd.
func (f *Facade) Unlinkat(dirFd int, name string, flags int) error {
	return f.fallback.unlinkat(dirFd, name, flags)
}

// Mknodat creates a device/FIFO/socket node relative to dirFd.
func (f *Facade) Mknodat(dirFd int, name string, mode uint32, dev int) error {
	return f.fallback.mknodat(dirFd, name, mode, dev)
}

// Fallocate applies fallocate(2) with the given mode to [off, off+length)
// of fd - preallocation or, with FALLOC_FL_PUNCH_HOLE, hole punching.
func (f *Facade) Fallocate(fd int, mode uint32, off, length int64) error {
	if f.ring == nil {
		return fallbackFallocate(fd, mode, off, length)
	}
	// IORING_OP_FALLOCATE reads the length from addr and the mode from len.
	c, err := f.ring.submit(sqe{
		Opcode: opFallocate,
		Fd:     int32(fd),
		Off:    uint64(off),
		Addr:   uint64(length),
		Len:    mode,
	})
	if err != nil {
		return err
	}
	if c.Res < 0 {
		return unix.Errno(-c.Res)
	}
	return nil
}

// Fadvise hints the kernel's access-pattern expectations for fd.
func (f *Facade) Fadvise(fd int, off, length int64, advice int) error {
	return f.fallback.fadvise(fd, off, length, advice)
}

// Fchown, Fchmod and Futimens apply ownership, permission bits, and
// timestamps through an already-open file descriptor, never a path, so
// the caller is immune to rename/symlink races at the destination.
func (f *Facade) Fchown(fd int, uid, gid int) error { return f.fallback.fchown(fd, uid, gid) }
func (f *Facade) Fchmod(fd int, mode uint32) error  { return f.fallback.fchmod(fd, mode) }
func (f *Facade) Futimens(fd int, atime, mtime unix.Timespec) error {
	return f.fallback.futimens(fd, atime, mtime)
}

// Ftruncate sets fd's length directly, creating an implicit trailing
// hole when it extends the file - the copy strategy uses this to fix a
// destination's final size without having to write the zero bytes a
// trailing source hole would otherwise require.
func (f *Facade) Ftruncate(fd int, size int64) error {
	return f.fallback.ftruncate(fd, size)
}

// Getdents lists the names of a directory's entries.
func (f *Facade) Getdents(dirFd int) ([]string, error) {
	return f.fallback.getdents(dirFd)
}
