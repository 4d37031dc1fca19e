//go:build linux

package ioring

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fallbackPool runs kernel operations that are not first-class on the
// submission ring on a small fixed pool of goroutines, so a caller
// blocked in a syscall never stalls the ring's own completion draining.
// Jobs are handed to the workers over a single unbuffered channel.
type fallbackPool struct {
	jobs chan func()
	done chan struct{}
}

func newFallbackPool(workers int) *fallbackPool {
	if workers <= 0 {
		workers = 4
	}
	p := &fallbackPool{jobs: make(chan func()), done: make(chan struct{})}
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *fallbackPool) loop() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
		case <-p.done:
			return
		}
	}
}

func (p *fallbackPool) close() {
	close(p.done)
}

// run submits fn to a worker and blocks for its result.
func (p *fallbackPool) run(fn func() error) error {
	result := make(chan error, 1)
	p.jobs <- func() { result <- fn() }
	return <-result
}

func (p *fallbackPool) openAt(dirFd int, name string, flags int, mode uint32) (fd int, err error) {
	e := p.run(func() error {
		var e2 error
		fd, e2 = unix.Openat(dirFd, name, flags, mode)
		return e2
	})
	return fd, e
}

func (p *fallbackPool) mkdirat(dirFd int, name string, mode uint32) error {
	return p.run(func() error { return unix.Mkdirat(dirFd, name, mode) })
}

func (p *fallbackPool) symlinkat(target string, dirFd int, newPath string) error {
	return p.run(func() error { return unix.Symlinkat(target, dirFd, newPath) })
}

func (p *fallbackPool) linkat(oldDirFd int, oldPath string, newDirFd int, newPath string, flags int) error {
	return p.run(func() error { return unix.Linkat(oldDirFd, oldPath, newDirFd, newPath, flags) })
}

func (p *fallbackPool) unlinkat(dirFd int, name string, flags int) error {
	return p.run(func() error { return unix.Unlinkat(dirFd, name, flags) })
}

func (p *fallbackPool) mknodat(dirFd int, name string, mode uint32, dev int) error {
	return p.run(func() error { return unix.Mknodat(dirFd, name, mode, dev) })
}

func (p *fallbackPool) fadvise(fd int, off, length int64, advice int) error {
	return p.run(func() error { return unix.Fadvise(fd, off, length, advice) })
}

func (p *fallbackPool) fchown(fd, uid, gid int) error {
	return p.run(func() error { return unix.Fchown(fd, uid, gid) })
}

func (p *fallbackPool) fchmod(fd int, mode uint32) error {
	return p.run(func() error { return unix.Fchmod(fd, mode) })
}

func (p *fallbackPool) ftruncate(fd int, size int64) error {
	return p.run(func() error { return unix.Ftruncate(fd, size) })
}

func (p *fallbackPool) futimens(fd int, atime, mtime unix.Timespec) error {
	return p.run(func() error { return futimens(fd, atime, mtime) })
}

// futimens applies atime/mtime through fd alone, with no path involved.
// x/sys/unix has no futimens wrapper (UtimesNanoAt always requires a
// path), but utimensat treats a NULL pathname as "operate on dirfd
// itself" since Linux 2.6.22, so this issues that syscall directly
// with a nil pathname pointer - the one raw syscall in this file, kept
// minimal because no wrapper exists for exactly this argument shape.
func futimens(fd int, atime, mtime unix.Timespec) error {
	times := [2]unix.Timespec{atime, mtime}
	_, _, errno := unix.Syscall6(unix.SYS_UTIMENSAT, uintptr(fd), 0, uintptr(unsafe.Pointer(&times[0])), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (p *fallbackPool) copyFileRange(srcFd int, srcOff int64, dstFd int, dstOff int64, length int) (int, error) {
	var n int
	err := p.run(func() error {
		so, do := srcOff, dstOff
		written, e := unix.CopyFileRange(srcFd, &so, dstFd, &do, length, 0)
		n = written
		return e
	})
	return n, err
}

func (p *fallbackPool) getdents(dirFd int) ([]string, error) {
	var names []string
	err := p.run(func() error {
		buf := make([]byte, 64*1024)
		for {
			n, err := unix.Getdents(dirFd, buf)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			_, _, ns, parseErr := unix.ParseDirent(buf[:n], -1, names)
			if parseErr != nil {
				return parseErr
			}
			names = ns
		}
	})
	return names, err
}

func fallbackFsync(fd int, fullSync bool) error {
	if fullSync {
		return syscall.Fsync(fd)
	}
	return unix.Fdatasync(fd)
}

func fallbackFallocate(fd int, mode uint32, off, length int64) error {
	return unix.Fallocate(fd, mode, off, length)
}
