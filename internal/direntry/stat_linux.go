//go:build linux

package direntry

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rclone/arsync/internal/syncerr"
)

var (
	statxCheckOnce sync.Once
	statFn         func(dirFd int, name string, followSymlinks bool) (*Entry, error)
)

// Capabilities controls which optional attributes Stat reads, matching
// the negotiated capability set from the handshake (§4.2: "reads xattrs
// and ACLs only when the negotiated capability set requires them").
type Capabilities struct {
	Xattrs bool
	ACL    bool
}

// Stat issues exactly one extended-stat call against name (resolved
// relative to dirFd, or unix.AT_FDCWD for an absolute/cwd-relative path)
// so kind and size are read from a single atomic snapshot, never a
// separate stat+lstat pair. Symbolic links are never dereferenced unless
// followSymlinks is set.
func Stat(dirFd int, name string, followSymlinks bool, caps Capabilities) (*Entry, error) {
	statxCheckOnce.Do(func() {
		var stat unix.Statx_t
		if runtime.GOOS != "android" && unix.Statx(unix.AT_FDCWD, ".", 0, unix.STATX_ALL, &stat) != unix.ENOSYS {
			statFn = statViaStatx
		} else {
			statFn = statViaFstatat
		}
	})
	e, err := statFn(dirFd, name, followSymlinks)
	if err != nil {
		return nil, syncerr.NewLookupError(name, err)
	}
	if e.Kind == KindSymlink && !followSymlinks {
		buf := make([]byte, unix.PathMax)
		n, terr := unix.Readlinkat(dirFd, name, buf)
		if terr == nil {
			e.SymlinkTarget = string(buf[:n])
		} else if terr2 := readlinkFallback(dirFd, name, e); terr2 != nil {
			return nil, syncerr.NewLookupError(name, terr2)
		}
	}
	if caps.Xattrs || caps.ACL {
		if err := readXattrs(name, followSymlinks, caps, e); err != nil {
			return nil, syncerr.NewLookupError(name, err)
		}
	}
	e.Path = name
	return e, nil
}

func readlinkFallback(dirFd int, name string, e *Entry) error {
	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlinkat(dirFd, name, buf)
	if err != nil {
		return err
	}
	e.SymlinkTarget = string(buf[:n])
	return nil
}

func kindFromMode(mode uint32) Kind {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return KindRegular
	case unix.S_IFDIR:
		return KindDirectory
	case unix.S_IFLNK:
		return KindSymlink
	case unix.S_IFCHR:
		return KindCharDevice
	case unix.S_IFBLK:
		return KindBlockDevice
	case unix.S_IFIFO:
		return KindFIFO
	case unix.S_IFSOCK:
		return KindSocket
	default:
		return KindUnknown
	}
}

func statViaStatx(dirFd int, name string, followSymlinks bool) (*Entry, error) {
	flags := unix.AT_SYMLINK_NOFOLLOW
	if followSymlinks {
		flags = 0
	}
	var stat unix.Statx_t
	err := unix.Statx(dirFd, name, flags, unix.STATX_TYPE|unix.STATX_MODE|
		unix.STATX_UID|unix.STATX_GID|unix.STATX_ATIME|unix.STATX_MTIME|
		unix.STATX_CTIME|unix.STATX_NLINK|unix.STATX_SIZE|unix.STATX_INO,
		&stat)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Kind:      kindFromMode(uint32(stat.Mode)),
		Size:      int64(stat.Size),
		Mode:      uint32(stat.Mode) &^ unix.S_IFMT,
		UID:       stat.Uid,
		GID:       stat.Gid,
		LinkCount: uint64(stat.Nlink),
		Inode:     InodeKey{Device: uint64(stat.Dev_major)<<32 | uint64(stat.Dev_minor), Inode: stat.Ino},
		Atime:     time.Unix(stat.Atime.Sec, int64(stat.Atime.Nsec)),
		Mtime:     time.Unix(stat.Mtime.Sec, int64(stat.Mtime.Nsec)),
		Ctime:     time.Unix(stat.Ctime.Sec, int64(stat.Ctime.Nsec)),
	}
	if stat.Rdev_major != 0 || stat.Rdev_minor != 0 {
		e.Rdev = uint64(stat.Rdev_major)<<32 | uint64(stat.Rdev_minor)
	}
	return e, nil
}

func statViaFstatat(dirFd int, name string, followSymlinks bool) (*Entry, error) {
	flags := unix.AT_SYMLINK_NOFOLLOW
	if followSymlinks {
		flags = 0
	}
	var stat unix.Stat_t
	err := unix.Fstatat(dirFd, name, &stat, flags)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Kind:      kindFromMode(stat.Mode),
		Size:      stat.Size,
		Mode:      stat.Mode &^ unix.S_IFMT,
		UID:       stat.Uid,
		GID:       stat.Gid,
		LinkCount: uint64(stat.Nlink),
		Inode:     InodeKey{Device: uint64(stat.Dev), Inode: stat.Ino},
		Rdev:      uint64(stat.Rdev),
		// nolint: unconvert
		Atime: time.Unix(int64(stat.Atim.Sec), int64(stat.Atim.Nsec)),
		Mtime: time.Unix(int64(stat.Mtim.Sec), int64(stat.Mtim.Nsec)),
		Ctime: time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec)),
	}
	return e, nil
}
