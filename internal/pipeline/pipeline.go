// Package pipeline implements the per-entry state machine (C4): classify,
// dispatch to the appropriate creation strategy, apply metadata in the
// fixed order the spec requires, and apply the sync policy. Ownership,
// permission bits and timestamps are applied through the file descriptor
// obtained from the create/open call, not the destination's string path.
// Extended attributes and ACLs are written by destination path (without
// following symlinks), and a symlink's timestamps are applied by path
// with AT_SYMLINK_NOFOLLOW; those writes are not covered by the
// descriptor's protection against rename races.
package pipeline

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/rclone/arsync/internal/copystrategy"
	"github.com/rclone/arsync/internal/direntry"
	"github.com/rclone/arsync/internal/hardlink"
	"github.com/rclone/arsync/internal/ioring"
	"github.com/rclone/arsync/internal/rlog"
	"github.com/rclone/arsync/internal/stats"
	"github.com/rclone/arsync/internal/syncerr"
)

// Options toggles which metadata classes the pipeline preserves,
// mirroring the CLI's archive/preserve-* flags (§6).
type Options struct {
	Archive          bool
	PreserveXattrs   bool
	PreserveACL      bool
	PreserveHardlink bool
	CopyDevices      bool
	OneFilesystem    bool
	Durable          bool
}

// Pipeline carries the collaborators a single entry's processing needs.
// It holds no per-entry state itself; all mutable per-entry state lives
// on the stack of Process.
type Pipeline struct {
	Facade *ioring.Facade
	Links  *hardlink.Tracker
	Opts   Options
	Stats  *stats.Counters
	SrcDev uint64 // source root device, for one-filesystem enforcement
}

// Process runs the full entry state machine for one source entry, writing
// to destPath. For a directory it only creates the directory; callers
// (the scheduler) are responsible for recursing into children and must
// call ApplyDirMetadata once every child has committed.
func (p *Pipeline) Process(src *direntry.Entry, destPath string) error {
	if p.Opts.OneFilesystem && src.Inode.Device != p.SrcDev {
		rlog.Debugf(src.Path, "skipping: crosses filesystem boundary")
		return nil
	}
	switch src.Kind {
	case direntry.KindDirectory:
		return p.createDirectory(src, destPath)
	case direntry.KindRegular:
		if p.Opts.PreserveHardlink && src.IsMultiLinked() {
			return p.processHardlinkCandidate(src, destPath)
		}
		return p.copyRegular(src, destPath)
	case direntry.KindSymlink:
		return p.createSymlink(src, destPath)
	case direntry.KindCharDevice, direntry.KindBlockDevice, direntry.KindFIFO, direntry.KindSocket:
		return p.createSpecial(src, destPath)
	default:
		return syncerr.NewClassifyError(src.Path, src.Kind.String())
	}
}

// createDirectory creates destPath with the source mode plus owner rwx
// (so children can be created inside it), umask cleared. Final mode and
// timestamps are deferred to ApplyDirMetadata.
func (p *Pipeline) createDirectory(src *direntry.Entry, destPath string) error {
	oldUmask := unix.Umask(0)
	err := p.Facade.Mkdirat(unix.AT_FDCWD, destPath, src.Mode|0700)
	unix.Umask(oldUmask)
	if err != nil && err != unix.EEXIST {
		return syncerr.NewCreateError(destPath, err)
	}
	return nil
}

// ApplyDirMetadata applies a directory's metadata once all its children
// have committed, preserving its mtime.
func (p *Pipeline) ApplyDirMetadata(src *direntry.Entry, destPath string) error {
	fd, err := p.Facade.OpenAt(unix.AT_FDCWD, destPath, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return syncerr.NewMetadataError(destPath, syncerr.AttrTimes, err)
	}
	defer unix.Close(fd)
	return p.applyMetadata(src, destPath, fd, false)
}

// processHardlinkCandidate consults the hardlink tracker and either
// performs the full copy as the first writer or awaits the latch and
// issues a link.
func (p *Pipeline) processHardlinkCandidate(src *direntry.Entry, destPath string) error {
	decision, firstPath, latch := p.Links.Observe(src.Inode, destPath)
	if decision == hardlink.FirstWriter {
		err := p.copyRegular(src, destPath)
		latch.Resolve(err)
		if err != nil {
			// Forget the failed record so a later Observe for this inode
			// (if the traversal encounters it again) gets a fresh
			// FirstWriter race instead of being wedged behind a failure.
			p.Links.Forget(src.Inode)
		}
		return err
	}
	if err := latch.Wait(); err != nil {
		rlog.Debugf(destPath, "first writer for inode failed, copying independently: %v", err)
		return p.copyRegular(src, destPath)
	}
	if err := p.Facade.Linkat(unix.AT_FDCWD, firstPath, unix.AT_FDCWD, destPath, 0); err != nil {
		return syncerr.NewLinkError(destPath, firstPath, err)
	}
	if p.Stats != nil {
		p.Stats.IncEntriesLinked()
	}
	return nil
}

func (p *Pipeline) copyRegular(src *direntry.Entry, destPath string) error {
	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return syncerr.NewCreateError(destPath, err)
	}
	defer dst.Close()

	srcFile, err := os.Open(src.Path)
	if err != nil {
		return syncerr.NewLookupError(src.Path, err)
	}
	defer srcFile.Close()

	sameFS, err := sameFilesystem(srcFile, dst)
	if err != nil {
		return syncerr.NewLookupError(destPath, err)
	}
	result, err := copystrategy.Copy(p.Facade, srcFile, dst, src.Size, sameFS, p.Opts.Durable, destPath)
	if err != nil {
		return err
	}
	if p.Stats != nil {
		p.Stats.AddBytesWritten(result.BytesWritten)
		p.Stats.AddBytesSparse(result.BytesSparse)
	}
	return p.applyMetadata(src, destPath, int(dst.Fd()), false)
}

// sameFilesystem reports whether src and dst - both already-open files -
// reside on the same filesystem, per §4.5 step 3's range-copy gate. This
// stats both sides directly rather than comparing against the source
// root's device, since a backup destination is ordinarily a different
// filesystem from the source even though every source entry shares the
// source root's device.
func sameFilesystem(src, dst *os.File) (bool, error) {
	var srcStat, dstStat unix.Stat_t
	if err := unix.Fstat(int(src.Fd()), &srcStat); err != nil {
		return false, err
	}
	if err := unix.Fstat(int(dst.Fd()), &dstStat); err != nil {
		return false, err
	}
	return srcStat.Dev == dstStat.Dev, nil
}

func (p *Pipeline) createSymlink(src *direntry.Entry, destPath string) error {
	_ = p.Facade.Unlinkat(unix.AT_FDCWD, destPath, 0)
	if err := p.Facade.Symlinkat(src.SymlinkTarget, unix.AT_FDCWD, destPath); err != nil {
		return syncerr.NewLinkError(destPath, src.SymlinkTarget, err)
	}
	// Linux does not support AT_SYMLINK_NOFOLLOW for fchmodat, so only
	// timestamps are applied to a symlink, via the path with
	// AT_SYMLINK_NOFOLLOW - never the (nonexistent) file descriptor form.
	return p.applySymlinkMetadata(src, destPath)
}

func (p *Pipeline) createSpecial(src *direntry.Entry, destPath string) error {
	if !p.Opts.CopyDevices && (src.Kind == direntry.KindCharDevice || src.Kind == direntry.KindBlockDevice) {
		rlog.Debugf(src.Path, "skipping device node: copy-devices not set")
		return nil
	}
	_ = p.Facade.Unlinkat(unix.AT_FDCWD, destPath, 0)
	mode := src.Mode
	switch src.Kind {
	case direntry.KindCharDevice:
		mode |= unix.S_IFCHR
	case direntry.KindBlockDevice:
		mode |= unix.S_IFBLK
	case direntry.KindFIFO:
		mode |= unix.S_IFIFO
	case direntry.KindSocket:
		mode |= unix.S_IFSOCK
	}
	if err := p.Facade.Mknodat(unix.AT_FDCWD, destPath, mode, int(src.Rdev)); err != nil {
		return syncerr.NewCreateError(destPath, err)
	}
	fd, err := p.Facade.OpenAt(unix.AT_FDCWD, destPath, unix.O_PATH, 0)
	if err != nil {
		return syncerr.NewMetadataError(destPath, syncerr.AttrTimes, err)
	}
	defer unix.Close(fd)
	return p.applyMetadata(src, destPath, fd, true)
}

// applyMetadata applies attributes in the fixed order the spec requires:
// extended attributes, then ACL, then owner/group, then permission bits
// (setuid last, implicit in Mode), then timestamps - applied through fd,
// after everything else, so they reflect the source rather than our own
// writes.
func (p *Pipeline) applyMetadata(src *direntry.Entry, destPath string, fd int, pathOnly bool) error {
	if p.Opts.PreserveXattrs && len(src.Xattrs) > 0 {
		if err := direntry.WriteXattrs(destPath, src, false); err != nil {
			return syncerr.NewMetadataError(destPath, syncerr.AttrXattr, err)
		}
	}
	if p.Opts.PreserveACL && len(src.ACL) > 0 {
		if err := direntry.WriteXattrs(destPath, &direntry.Entry{ACL: src.ACL}, false); err != nil {
			return syncerr.NewMetadataError(destPath, syncerr.AttrACL, err)
		}
	}
	if p.Opts.Archive {
		if err := p.Facade.Fchown(fd, int(src.UID), int(src.GID)); err != nil {
			rlog.Debugf(destPath, "fchown failed (insufficient privilege?): %v", err)
		}
		if !pathOnly {
			if err := p.Facade.Fchmod(fd, src.Mode); err != nil {
				return syncerr.NewMetadataError(destPath, syncerr.AttrMode, err)
			}
		}
		atime := unix.NsecToTimespec(src.Atime.UnixNano())
		mtime := unix.NsecToTimespec(src.Mtime.UnixNano())
		if err := p.Facade.Futimens(fd, atime, mtime); err != nil {
			return syncerr.NewMetadataError(destPath, syncerr.AttrTimes, err)
		}
	}
	return nil
}

// applySymlinkMetadata applies timestamps to a symlink via
// AT_SYMLINK_NOFOLLOW; Linux has no through-descriptor form for a
// symlink's own timestamps, so this is the one path-based metadata write
// in the pipeline, and it is intentionally race-safe because a symlink
// cannot itself be reopened to a different file the way a regular path
// can.
func (p *Pipeline) applySymlinkMetadata(src *direntry.Entry, destPath string) error {
	if !p.Opts.Archive {
		return nil
	}
	utimes := [2]unix.Timespec{
		unix.NsecToTimespec(src.Atime.UnixNano()),
		unix.NsecToTimespec(src.Mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, destPath, utimes[:], unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return syncerr.NewMetadataError(destPath, syncerr.AttrTimes, &os.PathError{Op: "lchtimes", Path: destPath, Err: err})
	}
	return nil
}

// DestinationPath joins a destination root with a relative path the same
// way filepath.Join would, kept as a named helper so callers don't
// inline path-joining logic that differs subtly across the tree.
func DestinationPath(root, rel string) string {
	return filepath.Join(root, rel)
}
