//go:build linux

package direntry

import (
	"fmt"
	"sync/atomic"
	"syscall"

	"github.com/pkg/xattr"
)

// aclAccessName and aclDefaultName are the two well-known xattr names
// that hold a POSIX ACL on Linux. There is no dedicated ACL library
// available, so ACL blobs are read and written as ordinary xattrs under
// these names.
const (
	aclAccessName  = "system.posix_acl_access"
	aclDefaultName = "system.posix_acl_default"
)

// xattrSupported tracks whether a prior call has already observed that
// the filesystem under inspection doesn't support xattrs, so later calls
// in the same run short-circuit rather than repeat a failing syscall.
var xattrSupported atomic.Int32

func init() {
	xattrSupported.Store(1)
}

func isXattrNotSupported(err error) bool {
	xerr, ok := err.(*xattr.Error)
	if !ok {
		return false
	}
	return xerr.Err == syscall.EINVAL || xerr.Err == syscall.ENOTSUP || xerr.Err == xattr.ENOATTR
}

// readXattrs populates e.Xattrs and e.ACL per caps, reading via the
// symlink-safe LList/LGet variants unless followSymlinks is set.
func readXattrs(path string, followSymlinks bool, caps Capabilities, e *Entry) error {
	if xattrSupported.Load() == 0 {
		return nil
	}
	list, err := listXattr(path, followSymlinks)
	if err != nil {
		if isXattrNotSupported(err) {
			xattrSupported.Store(0)
			return nil
		}
		return fmt.Errorf("list xattr: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	if caps.Xattrs {
		e.Xattrs = make(map[string][]byte)
	}
	if caps.ACL {
		e.ACL = make(map[string][]byte)
	}
	for _, name := range list {
		isACL := name == aclAccessName || name == aclDefaultName
		if isACL && !caps.ACL {
			continue
		}
		if !isACL && !caps.Xattrs {
			continue
		}
		v, err := getXattr(path, name, followSymlinks)
		if err != nil {
			if isXattrNotSupported(err) {
				xattrSupported.Store(0)
				return nil
			}
			return fmt.Errorf("get xattr %q: %w", name, err)
		}
		if isACL {
			e.ACL[name] = v
		} else {
			e.Xattrs[name] = v
		}
	}
	return nil
}

func listXattr(path string, followSymlinks bool) ([]string, error) {
	if followSymlinks {
		return xattr.List(path)
	}
	return xattr.LList(path)
}

func getXattr(path, name string, followSymlinks bool) ([]byte, error) {
	if followSymlinks {
		return xattr.Get(path, name)
	}
	return xattr.LGet(path, name)
}

func setXattr(path, name string, value []byte, followSymlinks bool) error {
	if followSymlinks {
		return xattr.Set(path, name, value)
	}
	return xattr.LSet(path, name, value)
}

// WriteXattrs applies e's Xattrs and ACL maps to path, in that order -
// extended attributes before ACL, matching the fixed metadata-application
// order in the entry pipeline.
func WriteXattrs(path string, e *Entry, followSymlinks bool) error {
	if xattrSupported.Load() == 0 {
		return nil
	}
	for name, v := range e.Xattrs {
		if err := setXattr(path, name, v, followSymlinks); err != nil {
			if isXattrNotSupported(err) {
				xattrSupported.Store(0)
				return nil
			}
			return fmt.Errorf("set xattr %q: %w", name, err)
		}
	}
	for name, v := range e.ACL {
		if err := setXattr(path, name, v, followSymlinks); err != nil {
			if isXattrNotSupported(err) {
				xattrSupported.Store(0)
				return nil
			}
			return fmt.Errorf("set acl %q: %w", name, err)
		}
	}
	return nil
}
