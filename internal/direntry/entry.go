// Package direntry implements the metadata oracle (C2): a one-shot
// extended-stat of a directory entry plus, when the negotiated capability
// set requires it, its extended attributes and ACL blob.
package direntry

import "time"

// Kind enumerates the entry kinds the pipeline can dispatch on.
type Kind int

// Entry kinds, mirroring the POSIX type bits surfaced by statx.
const (
	KindUnknown Kind = iota
	KindRegular
	KindDirectory
	KindSymlink
	KindCharDevice
	KindBlockDevice
	KindFIFO
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindCharDevice:
		return "chardev"
	case KindBlockDevice:
		return "blockdev"
	case KindFIFO:
		return "fifo"
	case KindSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// InodeKey identifies an inode within a single traversal. Keys are only
// meaningful within one run; they are never persisted.
type InodeKey struct {
	Device uint64
	Inode  uint64
}

// Entry is the immutable value produced by Stat. Copies are never
// mutated in place.
type Entry struct {
	Path string
	Kind Kind

	Size  int64
	Mode  uint32 // permission bits, including setuid/setgid/sticky
	UID   uint32
	GID   uint32
	Rdev  uint64 // major/minor, valid for device kinds

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	LinkCount uint64
	Inode     InodeKey

	// SymlinkTarget is populated only when Kind == KindSymlink.
	SymlinkTarget string

	// Xattrs maps attribute name to raw value. Populated only when the
	// caller's capability set requested xattr preservation.
	Xattrs map[string][]byte

	// ACL holds the raw system.posix_acl_{access,default} blobs, keyed
	// by that xattr name. Populated only when ACL preservation was
	// requested.
	ACL map[string][]byte
}

// IsMultiLinked reports whether this entry's inode has more than one
// directory entry pointing to it, meaning C3 must be consulted.
func (e *Entry) IsMultiLinked() bool {
	return e.Kind == KindRegular && e.LinkCount > 1
}
