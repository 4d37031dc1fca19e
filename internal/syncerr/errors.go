// Package syncerr defines the error taxonomy raised by arsync's pipeline
// and accumulated over a traversal. Every per-entry type carries the
// offending path; those with an underlying cause (Lookup, Create,
// Transfer, Metadata and Link errors) wrap it with github.com/pkg/errors'
// WithStack so a stack trace survives up to the accumulator.
// ProtocolError carries a reason instead of a path and keeps its cause as
// given.
package syncerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Attribute identifies which piece of metadata a MetadataError concerns.
type Attribute string

// Attributes a MetadataError can be tagged with.
const (
	AttrOwner Attribute = "owner"
	AttrMode  Attribute = "mode"
	AttrTimes Attribute = "times"
	AttrXattr Attribute = "xattr"
	AttrACL   Attribute = "acl"
)

// LookupError means the source entry could not be stat'd or opened.
type LookupError struct {
	Path string
	Err  error
}

func (e *LookupError) Error() string { return fmt.Sprintf("lookup %s: %v", e.Path, e.Err) }
func (e *LookupError) Unwrap() error { return e.Err }

// NewLookupError wraps err as a LookupError for path.
func NewLookupError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &LookupError{Path: path, Err: errors.WithStack(err)}
}

// ClassifyError means the entry's kind is unsupported or unknown while
// preservation was requested.
type ClassifyError struct {
	Path string
	Kind string
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classify %s: unsupported entry kind %q", e.Path, e.Kind)
}

// NewClassifyError builds a ClassifyError.
func NewClassifyError(path, kind string) error {
	return &ClassifyError{Path: path, Kind: kind}
}

// CreateError means the destination entry could not be created.
type CreateError struct {
	Path string
	Err  error
}

func (e *CreateError) Error() string { return fmt.Sprintf("create %s: %v", e.Path, e.Err) }
func (e *CreateError) Unwrap() error { return e.Err }

// NewCreateError wraps err as a CreateError for path.
func NewCreateError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &CreateError{Path: path, Err: errors.WithStack(err)}
}

// TransferError means a short read, write failure, or in-kernel copy
// failure occurred mid-file.
type TransferError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s at offset %d: %v", e.Path, e.Offset, e.Err)
}
func (e *TransferError) Unwrap() error { return e.Err }

// NewTransferError wraps err as a TransferError for path at the given
// byte offset.
func NewTransferError(path string, offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &TransferError{Path: path, Offset: offset, Err: errors.WithStack(err)}
}

// MetadataError means chown/chmod/utimens/xattr/ACL application failed,
// tagged with the specific attribute so partial-success state is
// reportable.
type MetadataError struct {
	Path string
	Attr Attribute
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s (%s): %v", e.Path, e.Attr, e.Err)
}
func (e *MetadataError) Unwrap() error { return e.Err }

// NewMetadataError wraps err as a MetadataError for path/attr.
func NewMetadataError(path string, attr Attribute, err error) error {
	if err == nil {
		return nil
	}
	return &MetadataError{Path: path, Attr: attr, Err: errors.WithStack(err)}
}

// LinkError means linkat or symlinkat failed.
type LinkError struct {
	Path   string
	Target string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.Path, e.Target, e.Err)
}
func (e *LinkError) Unwrap() error { return e.Err }

// NewLinkError wraps err as a LinkError.
func NewLinkError(path, target string, err error) error {
	if err == nil {
		return nil
	}
	return &LinkError{Path: path, Target: target, Err: errors.WithStack(err)}
}

// ProtocolError means a handshake version/capability mismatch, truncated
// stream, or malformed bytes was observed. Protocol errors are fatal to
// the session.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Reason)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError builds a ProtocolError.
func NewProtocolError(reason string, err error) error {
	return &ProtocolError{Reason: reason, Err: err}
}

// CancelledError is propagated from the cancellation token.
type CancelledError struct {
	Path string
}

func (e *CancelledError) Error() string {
	if e.Path == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %s", e.Path)
}

// NewCancelledError builds a CancelledError for path (may be empty).
func NewCancelledError(path string) error {
	return &CancelledError{Path: path}
}

// IsDirectoryPrune reports whether err should prune the subtree it
// occurred in rather than merely being recorded and skipped - per the
// propagation policy only a directory CreateError prunes.
func IsDirectoryPrune(err error) bool {
	var ce *CreateError
	return errors.As(err, &ce)
}

// IsFatal reports whether err should abort the whole session rather than
// being accumulated against a single entry.
func IsFatal(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
