// Package transport implements the transport abstraction (C7): a
// bidirectional byte stream with read_exact/write_all semantics, over
// either a local pipe pair or a spawned peer's stdio.
package transport

import (
	"fmt"
	"io"

	"github.com/rclone/arsync/internal/syncerr"
)

// Stream is the contract every transport implementation satisfies.
// ReadExact and WriteAll are the only operations the handshake and
// downstream sync logic use.
type Stream interface {
	// ReadExact reads exactly n bytes or returns an error. A premature
	// EOF (fewer than n bytes available, stream closed) is always an
	// error - there is no short-read success case on this contract.
	ReadExact(n int) ([]byte, error)
	// WriteAll writes all of buf or returns an error.
	WriteAll(buf []byte) error
	// Close releases the transport's resources.
	Close() error
}

// readExact is shared by every Stream implementation: io.ReadFull
// semantics, with any EOF before n bytes wrapped as a protocol error. The
// stream keeps no record of whether a handshake over it has completed, so
// an EOF is an error in every state.
func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, syncerr.NewProtocolError(fmt.Sprintf("premature end of stream after %d of %d bytes", read, n), err)
		}
		return nil, syncerr.NewProtocolError("read failed", err)
	}
	return buf, nil
}

func writeAll(w io.Writer, buf []byte) error {
	_, err := w.Write(buf)
	if err != nil {
		return syncerr.NewProtocolError("write failed", err)
	}
	return nil
}
