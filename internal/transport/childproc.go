package transport

import (
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/rclone/arsync/internal/rlog"
)

// ChildStream spawns a peer binary (commonly "rsync --server ...") and
// wraps its stdin/stdout as a Stream; the child's stderr is merged into
// diagnostics rather than the stream itself.
type ChildStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.Reader
}

// SpawnChild starts name with args as a peer, wiring its stdio the way
// the transport expects. The returned ChildStream owns the subprocess;
// Close cancels its context and waits for it to exit.
func SpawnChild(name string, args ...string) (*ChildStream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	cmd.Stderr = &diagnosticWriter{}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	return &ChildStream{cmd: cmd, cancel: cancel, stdin: stdin, stdout: stdout}, nil
}

// ReadExact implements Stream.
func (c *ChildStream) ReadExact(n int) ([]byte, error) {
	return readExact(c.stdout, n)
}

// WriteAll implements Stream.
func (c *ChildStream) WriteAll(buf []byte) error {
	return writeAll(c.stdin, buf)
}

// Close cancels the child's context (killing it if still running) and
// waits for it to exit.
func (c *ChildStream) Close() error {
	c.cancel()
	if c.cmd.ProcessState != nil {
		return nil
	}
	return c.cmd.Wait()
}

type diagnosticWriter struct{}

func (d *diagnosticWriter) Write(p []byte) (int, error) {
	rlog.Debugf("peer", "stderr: %s", string(p))
	return len(p), nil
}
