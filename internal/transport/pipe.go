package transport

import "os"

// PipeStream wraps a local os.Pipe() pair (or any pair of *os.File ends)
// as a Stream.
type PipeStream struct {
	r *os.File
	w *os.File
}

// NewPipePair returns two connected PipeStreams: writes to one's w are
// readable from the other's r, and vice versa.
func NewPipePair() (a, b *PipeStream, err error) {
	ar, bw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	br, aw, err := os.Pipe()
	if err != nil {
		_ = ar.Close()
		_ = bw.Close()
		return nil, nil, err
	}
	return &PipeStream{r: ar, w: aw}, &PipeStream{r: br, w: bw}, nil
}

// NewPipeStream wraps an already-opened read/write file pair, e.g. the
// ends the caller retains after handing the other ends to a child
// process.
func NewPipeStream(r, w *os.File) *PipeStream {
	return &PipeStream{r: r, w: w}
}

// ReadExact implements Stream.
func (p *PipeStream) ReadExact(n int) ([]byte, error) {
	return readExact(p.r, n)
}

// WriteAll implements Stream.
func (p *PipeStream) WriteAll(buf []byte) error {
	return writeAll(p.w, buf)
}

// Close implements Stream.
func (p *PipeStream) Close() error {
	rerr := p.r.Close()
	werr := p.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
