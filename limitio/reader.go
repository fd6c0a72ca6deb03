// Package limitio throttles the bandwidth used to read message contents.
package limitio

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type Reader struct {
	ctx     context.Context
	source  io.Reader
	limiter *rate.Limiter
}

// NewReader returns a reader that implements io.Reader with rate limiting.
func NewReader(r io.Reader) *Reader {
	return NewReaderWithContext(context.Background(), r)
}

// NewReaderWithContext stops waiting for the limiter when ctx is done.
func NewReaderWithContext(ctx context.Context, r io.Reader) *Reader {
	return &Reader{
		ctx:    ctx,
		source: r,
	}
}

// SetRateLimit sets rate limit (bytes/sec) to the reader.
func (s *Reader) SetRateLimit(bytesPerSec float64, burst int) {
	if bytesPerSec <= 0 || burst <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// Read never returns more than one burst of data at a time.
func (s *Reader) Read(p []byte) (int, error) {
	if s.limiter == nil {
		return s.source.Read(p)
	}
	if len(p) > s.limiter.Burst() {
		p = p[:s.limiter.Burst()]
	}
	n, err := s.source.Read(p)
	if n <= 0 {
		return n, err
	}
	// pay for what was read
	if waitErr := s.limiter.WaitN(s.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}
