package core

import (
	"io"
	"time"
)

// ChunkPolicy controls how a payload is metered into a driver-managed spool buffer.
type ChunkPolicy struct {
	ChunkSize int
	// ChunkDelay follows every chunk once the payload needs more than
	// BackToBackChunks chunks.
	ChunkDelay       time.Duration
	BackToBackChunks int
	// SettleDelay is observed after the last chunk, before the document is finalized.
	SettleDelay time.Duration
}

var DefaultChunkPolicy = ChunkPolicy{
	ChunkSize:        1024,
	ChunkDelay:       5 * time.Millisecond,
	BackToBackChunks: 2,
	SettleDelay:      50 * time.Millisecond,
}

// ChunkCount returns ceil(n/size).
func ChunkCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

type ChunkedWriter struct {
	policy ChunkPolicy
	sleep  func(time.Duration)
}

func NewChunkedWriter(policy ChunkPolicy) *ChunkedWriter {
	if policy.ChunkSize <= 0 {
		policy.ChunkSize = DefaultChunkPolicy.ChunkSize
	}
	return &ChunkedWriter{policy: policy, sleep: time.Sleep}
}

// WithSleep replaces time.Sleep, so tests can observe delays without waiting.
func (w *ChunkedWriter) WithSleep(sleep func(time.Duration)) *ChunkedWriter {
	w.sleep = sleep
	return w
}

func (w *ChunkedWriter) Policy() ChunkPolicy {
	return w.policy
}

// WriteAll writes payload to dst in policy-sized chunks and returns the number
// of bytes accepted. The settle delay only runs after a complete write.
func (w *ChunkedWriter) WriteAll(dst io.Writer, payload []byte) (int, error) {
	size := w.policy.ChunkSize
	total := ChunkCount(len(payload), size)
	paced := total > w.policy.BackToBackChunks && w.policy.ChunkDelay > 0

	written := 0
	for i := 0; i < total; i++ {
		end := written + size
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[written:end]

		n, err := dst.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, io.ErrShortWrite
		}

		if paced {
			w.sleep(w.policy.ChunkDelay)
		}
	}

	if w.policy.SettleDelay > 0 {
		w.sleep(w.policy.SettleDelay)
	}
	return written, nil
}
