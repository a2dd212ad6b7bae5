package runner

import "sync"

const DefaultTailBytes = 8 << 10

// TailBuffer keeps the last size bytes written to it.
type TailBuffer struct {
	mu   sync.Mutex
	b    []byte
	size int
}

func NewTailBuffer(n int) *TailBuffer {
	if n <= 0 {
		n = DefaultTailBytes
	}
	return &TailBuffer{b: make([]byte, 0, n), size: n}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p) >= t.size {
		t.b = append(t.b[:0], p[len(p)-t.size:]...)
		return len(p), nil
	}
	if len(t.b)+len(p) > t.size {
		drop := len(t.b) + len(p) - t.size
		t.b = append(t.b[:0], t.b[drop:]...)
	}
	t.b = append(t.b, p...)
	return len(p), nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}
