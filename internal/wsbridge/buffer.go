package wsbridge

import (
	"net"
	"sync"
)

// BufferStats is one consistent view of buffer accounting.
// Appended == Consumed + Buffered always holds.
type BufferStats struct {
	Appended uint64
	Consumed uint64
	Buffered int
}

// ReceiveBuffer is the byte backlog shared by every peer of one transport.
// Message boundaries are not kept: reads drain an arbitrary byte prefix.
type ReceiveBuffer struct {
	mu       sync.Mutex
	data     []byte
	source   net.Addr
	appended uint64
	consumed uint64
}

func NewReceiveBuffer() *ReceiveBuffer {
	return &ReceiveBuffer{}
}

// Append adds payload to the tail and records from as the latest known sender.
func (b *ReceiveBuffer) Append(payload []byte, from net.Addr) {
	if len(payload) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, payload...)
	b.appended += uint64(len(payload))
	if from != nil {
		b.source = from
	}
}

// Drain moves min(len(p), buffered) bytes from the front into p.
// from is nil when nothing was copied; remaining is the backlog left behind.
func (b *ReceiveBuffer) Drain(p []byte) (n int, from net.Addr, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = copy(p, b.data)
	if n == 0 {
		return 0, nil, len(b.data)
	}
	b.data = b.data[:copy(b.data, b.data[n:])]
	b.consumed += uint64(n)
	return n, b.source, len(b.data)
}

func (b *ReceiveBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *ReceiveBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Appended: b.appended,
		Consumed: b.consumed,
		Buffered: len(b.data),
	}
}

// Release drops the backlog and its storage, returning how many bytes were discarded.
// Discarded bytes count as consumed so the accounting invariant survives.
func (b *ReceiveBuffer) Release() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := len(b.data)
	b.consumed += uint64(dropped)
	b.data = nil
	b.source = nil
	return dropped
}
