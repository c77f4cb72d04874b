package udptest

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// Peer is a loopback UDP endpoint standing in for the simulation host.
type Peer struct {
	conn *net.UDPConn

	mu        sync.Mutex
	datagrams [][]byte
	reply     []byte
	changed   chan struct{}

	done chan struct{}
}

func Listen(t testing.TB) *Peer {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	p := &Peer{
		conn:    conn,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.loop()
	t.Cleanup(func() {
		_ = conn.Close()
		<-p.done
	})
	return p
}

// FreeAddr returns a loopback UDP address with nothing bound to it.
func FreeAddr(t testing.TB) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	addr := conn.LocalAddr().String()
	_ = conn.Close()
	return addr
}

func (p *Peer) Addr() string {
	return p.conn.LocalAddr().String()
}

// SetReply makes the peer answer every datagram with reply; nil disables replies.
func (p *Peer) SetReply(reply []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reply == nil {
		p.reply = nil
		return
	}
	p.reply = append([]byte(nil), reply...)
}

// Send writes payload to addr from the peer socket.
func (p *Peer) Send(t testing.TB, payload []byte, addr net.Addr) {
	t.Helper()
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		t.Fatalf("not a udp address: %v", addr)
	}
	if _, err := p.conn.WriteToUDP(payload, udpAddr); err != nil {
		t.Fatalf("udp send: %v", err)
	}
}

func (p *Peer) Datagrams() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.datagrams))
	copy(out, p.datagrams)
	return out
}

// Wait blocks until at least n datagrams arrived or timeout elapses.
func (p *Peer) Wait(t testing.TB, n int, timeout time.Duration) [][]byte {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		got := len(p.datagrams)
		changed := p.changed
		p.mu.Unlock()
		if got >= n {
			return p.Datagrams()
		}
		select {
		case <-changed:
		case <-timer.C:
			t.Fatalf("timed out waiting for %d datagrams, have %d", n, got)
			return nil
		}
	}
}

func (p *Peer) loop() {
	defer close(p.done)
	buf := make([]byte, 65535)
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		payload := append([]byte(nil), buf[:n]...)

		p.mu.Lock()
		p.datagrams = append(p.datagrams, payload)
		reply := p.reply
		close(p.changed)
		p.changed = make(chan struct{})
		p.mu.Unlock()

		if reply != nil {
			_, _ = p.conn.WriteToUDP(reply, from)
		}
	}
}
