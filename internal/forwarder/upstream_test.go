package forwarder

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/simbridge/internal/socket"
	"github.com/danmuck/simbridge/internal/testutil/testlog"
	"github.com/danmuck/simbridge/internal/testutil/udptest"
)

func dialUpstream(t *testing.T, addr string) *Upstream {
	t.Helper()
	up, err := Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("dial upstream: %v", err)
	}
	t.Cleanup(func() { _ = up.Close() })
	return up
}

func TestDialRejectsBadAddress(t *testing.T) {
	testlog.Start(t)
	for _, addr := range []string{"", "127.0.0.1", "127.0.0.1:70000"} {
		if _, err := Dial(context.Background(), addr); !errors.Is(err, socket.ErrConnect) {
			t.Fatalf("addr %q: expected connect error, got %v", addr, err)
		}
	}
}

func TestUpstreamSendIsOneDatagram(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())

	n, err := up.Send([]byte("CMDX"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != 4 {
		t.Fatalf("unexpected sent bytes: %d", n)
	}
	got := peer.Wait(t, 1, 2*time.Second)
	if string(got[0]) != "CMDX" {
		t.Fatalf("unexpected datagram: %q", got[0])
	}
}

func TestUpstreamSendRejectsOversizedPayload(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())

	if _, err := up.Send(make([]byte, MaxDatagramBytes+1)); !errors.Is(err, ErrDatagramTooLarge) {
		t.Fatalf("expected too large error, got %v", err)
	}
}

func TestUpstreamReceiveTimesOut(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())

	start := time.Now()
	_, err := up.Receive(make([]byte, 16), 20*time.Millisecond)
	if !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("expected reply timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("receive wait not bounded: %v", elapsed)
	}
}

func TestUpstreamCloseIsIdempotentAndUnblocksReceive(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())

	done := make(chan error, 1)
	go func() {
		_, err := up.Receive(make([]byte, 16), 10*time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := up.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := up.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, socket.ErrTransportClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive not unblocked by close")
	}
	if _, err := up.Send([]byte("x")); !errors.Is(err, socket.ErrTransportClosed) {
		t.Fatalf("expected closed send error, got %v", err)
	}
}

func TestUpstreamSocketSendAndRead(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	peer.SetReply([]byte("pong"))
	up := dialUpstream(t, peer.Addr())
	sock := NewUpstreamSocket(up)

	if err := sock.SendTo([]byte("ping"), nil); !errors.Is(err, socket.ErrDestinationUnset) {
		t.Fatalf("expected destination unset, got %v", err)
	}
	if err := sock.SendTo([]byte("ping"), sock.RemoteAddr()); err != nil {
		t.Fatalf("send: %v", err)
	}
	peer.Wait(t, 1, 2*time.Second)

	buf := make([]byte, 2)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, from, err := sock.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n == 0 {
			if from != nil {
				t.Fatalf("source set on empty read: %v", from)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if n != 2 || string(buf) != "po" {
			t.Fatalf("unexpected truncated read n=%d data=%q", n, buf[:n])
		}
		if from.String() != peer.Addr() {
			t.Fatalf("unexpected source %v want %s", from, peer.Addr())
		}
		return
	}
	t.Fatalf("no reply read from upstream socket")
}

func TestUpstreamSocketReadDoesNotBlock(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	sock := NewUpstreamSocket(dialUpstream(t, peer.Addr()))

	start := time.Now()
	n, from, err := sock.Read(make([]byte, 32))
	if n != 0 || from != nil || err != nil {
		t.Fatalf("unexpected empty read n=%d from=%v err=%v", n, from, err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("read blocked for %v", elapsed)
	}
}

func TestUpstreamSocketClosed(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())
	sock := NewUpstreamSocket(up)
	_ = up.Close()

	if err := sock.SendTo([]byte("x"), &net.UDPAddr{}); !errors.Is(err, socket.ErrTransportClosed) {
		t.Fatalf("expected closed send, got %v", err)
	}
	if _, _, err := sock.Read(make([]byte, 4)); !errors.Is(err, socket.ErrTransportClosed) {
		t.Fatalf("expected closed read, got %v", err)
	}
}
