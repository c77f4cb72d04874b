package forwarder

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/simbridge/internal/acceptor"
	"github.com/danmuck/simbridge/internal/testutil/testlog"
	"github.com/danmuck/simbridge/internal/testutil/udptest"
)

func newTestService(t *testing.T, upstreamAddr string, mutate func(*Config)) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NodeID = "forwarder-" + t.Name()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ReplyWait = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, dialUpstream(t, upstreamAddr))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func post(t *testing.T, svc *Service, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.HTTPRouter().ServeHTTP(rec, req)
	return rec
}

func TestSetForwardsBodyVerbatim(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), nil)

	rec := post(t, svc, "/Set", []byte("CMDX"))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Body.String() != DefaultAcknowledgement {
		t.Fatalf("unexpected ack: %q", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type: %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get(ForwardHeader) != "ok" {
		t.Fatalf("unexpected forward header: %q", rec.Header().Get(ForwardHeader))
	}

	got := peer.Wait(t, 1, 2*time.Second)
	if len(got) != 1 || !bytes.Equal(got[0], []byte("CMDX")) {
		t.Fatalf("unexpected upstream datagrams: %q", got)
	}
	if stats := svc.Stats(); stats.Forwarded != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSetAcknowledgesWithUnreachableUpstream(t *testing.T) {
	testlog.Start(t)
	svc := newTestService(t, udptest.FreeAddr(t), nil)

	for i := 0; i < 3; i++ {
		rec := post(t, svc, "/Set", []byte("CMDX"))
		if rec.Code != http.StatusOK || rec.Body.String() != DefaultAcknowledgement {
			t.Fatalf("attempt %d: unexpected response %d %q", i, rec.Code, rec.Body.String())
		}
		outcome := rec.Header().Get(ForwardHeader)
		if outcome != "ok" && outcome != "failed" {
			t.Fatalf("attempt %d: unexpected forward header %q", i, outcome)
		}
	}
}

func TestGetObservesReplyWithoutRelaying(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	peer.SetReply([]byte("RESP-FROM-SIM"))
	svc := newTestService(t, peer.Addr(), func(cfg *Config) {
		cfg.ReplyWait = 2 * time.Second
	})

	payload := []byte("GETD\x00\x01\x13sim/test/test_float")
	rec := post(t, svc, "/Get", payload)
	if rec.Code != http.StatusOK || rec.Body.String() != DefaultAcknowledgement {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "RESP-FROM-SIM") {
		t.Fatalf("upstream reply leaked to caller")
	}
	got := peer.Wait(t, 1, 2*time.Second)
	if !bytes.Equal(got[0], payload) {
		t.Fatalf("unexpected upstream datagram: %q", got[0])
	}
	if stats := svc.Stats(); stats.Replies != 1 {
		t.Fatalf("expected one observed reply, got %+v", stats)
	}
}

func TestGetWaitIsBounded(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), func(cfg *Config) {
		cfg.ReplyWait = 30 * time.Millisecond
	})

	start := time.Now()
	rec := post(t, svc, "/Get", []byte("q"))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("get blocked for %v", elapsed)
	}
	if stats := svc.Stats(); stats.Replies != 0 || stats.Forwarded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetDropsLateReplyFromEarlierExchange(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), func(cfg *Config) {
		cfg.ReplyWait = 30 * time.Millisecond
	})

	// a reply that landed after the previous Get gave up waiting
	peer.Send(t, []byte("late"), svc.upstream.LocalAddr())
	time.Sleep(50 * time.Millisecond)

	rec := post(t, svc, "/Get", []byte("q"))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	peer.Wait(t, 1, 2*time.Second)
	if stats := svc.Stats(); stats.Stale != 1 || stats.Replies != 0 {
		t.Fatalf("late reply attributed to this get: %+v", stats)
	}
}

func TestSetDoesNotWaitForReply(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	peer.SetReply([]byte("ignored"))
	svc := newTestService(t, peer.Addr(), nil)

	post(t, svc, "/Set", []byte("a"))
	peer.Wait(t, 1, 2*time.Second)
	if stats := svc.Stats(); stats.Replies != 0 {
		t.Fatalf("set must not observe replies: %+v", stats)
	}
}

func TestExchangeRejectsOversizedBody(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), func(cfg *Config) {
		cfg.MaxBodyBytes = 4
	})

	rec := post(t, svc, "/Set", []byte("too-long"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if stats := svc.Stats(); stats.Forwarded != 0 {
		t.Fatalf("oversized body forwarded: %+v", stats)
	}
}

func TestForwardReportsClosedUpstream(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), nil)
	_ = svc.upstream.Close()

	rec := post(t, svc, "/Set", []byte("late"))
	if rec.Code != http.StatusOK || rec.Body.String() != DefaultAcknowledgement {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(ForwardHeader) != "failed" {
		t.Fatalf("expected failed forward header, got %q", rec.Header().Get(ForwardHeader))
	}
	if stats := svc.Stats(); stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHealthReportsUpstream(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	svc.HTTPRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if out["upstream"] != peer.Addr() {
		t.Fatalf("unexpected upstream: %v", out["upstream"])
	}
}

func TestServiceStartServesAndStops(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	svc := newTestService(t, peer.Addr(), func(cfg *Config) {
		cfg.Acknowledgement = "ack"
	})
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(); !errors.Is(err, ErrServiceStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
	acc := svc.Acceptor()
	if acc.State() != acceptor.StateListening {
		t.Fatalf("unexpected state: %s", acc.State())
	}
	addr := acc.Addr().String()

	resp, err := http.Post("http://"+addr+"/Set", "application/octet-stream", bytes.NewReader([]byte("wire")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ack" {
		t.Fatalf("unexpected body: %q", body)
	}
	peer.Wait(t, 1, 2*time.Second)

	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if acc.State() != acceptor.StateStopped {
		t.Fatalf("unexpected state after close: %s", acc.State())
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listener not released: %v", err)
	}
	_ = ln.Close()
}

func TestNewServiceRejectsOriginWithoutScheme(t *testing.T) {
	testlog.Start(t)
	peer := udptest.Listen(t)
	up := dialUpstream(t, peer.Addr())
	cfg := DefaultConfig()
	cfg.CorsOrigins = []string{"sim.local"}

	svc, err := NewService(cfg, up)
	if !errors.Is(err, ErrInvalidOrigin) || svc != nil {
		t.Fatalf("expected invalid origin, got svc=%v err=%v", svc, err)
	}
	if up.Closed() {
		t.Fatalf("upstream closed by failed service construction")
	}
}

func TestCorsConfigWildcardAllowsAll(t *testing.T) {
	cfg := corsConfig([]string{"http://a.local", " * "})
	if !cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 0 {
		t.Fatalf("wildcard not mapped to allow-all: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
