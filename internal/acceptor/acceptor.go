package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle phase of one acceptor.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateListening
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Acceptor runs one HTTP server on a dedicated goroutine and owns its listener.
//
// Stop order is fixed: signal (close tracked connections, shut the server down),
// join (serve goroutine and tracked workers), release (close the listener).
type Acceptor struct {
	name     string
	ln       net.Listener
	srv      *http.Server
	timeouts Timeouts
	state    atomic.Int32

	served   chan struct{}
	serveErr error

	mu       sync.Mutex
	stopping bool
	nextID   uint64
	tracked  map[uint64]io.Closer
	workers  sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// Start binds addr and serves handler; see Bind and Serve.
func Start(name, addr string, handler http.Handler, timeouts Timeouts) (*Acceptor, error) {
	a, err := Bind(name, addr, timeouts)
	if err != nil {
		return nil, err
	}
	a.Serve(handler)
	return a, nil
}

// Bind claims the listening socket and leaves the acceptor Starting.
// A bind failure leaves nothing running.
func Bind(name, addr string, timeouts Timeouts) (*Acceptor, error) {
	timeouts = timeouts.WithDefaults()
	a := &Acceptor{
		name:     name,
		timeouts: timeouts,
		served:   make(chan struct{}),
		tracked:  make(map[uint64]io.Closer),
		stopped:  make(chan struct{}),
	}
	a.state.Store(int32(StateStarting))

	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		a.state.Store(int32(StateStopped))
		return nil, fmt.Errorf("acceptor %s: listen %q: %w", name, addr, err)
	}
	a.ln = ln
	return a, nil
}

// Serve starts the background goroutine and returns once it reports Listening.
// Only the first call has any effect.
func (a *Acceptor) Serve(handler http.Handler) {
	a.mu.Lock()
	if a.srv != nil || a.stopping {
		a.mu.Unlock()
		return
	}
	a.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: a.timeouts.ReadHeaderTimeout,
		ReadTimeout:       a.timeouts.ReadTimeout,
		WriteTimeout:      a.timeouts.WriteTimeout,
	}
	a.mu.Unlock()

	ready := make(chan struct{})
	go a.serve(ready)
	<-ready
}

func (a *Acceptor) serve(ready chan<- struct{}) {
	defer close(a.served)

	a.state.CompareAndSwap(int32(StateStarting), int32(StateListening))
	log.Info().
		Str("acceptor", a.name).
		Str("addr", a.ln.Addr().String()).
		Msg("acceptor listening")
	close(ready)

	err := a.srv.Serve(a.ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.serveErr = err
		log.Error().Str("acceptor", a.name).Err(err).Msg("acceptor serve failed")
	}
}

// Name returns the acceptor label used in logs.
func (a *Acceptor) Name() string {
	return a.name
}

// Addr returns the bound listener address.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

func (a *Acceptor) State() State {
	return State(a.state.Load())
}

// Timeouts returns the normalized timeouts the acceptor was started with.
func (a *Acceptor) Timeouts() Timeouts {
	return a.timeouts
}

// Done is closed when the serve goroutine exits, whether by Stop or by failure.
func (a *Acceptor) Done() <-chan struct{} {
	return a.served
}

// Err returns the serve failure once Done is closed. It is nil after a clean Stop.
func (a *Acceptor) Err() error {
	select {
	case <-a.served:
		return a.serveErr
	default:
		return nil
	}
}

// Track registers a hijacked connection whose worker must be joined on Stop.
// It reports false once Stop has begun; the caller then owns closing c.
// The returned release must be called exactly once when the worker exits.
func (a *Acceptor) Track(c io.Closer) (release func(), ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return nil, false
	}
	id := a.nextID
	a.nextID++
	a.tracked[id] = c
	a.workers.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.tracked, id)
			a.mu.Unlock()
			a.workers.Done()
		})
	}, true
}

// Tracked returns the number of live tracked connections.
func (a *Acceptor) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tracked)
}

// Stop is idempotent and safe to call from any goroutine; every caller blocks
// until the first Stop has finished. Shutdown closes a served listener during the
// signal step; the final Close only releases a listener that was never served.
func (a *Acceptor) Stop() error {
	a.stopOnce.Do(func() {
		a.state.Store(int32(StateStopping))
		log.Debug().Str("acceptor", a.name).Msg("acceptor stopping")

		a.mu.Lock()
		a.stopping = true
		srv := a.srv
		closers := make([]io.Closer, 0, len(a.tracked))
		for _, c := range a.tracked {
			closers = append(closers, c)
		}
		a.mu.Unlock()

		for _, c := range closers {
			_ = c.Close()
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeouts.ShutdownTimeout)
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn().Str("acceptor", a.name).Err(err).Msg("acceptor shutdown incomplete, forcing close")
				_ = srv.Close()
			}
			cancel()
			<-a.served
		} else {
			close(a.served)
		}
		a.workers.Wait()

		// already closed by Shutdown when served
		if err := a.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.stopErr = err
		}
		a.state.Store(int32(StateStopped))
		log.Info().Str("acceptor", a.name).Msg("acceptor stopped")
		close(a.stopped)
	})
	<-a.stopped
	return a.stopErr
}
