package acceptor

import "time"

// Timeouts defines listener-side network timeouts shared by both transports.
type Timeouts struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultTimeouts returns the runtime defaults. Zero read/write timeouts keep
// long-lived WebSocket connections open until the peer or Stop closes them.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		HandshakeTimeout:  5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// WithDefaults fills unset fields from DefaultTimeouts.
func (t Timeouts) WithDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.ReadHeaderTimeout <= 0 {
		t.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if t.HandshakeTimeout <= 0 {
		t.HandshakeTimeout = def.HandshakeTimeout
	}
	if t.ShutdownTimeout <= 0 {
		t.ShutdownTimeout = def.ShutdownTimeout
	}
	if t.ReadTimeout < 0 {
		t.ReadTimeout = 0
	}
	if t.WriteTimeout < 0 {
		t.WriteTimeout = 0
	}
	return t
}
