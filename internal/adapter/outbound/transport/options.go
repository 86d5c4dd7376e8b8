// Package transport provides the wire transports to capability servers:
// a subprocess speaking line-delimited JSON-RPC, an HTTP endpoint answering
// with server-sent events, and a plain HTTP REST endpoint.
package transport

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
)

const (
	// scannerInitialBufSize is the initial buffer size for line scanners.
	scannerInitialBufSize = 64 * 1024 // 64KB

	// scannerMaxBufSize bounds a single line. Longer lines fail the read
	// with bufio.ErrTooLong.
	scannerMaxBufSize = 1024 * 1024 // 1MB

	// maxResponseBodySize is the maximum response body size from a server.
	// Prevents OOM from a misbehaving server sending unbounded responses.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB
)

// Fixed budgets per variant. A subprocess may need to start a runtime
// before it answers, so its connect window is wider.
var (
	processTimeouts = outbound.Timeouts{Connect: 10 * time.Second, Call: 10 * time.Second}
	httpTimeouts    = outbound.Timeouts{Connect: 5 * time.Second, Call: 30 * time.Second}
)

// terminateGrace is how long a subprocess has to exit after the graceful
// terminate signal before it is killed.
const terminateGrace = 5 * time.Second

type options struct {
	logger        *slog.Logger
	httpClient    *http.Client
	stderr        io.Writer
	grace         time.Duration
	clientName    string
	clientVersion string
}

// Option configures a transport.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHTTPClient sets a custom HTTP client for the HTTP variants.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithStderr sets where a subprocess's stderr goes. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithTerminateGrace overrides the time a subprocess gets between the
// graceful terminate signal and the kill.
func WithTerminateGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// WithClientInfo sets the name and version announced in the initialize handshake.
func WithClientInfo(name, version string) Option {
	return func(o *options) {
		o.clientName = name
		o.clientVersion = version
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		stderr:        os.Stderr,
		grace:         terminateGrace,
		clientName:    "dreamops",
		clientVersion: "dev",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = newHTTPClient()
	}
	return o
}

// newHTTPClient returns the hardened client shared by the HTTP variants.
// Per-call deadlines come from the request context, not Client.Timeout.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// New builds the transport variant selected by the server type.
func New(srv *capability.Server, opts ...Option) (outbound.Transport, error) {
	switch srv.Type {
	case capability.ServerTypeProcess:
		return NewProcess(srv, opts...), nil
	case capability.ServerTypeStream:
		return NewStream(srv, opts...), nil
	case capability.ServerTypeREST:
		return NewREST(srv, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported server type %q", srv.Type)
	}
}
