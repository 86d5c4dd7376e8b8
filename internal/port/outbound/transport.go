// Package outbound defines the ports to external collaborators.
package outbound

import (
	"context"
	"time"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// Timeouts are the fixed time budgets of a transport variant.
type Timeouts struct {
	// Connect bounds Open plus Discover.
	Connect time.Duration
	// Call bounds one Send plus Receive.
	Call time.Duration
}

// Transport is a channel to one capability server. A transport instance is
// used for one session: Open once, exchange messages, Close once. It carries
// at most one outstanding request; callers serialize Send/Receive pairs.
//
// Errors wrap the sentinels of package capability so callers can classify
// them with errors.Is.
type Transport interface {
	// Open establishes the channel and performs any handshake.
	Open(ctx context.Context) error

	// Discover returns the tools the server exposes.
	Discover(ctx context.Context) ([]capability.ToolDescriptor, error)

	// Send writes one request.
	Send(ctx context.Context, req *mcp.Request) error

	// Receive returns the response to the last request sent. The context
	// deadline is the receive timeout.
	Receive(ctx context.Context) (*mcp.Response, error)

	// Close releases the channel and everything it holds. Safe to call
	// more than once and concurrently with Send or Receive.
	Close() error

	// Timeouts returns the variant's time budgets.
	Timeouts() Timeouts
}
