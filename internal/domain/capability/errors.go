package capability

import "errors"

// Failure taxonomy. Transports wrap these with fmt.Errorf("%w: ...") so the
// client can classify a failure with errors.Is.
var (
	// ErrConnection covers an unreachable server, a non-success status or a
	// handshake that did not complete.
	ErrConnection = errors.New("connection error")
	// ErrProtocol covers a malformed or unparseable response envelope.
	ErrProtocol = errors.New("protocol error")
	// ErrToolNotAvailable is returned for names outside the discovered set.
	ErrToolNotAvailable = errors.New("tool not available")
	// ErrToolExecution means the server reported an error result.
	ErrToolExecution = errors.New("tool execution error")
	// ErrTimeout means no response arrived within the call budget.
	ErrTimeout = errors.New("timeout")
	// ErrNotConnected is returned for calls on a client without a session.
	ErrNotConnected = errors.New("not connected")
	// ErrChannelClosed means the transport channel is gone for good, for
	// example because the server process exited. It is also an ErrConnection.
	ErrChannelClosed = errors.New("channel closed")
)

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindConnection       ErrorKind = "connection"
	KindProtocol         ErrorKind = "protocol"
	KindToolNotAvailable ErrorKind = "tool_not_available"
	KindToolExecution    ErrorKind = "tool_execution"
	KindTimeout          ErrorKind = "timeout"
	KindNotConnected     ErrorKind = "not_connected"
)

// KindOf maps an error to its taxonomy kind. Unclassified errors count as
// connection failures since they surface from the transport.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrToolNotAvailable):
		return KindToolNotAvailable
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrToolExecution):
		return KindToolExecution
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	default:
		return KindConnection
	}
}
