package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// Process talks to a capability server run as a subprocess. Requests are
// written to its stdin and responses read from its stdout, one JSON object
// per line. The server's stderr is forwarded (MCP allows server logging).
type Process struct {
	name    string
	command string
	args    []string
	env     []string
	opts    options

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *os.File
	lines   chan []byte
	done    chan struct{} // closed by Close
	exited  chan struct{} // closed when the process has been reaped
	readers sync.WaitGroup
	readErr error
	closed  bool

	writeMu sync.Mutex
	pending atomic.Int64
	seq     atomic.Int64
}

// NewProcess creates a transport for the given process server. Nothing is
// started until Open.
func NewProcess(srv *capability.Server, opts ...Option) *Process {
	o := buildOptions(opts)
	o.logger = o.logger.With("server", srv.Name, "transport", "process")
	return &Process{
		name:    srv.Name,
		command: srv.Command,
		args:    append([]string(nil), srv.Args...),
		env:     processEnv(srv),
		opts:    o,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// processEnv builds the extra environment: configured variables in a stable
// order, then the access token when one is set.
func processEnv(srv *capability.Server) []string {
	keys := make([]string, 0, len(srv.Env))
	for k := range srv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+srv.Env[k])
	}
	if srv.TokenEnv != "" && srv.Token != "" {
		env = append(env, srv.TokenEnv+"="+srv.Token)
	}
	return env
}

// Open starts the subprocess and performs the initialize handshake.
func (p *Process) Open(ctx context.Context) error {
	if err := p.start(); err != nil {
		return err
	}

	if err := initialize(ctx, p.roundTrip, p.seq.Add(1), p.opts); err != nil {
		return err
	}
	note, err := mcp.NewNotification(mcp.MethodInitialized, nil)
	if err != nil {
		return err
	}
	return p.Send(ctx, note)
}

func (p *Process) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%w: %w", capability.ErrConnection, capability.ErrChannelClosed)
	}
	if p.cmd != nil {
		return errors.New("process already started")
	}

	// The process must outlive the connect context, so no CommandContext.
	cmd := exec.Command(p.command, p.args...)
	cmd.Env = append(os.Environ(), p.env...)
	cmd.Stderr = p.opts.stderr
	cmd.WaitDelay = p.opts.grace
	configureProcess(cmd)

	// Explicit pipes: the stdin write end supports deadlines, and Wait
	// never closes the stdout read end while lines are still buffered.
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", capability.ErrConnection, err)
	}
	cmd.Stdin = stdinR

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdinR.Close()
		_ = stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %v", capability.ErrConnection, err)
	}
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		_ = stdinR.Close()
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return fmt.Errorf("%w: start %s: %v", capability.ErrConnection, p.command, err)
	}
	_ = stdinR.Close()
	_ = stdoutW.Close()

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdoutR
	p.lines = make(chan []byte, 16)

	p.readers.Add(1)
	go p.readLoop(stdoutR)
	go func() {
		err := cmd.Wait()
		p.opts.logger.Debug("server process exited", "pid", cmd.Process.Pid, "error", err)
		close(p.exited)
	}()

	p.opts.logger.Debug("server process started", "command", p.command, "pid", cmd.Process.Pid)
	return nil
}

func (p *Process) readLoop(r io.Reader) {
	defer p.readers.Done()
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		select {
		case p.lines <- msg:
		case <-p.done:
			return
		}
	}

	p.mu.Lock()
	p.readErr = scanner.Err()
	p.mu.Unlock()
}

// Discover lists the server's tools.
func (p *Process) Discover(ctx context.Context) ([]capability.ToolDescriptor, error) {
	return listTools(ctx, p.roundTrip, func() int64 { return p.seq.Add(1) })
}

func (p *Process) roundTrip(ctx context.Context, req *mcp.Request) (*mcp.Response, error) {
	if err := p.Send(ctx, req); err != nil {
		return nil, err
	}
	return p.Receive(ctx)
}

// Send writes one request line. A write still blocked when ctx ends is
// interrupted; the stream may then hold a partial line, so stdin is closed
// and the transport is unusable afterwards.
func (p *Process) Send(ctx context.Context, req *mcp.Request) error {
	p.mu.Lock()
	stdin, closed := p.stdin, p.closed
	p.mu.Unlock()
	if closed || stdin == nil {
		return fmt.Errorf("%w: %w", capability.ErrConnection, capability.ErrChannelClosed)
	}

	data, err := mcp.Encode(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", capability.ErrProtocol, err)
	}
	data = append(data, '\n')

	if err := ctx.Err(); err != nil {
		return contextError(err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if !req.IsNotification() {
		p.pending.Store(req.ID)
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		_ = stdin.SetWriteDeadline(time.Now())
	})
	_, err = stdin.Write(data)
	if !stop() {
		<-interrupted
		if err == nil {
			// The write won the race; clear the deadline for the next one.
			_ = stdin.SetWriteDeadline(time.Time{})
			return nil
		}
		p.opts.logger.Warn("request write interrupted, closing stdin", "method", req.Method, "error", err)
		_ = stdin.Close()
		return fmt.Errorf("%w: %w: write request", contextError(ctx.Err()), capability.ErrChannelClosed)
	}
	if err != nil {
		return fmt.Errorf("%w: %w: write request: %v", capability.ErrConnection, capability.ErrChannelClosed, err)
	}
	return nil
}

// Receive reads lines until the response to the outstanding request arrives.
// Server notifications and late replies to earlier requests are skipped.
func (p *Process) Receive(ctx context.Context) (*mcp.Response, error) {
	p.mu.Lock()
	lines := p.lines
	p.mu.Unlock()
	if lines == nil {
		return nil, fmt.Errorf("%w: %w", capability.ErrConnection, capability.ErrChannelClosed)
	}

	want := p.pending.Load()
	for {
		select {
		case <-ctx.Done():
			return nil, contextError(ctx.Err())
		case line, ok := <-lines:
			if !ok {
				return nil, p.closedError()
			}
			resp, err := mcp.DecodeResponse(line)
			if errors.Is(err, mcp.ErrNotResponse) {
				p.opts.logger.Debug("skipping server message", "message", truncate(line))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v: %s", capability.ErrProtocol, err, truncate(line))
			}
			if !resp.MatchesID(want) {
				p.opts.logger.Debug("discarding stale response", "id", resp.ID, "want", want)
				continue
			}
			return resp, nil
		}
	}
}

func (p *Process) closedError() error {
	p.mu.Lock()
	readErr := p.readErr
	p.mu.Unlock()
	if readErr != nil {
		return fmt.Errorf("%w: %w: read: %v", capability.ErrConnection, capability.ErrChannelClosed, readErr)
	}
	return fmt.Errorf("%w: %w: server closed its output", capability.ErrConnection, capability.ErrChannelClosed)
}

// Close stops the subprocess: stdin is closed, a graceful terminate is sent,
// and the process is killed if it is still alive after the grace period.
// It returns once the process has been reaped and the reader has stopped.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	cmd, stdin, stdout := p.cmd, p.stdin, p.stdout
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}

	var errs []error

	// Closing stdin signals EOF; well-behaved servers exit on it.
	if err := stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close stdin: %w", err))
	}

	select {
	case <-p.exited:
	default:
		if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.opts.logger.Debug("graceful terminate failed", "error", err)
		}
		timer := time.NewTimer(p.opts.grace)
		select {
		case <-p.exited:
			timer.Stop()
		case <-timer.C:
			p.opts.logger.Warn("server did not exit after terminate, killing", "pid", cmd.Process.Pid, "grace", p.opts.grace)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("kill process: %w", err))
			}
			<-p.exited
		}
	}

	if err := stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close stdout: %w", err))
	}
	p.readers.Wait()

	return errors.Join(errs...)
}

// Timeouts returns the process variant's budgets.
func (p *Process) Timeouts() outbound.Timeouts {
	return processTimeouts
}

// contextError maps a context error onto the taxonomy.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no response within budget", capability.ErrTimeout)
	}
	return fmt.Errorf("%w: %v", capability.ErrConnection, err)
}

// truncate shortens raw wire data for log and error messages.
func truncate(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}

// Compile-time check that Process implements Transport.
var _ outbound.Transport = (*Process)(nil)
