package languageserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"go.lsp.dev/jsonrpc2"
)

var _ jsonrpc2.Conn = (*Channel)(nil)

// Channel is a jsonrpc2.Conn that keeps a table of outstanding calls.
// When the channel closes, for any reason, every outstanding call resolves with ErrChannelClosed
// and later calls fail immediately.
type Channel struct {
	conn jsonrpc2.Conn

	seq     atomic.Int64
	mu      sync.Mutex
	pending map[int64]context.CancelCauseFunc
	closed  bool
	done    chan struct{}
}

// NewChannel wraps conn. The channel closes itself when conn's processing goroutine terminates.
func NewChannel(conn jsonrpc2.Conn) *Channel {
	c := &Channel{
		conn:    conn,
		pending: make(map[int64]context.CancelCauseFunc),
		done:    make(chan struct{}),
	}
	go c.watch()
	return c
}

func (c *Channel) watch() {
	select {
	case <-c.conn.Done():
		c.Close()
	case <-c.done:
	}
}

// Call invokes method and waits for its response, the context, or the channel closing.
func (c *Channel) Call(ctx context.Context, method string, params, result interface{}) (jsonrpc2.ID, error) {
	id, ctx, ok := c.track(ctx)
	if !ok {
		return jsonrpc2.ID{}, closedError(method)
	}
	defer c.untrack(id)

	rid, err := c.conn.Call(ctx, method, params, result)
	if err != nil && (c.isClosed() || bridgeerrors.IsChannelClosed(context.Cause(ctx))) {
		return rid, closedError(method)
	}
	return rid, err
}

// Notify sends a notification. It fails with ErrChannelClosed once the channel is closed.
func (c *Channel) Notify(ctx context.Context, method string, params interface{}) error {
	if c.isClosed() {
		return closedError(method)
	}
	if err := c.conn.Notify(ctx, method, params); err != nil {
		if c.isClosed() {
			return closedError(method)
		}
		return err
	}
	return nil
}

// Go starts processing inbound messages with handler.
func (c *Channel) Go(ctx context.Context, handler jsonrpc2.Handler) {
	c.conn.Go(ctx, handler)
}

// Close resolves all outstanding calls with ErrChannelClosed and closes the underlying stream.
// Closing an already closed channel is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]context.CancelCauseFunc)
	close(c.done)
	c.mu.Unlock()

	for _, cancel := range pending {
		cancel(bridgeerrors.ErrChannelClosed)
	}

	select {
	case <-c.conn.Done():
		// The stream already failed; closing it again only reports that.
		return nil
	default:
		return c.conn.Close()
	}
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns ErrChannelClosed once the channel is closed.
func (c *Channel) Err() error {
	if c.isClosed() {
		return bridgeerrors.ErrChannelClosed
	}
	return nil
}

// Pending returns the number of outstanding calls.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Channel) track(ctx context.Context) (int64, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ctx, false
	}
	id := c.seq.Add(1)
	ctx, cancel := context.WithCancelCause(ctx)
	c.pending[id] = cancel
	return id, ctx, true
}

func (c *Channel) untrack(id int64) {
	c.mu.Lock()
	cancel, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok {
		cancel(nil)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func closedError(method string) error {
	return fmt.Errorf("%s: %w", method, bridgeerrors.ErrChannelClosed)
}
