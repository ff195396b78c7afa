package wsweb

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

//Conn is a net.Conn over the split halves of a WebSocket. Writes are sent as binary
// frames; reads return the payloads of incoming frames of either type.
type Conn struct {
	ws *WebSocket
	rx *IncomingStream
	tx *OutgoingSink

	readDeadline  atomic.Value //of time.Time
	writeDeadline atomic.Value //of time.Time

	closeOnce sync.Once
}

var _ net.Conn = (*Conn)(nil)

//NetConn splits ws and wraps the halves as a net.Conn. The Conn takes ownership of
// ws: closing it releases the connection.
func NetConn(ws *WebSocket) *Conn {
	rx, tx := ws.Split()
	c := &Conn{ws: ws, rx: rx, tx: tx}
	c.readDeadline.Store(time.Time{})
	c.writeDeadline.Store(time.Time{})
	return c
}

//WebSocket returns the underlying connection.
func (c *Conn) WebSocket() *WebSocket { return c.ws }

func (c *Conn) Read(buf []byte) (int, error) {
	ctx, cancel := deadlineContext(c.readDeadline.Load().(time.Time))
	defer cancel()

	n, err := c.rx.read(ctx, buf)
	return n, deadlineErr(err)
}

func (c *Conn) Write(buf []byte) (int, error) {
	ctx, cancel := deadlineContext(c.writeDeadline.Load().(time.Time))
	defer cancel()

	n, err := c.tx.write(ctx, buf)
	return n, deadlineErr(err)
}

//Close starts a normal closure and releases both halves. It does not wait for the
// close handshake.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close(StatusNormalClosure, "")
		c.rx.Release()
		c.tx.Release()
	})
	return err
}

func (c *Conn) LocalAddr() net.Addr {
	return wsAddr(c.ws.URL())
}

func (c *Conn) RemoteAddr() net.Addr {
	return wsAddr(c.ws.URL())
}

func (c *Conn) SetDeadline(future time.Time) error {
	c.readDeadline.Store(future)
	c.writeDeadline.Store(future)
	return nil
}

//SetReadDeadline applies to Read calls made after it; a blocked Read keeps the
// deadline it started with.
func (c *Conn) SetReadDeadline(future time.Time) error {
	c.readDeadline.Store(future)
	return nil
}

//SetWriteDeadline applies to Write calls made after it.
func (c *Conn) SetWriteDeadline(future time.Time) error {
	c.writeDeadline.Store(future)
	return nil
}

func deadlineContext(deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.Background(), func() {}
	}
	return context.WithDeadline(context.Background(), deadline)
}

func deadlineErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError{}
	}
	return err
}

//timeoutError is the net.Error returned when a read or write deadline passes
type timeoutError struct{}

func (timeoutError) Error() string { return "deadline exceeded" }

func (timeoutError) Timeout() bool { return true }

func (timeoutError) Temporary() bool { return true }

//wsAddr is a net.Addr implementation for the websocket to use when fufilling
// the net.Conn interface
type wsAddr string

func (wsAddr) Network() string { return "websocket" }

func (url wsAddr) String() string { return string(url) }
