package wsweb

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//conn is the state shared by a WebSocket and its split halves. The host socket is
// closed when the last reference is released.
type conn struct {
	id     string
	url    string
	iface  Interface
	log    logrus.FieldLogger
	bridge *eventBridge
	refs   int32
}

func (c *conn) acquire(n int32) {
	atomic.AddInt32(&c.refs, n)
}

func (c *conn) release() {
	if atomic.AddInt32(&c.refs, -1) != 0 {
		return
	}

	b := c.bridge
	b.mu.Lock()
	defer b.mu.Unlock()
	started, err := b.beginCloseLocked(StatusNone, "")
	if err != nil {
		c.log.WithError(err).Warn("Websocket: Host close on release failed")
	}
	if started {
		c.log.Debug("Websocket: Last reference released, closing")
	}
}

//ref is one owning reference to a conn. Releasing it more than once is a no-op.
type ref struct {
	conn *conn
	done int32
}

func newRef(c *conn) *ref {
	return &ref{conn: c}
}

func (r *ref) release() {
	if atomic.CompareAndSwapInt32(&r.done, 0, 1) {
		r.conn.release()
	}
}

//WebSocket is a websocket connection provided by the host environment (usually the
// web browser). It can be used directly as a stream and sink of frames, or split into
// an IncomingStream and OutgoingSink for use by different goroutines.
//
//The connection is closed once the WebSocket and both split halves are released, or
// explicitly with Close.
type WebSocket struct {
	*IncomingStream
	*OutgoingSink

	conn *conn
	own  *ref

	splitOnce sync.Once
	rx        *IncomingStream
	tx        *OutgoingSink
}

//New constructs the host socket for url and returns immediately in the Connecting
// state. Use WaitOpen to wait for the connection to be established.
func New(url string, opts ...Option) (*WebSocket, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, &ConnectError{URL: url, Err: err}
	}

	iface, dialer, err := cfg.hostDialer()
	if err != nil {
		return nil, &ConnectError{URL: url, Err: err}
	}

	id := uuid.NewString()
	log := cfg.Logger.WithField("ws.id", id).WithField("ws.url", url).WithField("ws.interface", string(iface))
	c := &conn{
		id:     id,
		url:    url,
		iface:  iface,
		log:    log,
		bridge: newEventBridge(url, cfg, log),
		refs:   1,
	}

	//Hold the lock so no event is handled before the host is recorded
	b := c.bridge
	b.mu.Lock()
	host, err := dialer(HostConfig{
		URL:            url,
		Protocols:      cfg.Protocols,
		MaxMessageSize: int64(cfg.ReceiveBufferSize),
	}, b)
	if err != nil {
		b.mu.Unlock()
		log.WithError(err).Debug("Websocket: Host construction failed")
		return nil, &ConnectError{URL: url, Err: err}
	}
	b.host = host
	b.mu.Unlock()

	return &WebSocket{
		IncomingStream: &IncomingStream{conn: c},
		OutgoingSink:   &OutgoingSink{conn: c},
		conn:           c,
		own:            newRef(c),
	}, nil
}

//Connect constructs the host socket and waits for it to open. If the handshake fails
// or ctx is done first, the socket is released and a *ConnectError is returned.
func Connect(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	ws, err := New(url, opts...)
	if err != nil {
		return nil, err
	}
	if err = ws.WaitOpen(ctx); err != nil {
		ws.Release()
		return nil, err
	}
	return ws, nil
}

//WaitOpen waits until the connection is Open. It returns a *ConnectError if the
// connection closes first. If ctx is done first the connection is closed.
func (ws *WebSocket) WaitOpen(ctx context.Context) error {
	b := ws.conn.bridge
	select {
	case <-b.openCh:
		return nil
	case <-b.closedCh:
	case <-ctx.Done():
		b.mu.Lock()
		_, _ = b.beginCloseLocked(StatusNone, "")
		b.mu.Unlock()
		return &ConnectError{URL: ws.conn.url, Err: ctx.Err()}
	}

	//Opening and closing may both have happened
	select {
	case <-b.openCh:
		return nil
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cerr, ok := b.state.err.(*ConnectError); ok {
		return cerr
	}
	return &ConnectError{URL: ws.conn.url, Reason: b.state.info.String()}
}

//Split returns the receiving and sending halves of the connection. Each half owns a
// reference and must be released; the WebSocket's own reference is handed over to
// them. Calling Split again returns the same halves.
func (ws *WebSocket) Split() (*IncomingStream, *OutgoingSink) {
	ws.splitOnce.Do(func() {
		ws.conn.acquire(2)
		ws.rx = &IncomingStream{conn: ws.conn, ref: newRef(ws.conn)}
		ws.tx = &OutgoingSink{conn: ws.conn, ref: newRef(ws.conn)}
		ws.own.release()
	})
	return ws.rx, ws.tx
}

//Close starts the close handshake with code and reason, which are passed to the host
// verbatim. It does not wait; see Closed. Closing an already closing or closed
// connection is a no-op.
func (ws *WebSocket) Close(code CloseCode, reason string) error {
	if !code.Valid() {
		return ErrInvalidCloseCode
	}
	b := ws.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.beginCloseLocked(code, reason)
	return err
}

//Closed waits until the connection is Closed and returns how it closed.
func (ws *WebSocket) Closed(ctx context.Context) (CloseInfo, error) {
	b := ws.conn.bridge
	select {
	case <-b.closedCh:
	case <-ctx.Done():
		return CloseInfo{}, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.info, nil
}

//Release drops the handle's reference. After Split it is a no-op.
func (ws *WebSocket) Release() {
	ws.own.release()
}

func (ws *WebSocket) State() State { return ws.conn.bridge.current() }

func (ws *WebSocket) URL() string { return ws.conn.url }

//Interface is the host websocket API the connection was built on.
func (ws *WebSocket) Interface() Interface { return ws.conn.iface }

//ID is a unique identifier used in log fields.
func (ws *WebSocket) ID() string { return ws.conn.id }

//Protocol is the sub-protocol selected by the server. It is empty before Open.
func (ws *WebSocket) Protocol() string {
	b := ws.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.cur == StateConnecting {
		return ""
	}
	return b.host.Protocol()
}
