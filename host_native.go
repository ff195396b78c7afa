//go:build !js

package wsweb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"nhooyr.io/websocket"
)

//Supported reports whether the runtime provides the interface. Outside of a browser
// only the standard interface is emulated.
func (i Interface) Supported() bool {
	return i == InterfaceAuto || i == InterfaceStandard
}

func hostDialerFor(Interface) HostDialer {
	return DialNativeHost
}

//nativeHost emulates the browser WebSocket object on top of nhooyr.io/websocket so the
// package can run outside of a browser. Events are fired from its own goroutines, one
// at a time.
type nativeHost struct {
	cfg    HostConfig
	events HostEvents

	ctx       context.Context
	ctxCancel context.CancelFunc

	lock        sync.Mutex
	conn        *websocket.Conn
	open        bool
	closing     bool
	closeCode   CloseCode
	closeReason string
	closeDone   chan error //one result from writeLoop: the close handshake or a write failure
	outbox      *queue.Queue //of Frame
	outboxCh    chan struct{}

	buffered int64

	fireLock  sync.Mutex
	detached  bool
	closeOnce sync.Once
}

var _ HostSocket = (*nativeHost)(nil)

//DialNativeHost is the HostDialer used outside of js/wasm. Like the browser it only
// accepts ws:// and wss:// URLs and connects in the background.
func DialNativeHost(cfg HostConfig, events HostEvents) (HostSocket, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("SyntaxError: Invalid URL %q; Details: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("SyntaxError: URL scheme must be ws or wss, got %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &nativeHost{
		cfg:       cfg,
		events:    events,
		ctx:       ctx,
		ctxCancel: cancel,
		closeDone: make(chan error, 1),
		outbox:    queue.New(),
		outboxCh:  make(chan struct{}, 1),
	}
	go h.run()
	return h, nil
}

func (h *nativeHost) run() {
	conn, _, err := websocket.Dial(h.ctx, h.cfg.URL, &websocket.DialOptions{
		Subprotocols: h.cfg.Protocols,
	})
	if err != nil {
		h.fail(fmt.Sprintf("WebSocket connection to %q failed; Details: %s", h.cfg.URL, err))
		return
	}
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	h.lock.Lock()
	if h.closing {
		h.lock.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		h.fail("WebSocket is closed before the connection is established")
		return
	}
	h.conn, h.open = conn, true
	h.lock.Unlock()

	h.fire(func(ev HostEvents) { ev.OnOpen() })
	go h.writeLoop(conn)
	h.readLoop(conn)
}

func (h *nativeHost) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(h.ctx)
		if err != nil {
			h.finish(err)
			return
		}

		f := newFrame(MessageBinary, data)
		if typ == websocket.MessageText {
			f = newFrame(MessageText, data)
		}
		h.fire(func(ev HostEvents) { ev.OnMessage(f) })
	}
}

//writeLoop transmits queued frames in order. A pending local close is sent once the
// outbox is empty, as the browser does.
func (h *nativeHost) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-h.outboxCh:
		case <-h.ctx.Done():
			return
		}

		for {
			h.lock.Lock()
			if h.outbox.Length() < 1 {
				closing, code, reason := h.closing, h.closeCode, h.closeReason
				h.lock.Unlock()
				if closing {
					go func() { h.closeDone <- conn.Close(wireCloseCode(code), reason) }()
					return
				}
				break
			}
			f := h.outbox.Remove().(Frame)
			h.lock.Unlock()

			typ := websocket.MessageBinary
			if f.IsText() {
				typ = websocket.MessageText
			}
			if err := conn.Write(h.ctx, typ, f.data); err != nil {
				//readLoop observes the broken connection; a pending close never goes out
				h.closeDone <- err
				return
			}
			atomic.AddInt64(&h.buffered, -int64(f.Len()))
		}
		h.fire(func(ev HostEvents) { ev.OnBufferDrained() })
	}
}

//finish fires the close event for a read loop that ended with err.
func (h *nativeHost) finish(err error) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		h.fireClose(CloseInfo{Code: CloseCode(ce.Code), Reason: ce.Reason, WasClean: true})
		return
	}

	h.lock.Lock()
	closing, code, reason := h.closing, h.closeCode, h.closeReason
	h.lock.Unlock()
	if closing {
		var closeErr error
		select {
		case closeErr = <-h.closeDone:
		case <-h.ctx.Done():
			closeErr = h.ctx.Err()
		}
		if code == StatusNone {
			code = StatusNoStatusRcvd
		}
		h.fireClose(CloseInfo{Code: code, Reason: reason, WasClean: closeErr == nil})
		return
	}

	h.fire(func(ev HostEvents) { ev.OnError(err.Error()) })
	h.fireClose(CloseInfo{Code: StatusAbnormalClosure})
}

//fail reports a connection that never opened.
func (h *nativeHost) fail(desc string) {
	h.fire(func(ev HostEvents) { ev.OnError(desc) })
	h.fireClose(CloseInfo{Code: StatusAbnormalClosure})
}

func (h *nativeHost) fireClose(info CloseInfo) {
	h.closeOnce.Do(func() {
		h.fire(func(ev HostEvents) { ev.OnClose(info) })
	})
}

func (h *nativeHost) fire(event func(HostEvents)) {
	h.fireLock.Lock()
	defer h.fireLock.Unlock()
	if h.detached {
		return
	}
	event(h.events)
}

func (h *nativeHost) Send(f Frame) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	switch {
	case h.closing:
		return errors.New("InvalidStateError: WebSocket is already in CLOSING or CLOSED state")
	case !h.open:
		return errors.New("InvalidStateError: WebSocket is still in CONNECTING state")
	}

	h.outbox.Add(f)
	atomic.AddInt64(&h.buffered, int64(f.Len()))
	select {
	case h.outboxCh <- struct{}{}:
	default:
	}
	return nil
}

func (h *nativeHost) Close(code CloseCode, reason string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.closing {
		return nil
	}
	h.closing, h.closeCode, h.closeReason = true, code, reason

	if !h.open {
		h.ctxCancel() //Abort the opening handshake
		return nil
	}
	select {
	case h.outboxCh <- struct{}{}:
	default:
	}
	return nil
}

//wireCloseCode maps StatusNone to an empty close frame, as the browser's close() with no
// arguments sends; the peer sees 1005.
func wireCloseCode(code CloseCode) websocket.StatusCode {
	if code == StatusNone {
		return websocket.StatusNoStatusRcvd
	}
	return websocket.StatusCode(code)
}

func (h *nativeHost) BufferedAmount() int {
	return int(atomic.LoadInt64(&h.buffered))
}

func (h *nativeHost) Protocol() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.conn == nil {
		return ""
	}
	return h.conn.Subprotocol()
}

func (h *nativeHost) Detach() {
	h.fireLock.Lock()
	h.detached = true
	h.fireLock.Unlock()
	h.ctxCancel()
}
