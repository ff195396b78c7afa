package wsweb

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall/js"
)

//streamHost is a HostSocket backed by the browser's WebSocketStream, which exposes the
// connection as promise based readable and writable streams
// See: https://developer.mozilla.org/en-US/docs/Web/API/WebSocketStream
type streamHost struct {
	socket js.Value
	events HostEvents

	lock     sync.Mutex
	writer   js.Value //undefined until opened
	reader   js.Value
	protocol string
	closing  bool

	buffered int64
	detached int32
}

var _ HostSocket = (*streamHost)(nil)

//DialBrowserStreamHost is the HostDialer for InterfaceStream. The open event follows the
// socket's opened promise and the close event its closed promise.
func DialBrowserStreamHost(cfg HostConfig, events HostEvents) (host HostSocket, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("WebSocket: Could not construct browser websocket stream for %q; Details: %w", cfg.URL, err)
		}
	}()
	defer recoverJSError(&err)

	options := map[string]interface{}{}
	if len(cfg.Protocols) > 0 {
		protocols := make([]interface{}, len(cfg.Protocols))
		for i, protocol := range cfg.Protocols {
			protocols[i] = protocol
		}
		options["protocols"] = protocols
	}

	sh := &streamHost{
		socket: js.Global().Get("WebSocketStream").New(cfg.URL, options),
		events: events,
		writer: js.Undefined(),
		reader: js.Undefined(),
	}
	sh.await(sh.socket.Get("opened"), sh.handleOpened, sh.handleOpenFailed)
	sh.await(sh.socket.Get("closed"), sh.handleClosed, sh.handleClosedAbnormally)
	return sh, nil
}

//await attaches one-shot handlers to promise; both are released once either has run.
func (sh *streamHost) await(promise js.Value, onFulfilled, onRejected func(js.Value)) {
	var fulfilled, rejected js.Func
	settle := func(handler func(js.Value), args []js.Value) interface{} {
		go func() { //Don't release a JS callback from inside itself
			fulfilled.Release()
			rejected.Release()
		}()
		arg := js.Undefined()
		if len(args) > 0 {
			arg = args[0]
		}
		handler(arg)
		return nil
	}
	fulfilled = js.FuncOf(func(_ js.Value, args []js.Value) interface{} { return settle(onFulfilled, args) })
	rejected = js.FuncOf(func(_ js.Value, args []js.Value) interface{} { return settle(onRejected, args) })
	promise.Call("then", fulfilled, rejected)
}

func (sh *streamHost) fire(event func(HostEvents)) {
	if atomic.LoadInt32(&sh.detached) == 1 {
		return
	}
	event(sh.events)
}

func (sh *streamHost) handleOpened(opened js.Value) {
	if debugVerbose {
		println("Websocket: Stream opened JS callback!")
	}
	sh.lock.Lock()
	if protocol := opened.Get("protocol"); protocol.Type() == js.TypeString {
		sh.protocol = protocol.String()
	}
	sh.writer = opened.Get("writable").Call("getWriter")
	sh.reader = opened.Get("readable").Call("getReader")
	reader := sh.reader
	sh.lock.Unlock()

	sh.fire(func(ev HostEvents) { ev.OnOpen() })
	sh.read(reader)
}

func (sh *streamHost) handleOpenFailed(reason js.Value) {
	sh.fire(func(ev HostEvents) { ev.OnError(jsErrorMessage(reason)) })
}

//read asks for the next message. One read is outstanding at a time, so the browser
// holds back further messages until this one is delivered.
func (sh *streamHost) read(reader js.Value) {
	sh.await(reader.Call("read"), func(result js.Value) {
		if result.Get("done").Bool() {
			return //The closed promise reports the end
		}
		data := result.Get("value")

		var f Frame
		switch {
		case data.Type() == js.TypeString:
			f = TextFrame(data.String())
		case data.InstanceOf(arrayBuffer), data.InstanceOf(uint8Array):
			jsBuf := uint8Array.New(data)
			goBuf := make([]byte, jsBuf.Get("byteLength").Int())
			js.CopyBytesToGo(goBuf, jsBuf)
			f = newFrame(MessageBinary, goBuf)
		default:
			sh.fire(func(ev HostEvents) {
				ev.OnError(fmt.Sprintf("WebSocket: Unsupported message payload of type %s", data.Type()))
			})
			return
		}

		if debugVerbose {
			println("Websocket: Stream read JS callback:", f.String())
		}
		sh.fire(func(ev HostEvents) { ev.OnMessage(f) })
		if atomic.LoadInt32(&sh.detached) == 0 {
			sh.read(reader)
		}
	}, func(reason js.Value) {
		sh.fire(func(ev HostEvents) { ev.OnError(jsErrorMessage(reason)) })
	})
}

func (sh *streamHost) handleClosed(closed js.Value) {
	if debugVerbose {
		println("Websocket: Stream closed JS callback!")
	}
	info := CloseInfo{Code: StatusNoStatusRcvd, WasClean: true}
	if code := closed.Get("closeCode"); code.Type() == js.TypeNumber {
		info.Code = CloseCode(code.Int())
	}
	if reason := closed.Get("reason"); reason.Type() == js.TypeString {
		info.Reason = reason.String()
	}
	sh.fire(func(ev HostEvents) { ev.OnClose(info) })
}

func (sh *streamHost) handleClosedAbnormally(reason js.Value) {
	info := CloseInfo{Code: StatusAbnormalClosure, Reason: jsErrorMessage(reason)}
	sh.fire(func(ev HostEvents) { ev.OnClose(info) })
}

func (sh *streamHost) Send(f Frame) (err error) {
	defer recoverJSError(&err)

	sh.lock.Lock()
	writer, closing := sh.writer, sh.closing
	sh.lock.Unlock()
	switch {
	case closing:
		return errors.New("InvalidStateError: WebSocketStream is closing")
	case writer.IsUndefined():
		return errors.New("InvalidStateError: WebSocketStream is still connecting")
	}

	var chunk interface{} = string(f.data)
	if !f.IsText() {
		jsBuf := uint8Array.New(len(f.data))
		js.CopyBytesToJS(jsBuf, f.data)
		chunk = jsBuf
	}

	//Pending writes stand in for bufferedAmount
	n := int64(f.Len())
	atomic.AddInt64(&sh.buffered, n)
	sh.await(writer.Call("write", chunk), func(js.Value) {
		sh.written(n)
	}, func(reason js.Value) {
		if debugVerbose {
			println("Websocket: Stream write failed:", jsErrorMessage(reason))
		}
		sh.written(n)
	})
	if debugVerbose {
		println("Websocket: Write", f.String())
	}
	return nil
}

func (sh *streamHost) written(n int64) {
	atomic.AddInt64(&sh.buffered, -n)
	sh.fire(func(ev HostEvents) { ev.OnBufferDrained() })
}

func (sh *streamHost) Close(code CloseCode, reason string) (err error) {
	defer recoverJSError(&err)

	sh.lock.Lock()
	sh.closing = true
	sh.lock.Unlock()

	if debugVerbose {
		println("Websocket: Internal stream close", uint16(code), reason)
	}
	if code == StatusNone {
		sh.socket.Call("close")
		return nil
	}
	sh.socket.Call("close", map[string]interface{}{"closeCode": int(code), "reason": reason})
	return nil
}

func (sh *streamHost) BufferedAmount() int {
	return int(atomic.LoadInt64(&sh.buffered))
}

func (sh *streamHost) Protocol() string {
	sh.lock.Lock()
	defer sh.lock.Unlock()
	return sh.protocol
}

//Detach stops event delivery. Promise callbacks still pending release themselves once
// the browser settles them.
func (sh *streamHost) Detach() {
	atomic.StoreInt32(&sh.detached, 1)
}

//jsErrorMessage extracts a description from a rejection reason.
func jsErrorMessage(reason js.Value) string {
	switch reason.Type() {
	case js.TypeString:
		return reason.String()
	case js.TypeObject:
		if msg := reason.Get("message"); msg.Type() == js.TypeString {
			return msg.String()
		}
		return reason.Call("toString").String()
	}
	return "Unknown error"
}
