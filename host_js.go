package wsweb

import (
	"fmt"
	"sync"
	"syscall/js"
)

const debugVerbose = false

var (
	uint8Array  = js.Global().Get("Uint8Array")
	arrayBuffer = js.Global().Get("ArrayBuffer")
)

//Supported reports whether the browser provides the interface.
func (i Interface) Supported() bool {
	switch i {
	case InterfaceStream:
		return js.Global().Get("WebSocketStream").Truthy()
	case InterfaceStandard:
		return js.Global().Get("WebSocket").Truthy()
	case InterfaceAuto:
		return InterfaceStream.Supported() || InterfaceStandard.Supported()
	}
	return false
}

func hostDialerFor(iface Interface) HostDialer {
	if iface == InterfaceStream {
		return DialBrowserStreamHost
	}
	return DialBrowserHost
}

//browserHost is a HostSocket backed by the browser's WebSocket object
// See: https://developer.mozilla.org/en-US/docs/Web/API/WebSocket
type browserHost struct {
	ws     js.Value
	events HostEvents

	cleanup    []func()
	detachOnce sync.Once
}

var _ HostSocket = (*browserHost)(nil)

//DialBrowserHost is the HostDialer for InterfaceStandard under js/wasm. Construction errors thrown by
// the browser (e.g. a SyntaxError for a bad URL) are returned as errors.
func DialBrowserHost(cfg HostConfig, events HostEvents) (host HostSocket, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("WebSocket: Could not construct browser websocket for %q; Details: %w", cfg.URL, err)
		}
	}()
	defer recoverJSError(&err)

	protocols := make([]interface{}, len(cfg.Protocols))
	for i, protocol := range cfg.Protocols {
		protocols[i] = protocol
	}

	bh := &browserHost{
		ws:      js.Global().Get("WebSocket").New(cfg.URL, protocols),
		events:  events,
		cleanup: make([]func(), 0, 4),
	}
	socketTypeArrayBuffer.Set(bh.ws)

	bh.addHandler(bh.handleOpen, "open")
	bh.addHandler(bh.handleMessage, "message")
	bh.addHandler(bh.handleError, "error")
	bh.addHandler(bh.handleClose, "close")
	return bh, nil
}

func (bh *browserHost) addHandler(handler func(this js.Value, args []js.Value), event string) {
	jsHandler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler(this, args)
		return nil
	})
	cleanup := func() {
		bh.ws.Call("removeEventListener", event, jsHandler)
		jsHandler.Release()
	}
	bh.ws.Call("addEventListener", event, jsHandler)
	bh.cleanup = append(bh.cleanup, cleanup)
}

func (bh *browserHost) handleOpen(_ js.Value, _ []js.Value) {
	if debugVerbose {
		println("Websocket: Open JS callback!")
	}
	//Blob payloads would need an async read; insist on ArrayBuffers
	if st := newSocketType(bh.ws); st != socketTypeArrayBuffer {
		bh.events.OnError(fmt.Sprintf("WebSocket: binaryType is %q rather than %q", st, socketTypeArrayBuffer))
		return
	}
	bh.events.OnOpen()
}

func (bh *browserHost) handleMessage(_ js.Value, args []js.Value) {
	if len(args) < 1 {
		return
	}
	data := args[0].Get("data")

	var f Frame
	switch {
	case data.Type() == js.TypeString:
		f = TextFrame(data.String())
	case data.InstanceOf(arrayBuffer):
		jsBuf := uint8Array.New(data)
		goBuf := make([]byte, jsBuf.Get("byteLength").Int())
		js.CopyBytesToGo(goBuf, jsBuf)
		f = newFrame(MessageBinary, goBuf)
	default:
		bh.events.OnError(fmt.Sprintf("WebSocket: Unsupported message payload of type %s", data.Type()))
		return
	}

	if debugVerbose {
		println("Websocket: Message JS callback:", f.String())
	}
	bh.events.OnMessage(f)
}

func (bh *browserHost) handleError(_ js.Value, args []js.Value) {
	if debugVerbose {
		println("Websocket: Error JS Callback")
	}
	//The browser deliberately hides error details
	errMsg := "Unknown error"
	if len(args) > 0 {
		if msg := args[0].Get("message"); msg.Type() == js.TypeString {
			errMsg = msg.String()
		} else if typ := args[0].Get("type"); typ.Type() == js.TypeString {
			errMsg = "WebSocket " + typ.String() + " event"
		}
	}
	bh.events.OnError(errMsg)
}

func (bh *browserHost) handleClose(_ js.Value, args []js.Value) {
	if debugVerbose {
		println("Websocket: Close JS callback!")
	}
	info := CloseInfo{Code: StatusNoStatusRcvd}
	if len(args) > 0 {
		ev := args[0]
		info = CloseInfo{
			Code:     CloseCode(ev.Get("code").Int()),
			Reason:   ev.Get("reason").String(),
			WasClean: ev.Get("wasClean").Bool(),
		}
	}
	bh.events.OnClose(info)
}

func (bh *browserHost) Send(f Frame) (err error) {
	defer recoverJSError(&err)

	if f.IsText() {
		bh.ws.Call("send", string(f.data))
	} else {
		jsBuf := uint8Array.New(len(f.data))
		js.CopyBytesToJS(jsBuf, f.data)
		bh.ws.Call("send", jsBuf)
	}
	if debugVerbose {
		println("Websocket: Write", f.String())
	}
	return nil
}

func (bh *browserHost) Close(code CloseCode, reason string) (err error) {
	defer recoverJSError(&err)

	if debugVerbose {
		println("Websocket: Internal close", uint16(code), reason)
	}
	if code == StatusNone {
		bh.ws.Call("close")
		return nil
	}
	bh.ws.Call("close", int(code), reason)
	return nil
}

func (bh *browserHost) BufferedAmount() int {
	return bh.ws.Get("bufferedAmount").Int()
}

func (bh *browserHost) Protocol() string {
	if protocol := bh.ws.Get("protocol"); !protocol.IsUndefined() {
		return protocol.String()
	}
	return ""
}

func (bh *browserHost) Detach() {
	bh.detachOnce.Do(func() {
		if debugVerbose {
			println("Websocket: Detach")
		}
		for _, cleanup := range bh.cleanup {
			cleanup()
		}
	})
}

//recoverJSError converts a JavaScript exception thrown by a browser call into *errp.
func recoverJSError(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if jsErr, isJSErr := r.(js.Error); isJSErr {
		*errp = jsErr
		return
	}
	panic(r)
}
