/*
Package wsweb adapts the host environment's websocket (the web browser's WebSocket object when compiled for js/wasm) into a pollable stream of incoming frames and a sink of outgoing frames with backpressure.

A WebSocket is created in the Connecting state with New, or opened with Connect. It can be used directly, or split into an IncomingStream and an OutgoingSink owned by different goroutines. Each side offers poll operations (PollNext, PollReady, StartSend, PollFlush, PollClose) that register a Waker when they cannot make progress, plus blocking companions (Next, Send, Flush, Shutdown) built on them. The host socket is closed once the handle and both halves are released.

NetConn wraps a WebSocket as a net.Conn for tunneling arbitrary protocols, and GRPCDialer plugs that into grpc.WithContextDialer. Outside of a browser the host socket is emulated with nhooyr.io/websocket, which keeps the package usable and testable natively.

The internal/wslistener package provides the matching server side net.Listener.
*/
package wsweb
