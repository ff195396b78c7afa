package wsweb

//HostSocket is the environment-provided websocket primitive: the browser's WebSocket
// object under js/wasm, or a native emulation of it elsewhere. Implementations must
// deliver events asynchronously; none may be delivered from inside a HostSocket method
// or before the HostDialer that created the socket has returned.
type HostSocket interface {
	//Send queues a frame for transmission without waiting for it to be written.
	Send(f Frame) error
	//Close starts the close handshake. StatusNone closes without a code.
	Close(code CloseCode, reason string) error
	//BufferedAmount is the number of bytes queued by Send but not yet transmitted.
	BufferedAmount() int
	//Protocol is the sub-protocol selected by the server, if any.
	Protocol() string
	//Detach removes all event listeners. No events are delivered afterwards.
	Detach()
}

//HostEvents receives the events fired by a HostSocket. Calls are made from the host's
// event loop, one at a time, in the order the host fired them.
type HostEvents interface {
	OnOpen()
	OnMessage(f Frame)
	OnError(desc string)
	OnClose(info CloseInfo)
	//OnBufferDrained is an optional hint that BufferedAmount decreased. Hosts
	// without such a signal are polled instead.
	OnBufferDrained()
}

//HostConfig carries what a HostDialer needs to construct a socket.
type HostConfig struct {
	URL       string
	Protocols []string
	//MaxMessageSize bounds a single incoming message where the host supports it.
	MaxMessageSize int64
}

//HostDialer constructs a host socket wired to events. Construction is synchronous;
// the connection completes later with OnOpen, or fails with OnError/OnClose.
type HostDialer func(cfg HostConfig, events HostEvents) (HostSocket, error)
