package wsweb

import (
	"errors"
	"fmt"
)

var (
	//ErrAlreadyClosed is returned by every operation attempted once the connection is Closed.
	ErrAlreadyClosed = errors.New("WebSocket: Web socket is closed")

	//ErrClosing is returned by send side operations once a close handshake has begun.
	ErrClosing = errors.New("WebSocket: Web socket is closing")

	//ErrNotReady is returned by StartSend when it was not preceded by a ready PollReady.
	ErrNotReady = errors.New("WebSocket: StartSend called before PollReady reported ready")

	//ErrUnsupportedInterface is returned when the runtime does not provide the requested Interface.
	ErrUnsupportedInterface = errors.New("WebSocket: Interface not supported by this runtime")

	//ErrInvalidCloseCode is returned for local close codes a browser would reject.
	ErrInvalidCloseCode = errors.New("WebSocket: Invalid close code; Details: only 1000 and 3000-4999 may be sent")
)

//ConnectError reports that the host socket could not be constructed or that the
// opening handshake failed.
type ConnectError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("WebSocket: Could not connect to %q; Details: %s", e.URL, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("WebSocket: Could not connect to %q; Details: %s", e.URL, e.Reason)
	default:
		return fmt.Sprintf("WebSocket: Could not connect to %q", e.URL)
	}
}

func (e *ConnectError) Unwrap() error { return e.Err }

//SendError reports a frame the connection would not accept, either because it is not
// Open or because the host rejected it.
type SendError struct {
	State State
	Err   error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("WebSocket: Send failed in state %s; Details: %s", e.State, e.Err)
	}
	return fmt.Sprintf("WebSocket: Send failed in state %s", e.State)
}

func (e *SendError) Unwrap() error { return e.Err }

//ProtocolError reports an error event fired by the host. Sends fail with it at once;
// the stream reports it after draining, ahead of the host's close event.
type ProtocolError struct {
	Desc string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("WebSocket: Host reported an error; Details: %s", e.Desc)
}

//CloseError reports a connection that closed without a clean close handshake.
type CloseError struct {
	Info CloseInfo
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("WebSocket: Connection closed abnormally; Details: %s", e.Info)
}
