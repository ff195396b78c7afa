package wsweb

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

//NetworkWebSocket is the only network name accepted by Dial and DialContext.
const NetworkWebSocket = "websocket"

//Dial connects to a websocket URL with default options and no deadline.
//See: DialContext
func Dial(network, address string) (net.Conn, error) {
	return DialContext(context.Background(), network, address)
}

//DialContext connects to the websocket URL address and returns the connection as a
// net.Conn (see NetConn). network must be "websocket" and address a "ws://" or "wss://"
// URL. opts configure the connection as they do for Connect, for example WithInterface
// or WithLogger. ctx bounds the opening handshake only.
//
//Tunneling TLS through a "wss://" URL encrypts twice: once by the host's websocket and
// once by the Go TLS stack on top of it.
func DialContext(ctx context.Context, network, address string, opts ...Option) (net.Conn, error) {
	if err := checkDialTarget(network, address); err != nil {
		return nil, err
	}
	ws, err := Connect(ctx, address, opts...)
	if err != nil {
		return nil, err
	}
	return NetConn(ws), nil
}

func checkDialTarget(network, address string) error {
	if network != NetworkWebSocket {
		return fmt.Errorf("Invalid network: %q; Details: Only %q network is supported", network, NetworkWebSocket)
	}
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("Invalid address: %q; Details: expected a websocket URL that starts with ws:// or wss://", address)
	}
	return nil
}

//GRPCDialer can be passed to grpc.WithContextDialer. The target given to grpc should be
// "passthrough:///" followed by the websocket URL.
func GRPCDialer(ctx context.Context, address string) (net.Conn, error) {
	return DialContext(ctx, NetworkWebSocket, address)
}

//NewGRPCDialer is GRPCDialer with opts applied to every connection it makes.
func NewGRPCDialer(opts ...Option) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, address string) (net.Conn, error) {
		return DialContext(ctx, NetworkWebSocket, address, opts...)
	}
}
