//go:build !js

//Package wslistener is the server side counterpart of wsweb.NetConn: a net.Listener
// whose connections are websockets accepted by an HTTP handler. It lets a gRPC (or any
// other stream) server be reached through wsweb.GRPCDialer.
package wslistener

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

type Listener struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       logrus.FieldLogger

	acceptCh chan net.Conn
}

var _ net.Listener = (*Listener)(nil)

//New returns a listener that stays open until ctx is done or Close is called.
func New(ctx context.Context, log logrus.FieldLogger) *Listener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Listener{
		ctx:       ctx,
		ctxCancel: cancel,
		log:       log,
		acceptCh:  make(chan net.Conn, 8),
	}
}

//HTTPAccept upgrades the request and queues the websocket for Accept.
func (wsl *Listener) HTTPAccept(wtr http.ResponseWriter, req *http.Request) {
	ws, err := websocket.Accept(wtr, req, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		wsl.log.WithError(err).WithField("remote", req.RemoteAddr).Warn("Listener: Could not accept websocket")
		return
	}

	conn := websocket.NetConn(wsl.ctx, ws, websocket.MessageBinary)
	select {
	case wsl.acceptCh <- conn:
		wsl.log.WithField("remote", req.RemoteAddr).Debug("Listener: Accepted websocket")
	case <-wsl.ctx.Done():
		ws.Close(websocket.StatusGoingAway, "Listener closed")
	case <-req.Context().Done():
		ws.Close(websocket.StatusBadGateway, fmt.Sprintf("Failed to accept connection; Details: %s", req.Context().Err()))
	}
}

func (wsl *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-wsl.acceptCh:
		return conn, nil
	case <-wsl.ctx.Done():
		return nil, fmt.Errorf("Listener closed; Details: %w", wsl.ctx.Err())
	}
}

func (wsl *Listener) Close() error {
	wsl.ctxCancel()
	return nil
}

func (wsl *Listener) Addr() net.Addr {
	return addr{}
}

type addr struct{}

func (addr) Network() string { return "websocket" }

func (addr) String() string { return "websocket" }
