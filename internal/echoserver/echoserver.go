//Package echoserver is a websocket peer used to exercise wsweb: an echo endpoint and a
// throughput ("speed") endpoint. It uses an independent websocket implementation so
// tests do not only talk to themselves.
package echoserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	//CloseCommandPrefix makes the echo endpoint close the connection with
	// CloseCommandCode, using the received text as the reason.
	CloseCommandPrefix = "CLOSE"
	CloseCommandCode   = 3999

	//SpeedMessageSize is the size of each binary message streamed by the speed endpoint.
	SpeedMessageSize = 4096

	//Speed endpoint modes, named from the client's point of view
	ModeRecv = "recv"
	ModeSend = "send"
	ModeBoth = "both"

	writeWait = time.Second
)

//Server serves the echo and speed endpoints.
type Server struct {
	log      logrus.FieldLogger
	metrics  *Metrics
	upgrader websocket.Upgrader
}

//New returns a Server; metrics may be nil.
func New(log logrus.FieldLogger, metrics *Metrics) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  SpeedMessageSize,
			WriteBufferSize: SpeedMessageSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

//Handler routes /echo and /speed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", s.Echo)
	mux.HandleFunc("/speed", s.Speed)
	return mux
}

func (s *Server) accept(wtr http.ResponseWriter, req *http.Request, endpoint string) (*websocket.Conn, logrus.FieldLogger, bool) {
	conn, err := s.upgrader.Upgrade(wtr, req, nil)
	if err != nil {
		s.log.WithError(err).WithField("remote", req.RemoteAddr).Warn("Echo server: Websocket handshake failed")
		return nil, nil, false
	}
	s.metrics.connected(endpoint)
	log := s.log.WithField("remote", req.RemoteAddr).WithField("endpoint", endpoint)
	log.Info("Echo server: New websocket connection")
	return conn, log, true
}

//Echo sends every text and binary message back with its type. A text message
// starting with CloseCommandPrefix closes the connection instead.
func (s *Server) Echo(wtr http.ResponseWriter, req *http.Request) {
	conn, log, ok := s.accept(wtr, req, "echo")
	if !ok {
		return
	}
	defer conn.Close()
	defer s.metrics.disconnected("echo")

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, CloseCommandCode) {
				log.WithError(err).Warn("Echo server: Error receiving message")
			}
			return
		}
		s.metrics.received("echo", len(msg))

		if typ == websocket.TextMessage && strings.HasPrefix(string(msg), CloseCommandPrefix) {
			closeMsg := websocket.FormatCloseMessage(CloseCommandCode, string(msg))
			if err = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil {
				log.WithError(err).Warn("Echo server: Error sending close")
				return
			}
			continue //Wait for the peer to confirm
		}

		if err = conn.WriteMessage(typ, msg); err != nil {
			log.WithError(err).Warn("Echo server: Error sending message")
			return
		}
		s.metrics.sent("echo", len(msg))
	}
}

//Speed waits for a mode message, then streams SpeedMessageSize binary messages to the
// client (recv), counts the client's messages (send), or both, until the client closes.
func (s *Server) Speed(wtr http.ResponseWriter, req *http.Request) {
	conn, log, ok := s.accept(wtr, req, "speed")
	if !ok {
		return
	}
	defer conn.Close()
	defer s.metrics.disconnected("speed")

	typ, modeMsg, err := conn.ReadMessage()
	if err != nil || typ != websocket.TextMessage {
		return
	}
	mode := string(modeMsg)
	log = log.WithField("mode", mode)
	log.Info("Echo server: Speed test mode selected")

	closedCtx, closed := context.WithCancel(req.Context())
	defer closed()
	var grp errgroup.Group
	var sent, received int64
	start := time.Now()

	if mode == ModeRecv || mode == ModeBoth {
		grp.Go(func() error {
			msg := make([]byte, SpeedMessageSize)
			for i := range msg {
				msg[i] = 1
			}
			for closedCtx.Err() == nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
					return nil //Closed underneath us
				}
				atomic.AddInt64(&sent, int64(len(msg)))
				s.metrics.sent("speed", len(msg))
			}
			return nil
		})
	}

	grp.Go(func() error {
		defer closed()
		for {
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					return nil
				}
				return err
			}
			if typ == websocket.BinaryMessage && (mode == ModeSend || mode == ModeBoth) {
				atomic.AddInt64(&received, int64(len(msg)))
				s.metrics.received("speed", len(msg))
			}
		}
	})

	err = grp.Wait()
	secs := time.Since(start).Seconds()
	entry := log.WithField("sent_mb", float64(sent)/(1<<20)).
		WithField("received_mb", float64(received)/(1<<20)).
		WithField("seconds", secs)
	if err != nil {
		entry.WithError(err).Warn("Echo server: Speed test ended with error")
		return
	}
	entry.Info("Echo server: Speed test complete")
}
