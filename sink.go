package wsweb

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

//OutgoingSink is the sending half of a connection. Frames are accepted one at a time:
// PollReady must report ready before each StartSend. The host buffered amount is the
// backpressure signal.
type OutgoingSink struct {
	conn *conn
	ref  *ref //nil for the view embedded in a WebSocket

	writeLock sync.Mutex
}

var _ io.Writer = (*OutgoingSink)(nil)

//PollReady reports whether a frame may be sent now. It fails with ErrClosing or
// ErrAlreadyClosed once a close has begun, and with the host's error once one is seen. While Connecting, or while the host buffers
// at least the configured send buffer size, it keeps w and reports not ready.
func (s *OutgoingSink) PollReady(w Waker) (bool, error) {
	b := s.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.cur {
	case StateClosed:
		return false, ErrAlreadyClosed
	case StateClosing:
		return false, &SendError{State: StateClosing, Err: ErrClosing}
	case StateConnecting:
		b.sinkWaker.register(w)
		return false, nil
	}
	if b.state.pending != nil {
		return false, &SendError{State: StateOpen, Err: b.state.pending}
	}

	if b.host.BufferedAmount() < b.cfg.SendBufferSize {
		b.sendReady = true
		return true, nil
	}
	b.sinkWaker.register(w)
	time.AfterFunc(b.cfg.BufferPollInterval, b.wakeSink)
	return false, nil
}

//StartSend hands f to the host. It must follow a PollReady that reported ready; the
// state is checked again since it may have changed in between.
func (s *OutgoingSink) StartSend(f Frame) error {
	b := s.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.cur {
	case StateClosed:
		return ErrAlreadyClosed
	case StateClosing:
		return &SendError{State: StateClosing, Err: ErrClosing}
	case StateConnecting:
		return &SendError{State: StateConnecting, Err: ErrNotReady}
	}
	if b.state.pending != nil {
		return &SendError{State: StateOpen, Err: b.state.pending}
	}
	if !b.sendReady {
		return ErrNotReady
	}
	b.sendReady = false

	if err := b.host.Send(f); err != nil {
		b.log.WithError(err).WithField("frame", f.String()).Warn("Websocket: Host rejected frame")
		return &SendError{State: StateOpen, Err: err}
	}
	b.log.WithField("frame", f.String()).Debug("Websocket: Write")
	return nil
}

//PollFlush reports whether previously sent frames have been handed off. Host sends
// are fire-and-forget, so this is pending only while the host buffer is at or above
// the send buffer size.
func (s *OutgoingSink) PollFlush(w Waker) (bool, error) {
	b := s.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.cur {
	case StateClosed:
		return false, ErrAlreadyClosed
	case StateClosing:
		return false, &SendError{State: StateClosing, Err: ErrClosing}
	case StateConnecting:
		return true, nil
	}
	if b.state.pending != nil {
		return false, &SendError{State: StateOpen, Err: b.state.pending}
	}

	if b.host.BufferedAmount() < b.cfg.SendBufferSize {
		return true, nil
	}
	b.sinkWaker.register(w)
	time.AfterFunc(b.cfg.BufferPollInterval, b.wakeSink)
	return false, nil
}

//PollClose starts a normal closure if none has begun and reports ready once the
// connection is Closed. Calling it again after that returns the same result.
func (s *OutgoingSink) PollClose(w Waker) (bool, error) {
	b := s.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.cur == StateClosed {
		return true, nil
	}
	if _, err := b.beginCloseLocked(StatusNormalClosure, ""); err != nil {
		b.log.WithError(err).Warn("Websocket: Host close failed")
	}
	b.sinkWaker.register(w)
	return false, nil
}

//Send waits until the sink is ready and sends f.
func (s *OutgoingSink) Send(ctx context.Context, f Frame) error {
	w := newSignalWaker()
	for {
		ready, err := s.PollReady(w)
		if err != nil {
			return err
		}
		if ready {
			return s.StartSend(f)
		}
		select {
		case <-w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

//Flush waits for PollFlush to report ready.
func (s *OutgoingSink) Flush(ctx context.Context) error {
	return pollUntil(ctx, s.PollFlush)
}

//Shutdown flushes, then closes the connection normally and waits for Closed.
func (s *OutgoingSink) Shutdown(ctx context.Context) error {
	err := s.Flush(ctx)
	if err != nil && !errors.Is(err, ErrClosing) && !errors.Is(err, ErrAlreadyClosed) {
		return err
	}
	return pollUntil(ctx, s.PollClose)
}

//Write implements io.Writer; each call is sent as one binary frame.
func (s *OutgoingSink) Write(buf []byte) (int, error) {
	return s.write(context.Background(), buf)
}

func (s *OutgoingSink) write(ctx context.Context, buf []byte) (int, error) {
	//Check for noop
	if len(buf) < 1 {
		return 0, nil
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := s.Send(ctx, BinaryFrame(buf)); err != nil {
		return 0, err
	}
	return len(buf), nil
}

//Release drops this half's reference to the connection. The connection is closed
// once the handle and both halves have been released.
func (s *OutgoingSink) Release() {
	if s.ref != nil {
		s.ref.release()
	}
}

func pollUntil(ctx context.Context, poll func(Waker) (bool, error)) error {
	w := newSignalWaker()
	for {
		ready, err := poll(w)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
