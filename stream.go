package wsweb

import (
	"context"
	"io"
	"sync"
)

//IncomingStream is the receiving half of a connection: a forward-only sequence of
// frames that ends with io.EOF once the connection is Closed and every queued frame
// has been consumed. It has a single consumer.
type IncomingStream struct {
	conn *conn
	ref  *ref //nil for the view embedded in a WebSocket

	readLock  sync.Mutex
	remaining []byte
}

var _ io.Reader = (*IncomingStream)(nil)

//PollNext returns the next frame if one is queued. Otherwise, while the connection is
// not Closed, it keeps w and reports not ready. The terminal error (a host error, or
// an unclean close) is returned once after the queue drains, and io.EOF after Closed.
func (is *IncomingStream) PollNext(w Waker) (f Frame, ready bool, err error) {
	b := is.conn.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if f, ok := b.popFrameLocked(); ok {
		return f, true, nil
	}
	if b.state.cur == StateClosed {
		if err = b.state.takeErr(); err == nil {
			err = io.EOF
		}
		return Frame{}, true, err
	}
	if err = b.state.takePending(); err != nil {
		return Frame{}, true, err
	}
	b.streamWaker.register(w)
	return Frame{}, false, nil
}

//Next blocks until a frame arrives, the stream ends, or ctx is done.
func (is *IncomingStream) Next(ctx context.Context) (Frame, error) {
	w := newSignalWaker()
	for {
		f, ready, err := is.PollNext(w)
		if ready {
			return f, err
		}
		select {
		case <-w:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

//Read implements io.Reader over the payloads of incoming frames. Frames larger than
// buf are returned over several reads.
func (is *IncomingStream) Read(buf []byte) (int, error) {
	return is.read(context.Background(), buf)
}

func (is *IncomingStream) read(ctx context.Context, buf []byte) (int, error) {
	//Check for noop
	if len(buf) < 1 {
		return 0, nil
	}

	is.readLock.Lock()
	defer is.readLock.Unlock()

	for len(is.remaining) < 1 {
		f, err := is.Next(ctx)
		if err != nil {
			return 0, err
		}
		is.remaining = f.data
	}

	n := copy(buf, is.remaining)
	is.remaining = is.remaining[n:]
	return n, nil
}

//Release drops this half's reference to the connection. The connection is closed
// once the handle and both halves have been released.
func (is *IncomingStream) Release() {
	if is.ref != nil {
		is.ref.release()
	}
}
