package wsweb

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

type closeCall struct {
	code   CloseCode
	reason string
}

//fakeHost is a scripted HostSocket. Tests fire events through fire* on the test
// goroutine, which matches the host contract of never firing from inside a method.
type fakeHost struct {
	mu       sync.Mutex
	cfg      HostConfig
	events   HostEvents
	sent     []Frame
	closes   []closeCall
	buffered int
	protocol string
	sendErr  error
	detached bool
}

func (fh *fakeHost) Send(f Frame) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	if fh.sendErr != nil {
		return fh.sendErr
	}
	fh.sent = append(fh.sent, f)
	return nil
}

func (fh *fakeHost) Close(code CloseCode, reason string) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.closes = append(fh.closes, closeCall{code, reason})
	return nil
}

func (fh *fakeHost) BufferedAmount() int {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.buffered
}

func (fh *fakeHost) Protocol() string {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.protocol
}

func (fh *fakeHost) Detach() {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.detached = true
}

func (fh *fakeHost) setBuffered(n int) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.buffered = n
}

func (fh *fakeHost) sentFrames() []Frame {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return append([]Frame(nil), fh.sent...)
}

func (fh *fakeHost) closeCalls() []closeCall {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return append([]closeCall(nil), fh.closes...)
}

func (fh *fakeHost) isDetached() bool {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.detached
}

func (fh *fakeHost) fireOpen() { fh.events.OnOpen() }
func (fh *fakeHost) fireMessage(f Frame) { fh.events.OnMessage(f) }
func (fh *fakeHost) fireError(desc string) { fh.events.OnError(desc) }
func (fh *fakeHost) fireClose(info CloseInfo) { fh.events.OnClose(info) }
func (fh *fakeHost) fireDrained() { fh.events.OnBufferDrained() }
func (fh *fakeHost) fireCleanClose(code CloseCode, reason string) {
	fh.fireClose(CloseInfo{Code: code, Reason: reason, WasClean: true})
}

//countingWaker records how often it was woken.
type countingWaker struct {
	n int32
}

func (cw *countingWaker) Wake() { atomic.AddInt32(&cw.n, 1) }

func (cw *countingWaker) count() int { return int(atomic.LoadInt32(&cw.n)) }

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	return log.WithField("test", true)
}

//newFakeWebSocket returns a Connecting WebSocket backed by a fakeHost.
func newFakeWebSocket(t *testing.T, opts ...Option) (*WebSocket, *fakeHost) {
	t.Helper()
	fh := &fakeHost{}
	dialer := func(cfg HostConfig, events HostEvents) (HostSocket, error) {
		fh.cfg, fh.events = cfg, events
		return fh, nil
	}

	opts = append([]Option{WithLogger(testLogger()), WithCloseTimeout(time.Minute)}, opts...)
	opts = append(opts, WithHostDialer(dialer))
	ws, err := New("ws://fake.test/socket", opts...)
	assert.NilError(t, err)
	return ws, fh
}

//newOpenFakeWebSocket returns an Open WebSocket backed by a fakeHost.
func newOpenFakeWebSocket(t *testing.T, opts ...Option) (*WebSocket, *fakeHost) {
	t.Helper()
	ws, fh := newFakeWebSocket(t, opts...)
	fh.fireOpen()
	assert.Equal(t, ws.State(), StateOpen)
	return ws, fh
}

var errFakeRejected = errors.New("fake host rejected frame")
