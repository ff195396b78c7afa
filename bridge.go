package wsweb

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
)

//eventBridge turns host callbacks into state that the poll side can consume. It is the
// HostEvents implementation handed to the host, and it guards the connection state,
// the frame queue, and the per-side wakers.
type eventBridge struct {
	url string
	cfg Config
	log logrus.FieldLogger

	mu    sync.Mutex
	host  HostSocket
	state connState

	frames      *queue.Queue //of Frame
	queuedBytes int

	streamWaker wakerSlot
	sinkWaker   wakerSlot
	sendReady   bool

	closeTimer *time.Timer
	errTimer   *time.Timer
	openCh     chan struct{}
	closedCh   chan struct{}
}

var _ HostEvents = (*eventBridge)(nil)

func newEventBridge(url string, cfg Config, log logrus.FieldLogger) *eventBridge {
	return &eventBridge{
		url:      url,
		cfg:      cfg,
		log:      log,
		frames:   queue.New(),
		openCh:   make(chan struct{}),
		closedCh: make(chan struct{}),
	}
}

func (b *eventBridge) OnOpen() {
	b.mu.Lock()
	if !b.state.open() {
		b.mu.Unlock()
		b.dropped("open")
		return
	}
	b.log.Debug("Websocket: Open event")
	close(b.openCh)
	stream, sink := b.streamWaker.take(), b.sinkWaker.take()
	b.mu.Unlock()

	wakeAll(stream, sink)
}

func (b *eventBridge) OnMessage(f Frame) {
	b.mu.Lock()
	if b.state.cur == StateClosed {
		b.mu.Unlock()
		b.dropped("message")
		return
	}

	if b.queuedBytes+f.Len() > b.cfg.ReceiveBufferSize {
		b.log.WithField("queued", b.queuedBytes).WithField("size", f.Len()).Warn("Websocket: Receive buffer overflow")
		host := b.host
		wakers := b.closeLocked(CloseInfo{Code: StatusMessageTooBig, Reason: "receive buffer overflow"})
		b.mu.Unlock()

		if host != nil {
			if err := host.Close(StatusNone, ""); err != nil {
				b.log.WithError(err).Debug("Websocket: Host close after overflow failed")
			}
		}
		wakeAll(wakers...)
		return
	}

	b.frames.Add(f)
	b.queuedBytes += f.Len()
	stream := b.streamWaker.take()
	b.mu.Unlock()

	wakeAll(stream)
}

func (b *eventBridge) OnError(desc string) {
	b.mu.Lock()
	if b.state.cur == StateClosed {
		b.mu.Unlock()
		b.dropped("error")
		return
	}
	b.log.WithField("desc", desc).Debug("Websocket: Error event")

	from := b.state.cur
	if !b.state.fail(b.url, desc) {
		b.mu.Unlock()
		return
	}
	var wakers []Waker
	if b.state.cur == StateClosed {
		wakers = b.closedLocked(from)
	} else {
		//Held until the close event; hosts that never send one are closed by the timer
		if from == StateOpen {
			b.errTimer = time.AfterFunc(b.cfg.CloseTimeout, func() { b.errorTimedOut(desc) })
		}
		wakers = []Waker{b.streamWaker.take(), b.sinkWaker.take()}
	}
	b.mu.Unlock()

	wakeAll(wakers...)
}

func (b *eventBridge) OnClose(info CloseInfo) {
	b.mu.Lock()
	if b.state.cur == StateClosed {
		b.mu.Unlock()
		b.dropped("close")
		return
	}
	b.log.WithField("close", info.String()).Debug("Websocket: Close event")
	wakers := b.closeLocked(info)
	b.mu.Unlock()

	wakeAll(wakers...)
}

func (b *eventBridge) OnBufferDrained() {
	b.mu.Lock()
	sink := b.sinkWaker.take()
	b.mu.Unlock()

	wakeAll(sink)
}

//closeLocked moves to Closed with info and returns the wakers to call once unlocked.
func (b *eventBridge) closeLocked(info CloseInfo) []Waker {
	from := b.state.cur
	if !b.state.close(b.url, info) {
		return nil
	}
	return b.closedLocked(from)
}

//closedLocked runs the side effects of reaching Closed from state from.
func (b *eventBridge) closedLocked(from State) []Waker {
	b.log.WithField("from", from.String()).WithField("close", b.state.info.String()).Debug("Websocket: Closed")
	if b.closeTimer != nil {
		b.closeTimer.Stop()
	}
	if b.errTimer != nil {
		b.errTimer.Stop()
	}
	b.sendReady = false
	close(b.closedCh)

	if host := b.host; host != nil {
		go host.Detach() //Don't release a JS callback from inside itself
	}
	return []Waker{b.streamWaker.take(), b.sinkWaker.take()}
}

//beginCloseLocked requests a local close and forwards it to the host. It reports
// whether this call started the close.
func (b *eventBridge) beginCloseLocked(code CloseCode, reason string) (bool, error) {
	if !b.state.requestClose() {
		return false, nil
	}
	b.log.WithField("code", uint16(code)).WithField("reason", reason).Debug("Websocket: Internal close")
	b.sendReady = false
	b.closeTimer = time.AfterFunc(b.cfg.CloseTimeout, b.closeTimedOut)
	go b.wakeSink() //A pending PollReady now fails with ErrClosing

	if b.host == nil {
		return true, nil
	}
	return true, b.host.Close(code, reason)
}

//closeTimedOut is the fallback for a host that never confirms a local close.
func (b *eventBridge) closeTimedOut() {
	b.mu.Lock()
	if b.state.cur != StateClosing {
		b.mu.Unlock()
		return
	}
	b.log.WithField("timeout", b.cfg.CloseTimeout).Warn("Websocket: Close handshake timed out")
	wakers := b.closeLocked(CloseInfo{Code: StatusAbnormalClosure, Reason: "close handshake timed out"})
	b.mu.Unlock()

	wakeAll(wakers...)
}

//errorTimedOut closes a connection whose host reported an error but no close event.
func (b *eventBridge) errorTimedOut(desc string) {
	b.mu.Lock()
	if b.state.cur == StateClosed {
		b.mu.Unlock()
		return
	}
	b.log.WithField("timeout", b.cfg.CloseTimeout).Warn("Websocket: No close event after error")
	wakers := b.closeLocked(CloseInfo{Code: StatusAbnormalClosure, Reason: desc})
	b.mu.Unlock()

	wakeAll(wakers...)
}

//popFrameLocked is the stream side take: the next queued frame, if any.
func (b *eventBridge) popFrameLocked() (Frame, bool) {
	if b.frames.Length() == 0 {
		return Frame{}, false
	}
	f := b.frames.Remove().(Frame)
	b.queuedBytes -= f.Len()
	return f, true
}

//wakeSink is the backpressure polling fallback.
func (b *eventBridge) wakeSink() {
	b.mu.Lock()
	sink := b.sinkWaker.take()
	b.mu.Unlock()

	wakeAll(sink)
}

func (b *eventBridge) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.cur
}

func (b *eventBridge) dropped(event string) {
	b.log.WithField("event", event).Debug("Websocket: Ignoring event after close")
}
