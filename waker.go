package wsweb

//Waker is a notification handle passed to the Poll* methods. When a poll reports not
// ready it keeps the waker and calls Wake once the awaited condition may have changed,
// after which the caller should poll again.
type Waker interface {
	Wake()
}

//WakerFunc adapts a function to the Waker interface.
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

//wakerSlot holds at most one waker. Registering supersedes the previous waker and a
// wake consumes the slot, so pushes between two polls result in a single Wake call.
type wakerSlot struct {
	w Waker
}

func (ws *wakerSlot) register(w Waker) {
	ws.w = w
}

func (ws *wakerSlot) take() Waker {
	w := ws.w
	ws.w = nil
	return w
}

//signalWaker is the waker used by the blocking helpers. Wake never blocks and
// coalesces into a single pending signal.
type signalWaker chan struct{}

func newSignalWaker() signalWaker {
	return make(signalWaker, 1)
}

func (sw signalWaker) Wake() {
	select {
	case sw <- struct{}{}:
	default:
	}
}

func wakeAll(wakers ...Waker) {
	for _, w := range wakers {
		if w != nil {
			w.Wake()
		}
	}
}
