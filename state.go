package wsweb

import "fmt"

//State is the lifecycle stage of a connection. States only ever move forward.
type State uint8

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

//connState is the connection state machine. It is not safe for concurrent use; the
// owning eventBridge serializes access.
type connState struct {
	cur  State
	info CloseInfo

	//err is the terminal error handed to the stream once, after draining.
	err      error
	errTaken bool

	//pending holds a host error seen after Open until the close event arrives.
	pending error
}

//advance moves to the next state if that is a forward move.
func (cs *connState) advance(to State) bool {
	if to <= cs.cur {
		return false
	}
	cs.cur = to
	return true
}

//open handles the host open event: Connecting -> Open.
func (cs *connState) open() bool {
	if cs.cur != StateConnecting {
		return false
	}
	return cs.advance(StateOpen)
}

//requestClose handles a local close request: Connecting|Open -> Closing.
func (cs *connState) requestClose() bool {
	if cs.cur != StateConnecting && cs.cur != StateOpen {
		return false
	}
	return cs.advance(StateClosing)
}

//close handles the host close event and any synthesized close. The first call fixes
// the CloseInfo; later calls are ignored.
func (cs *connState) close(url string, info CloseInfo) bool {
	from := cs.cur
	if !cs.advance(StateClosed) {
		return false
	}
	cs.info = info

	switch {
	case from == StateConnecting:
		reason := info.Reason
		if reason == "" {
			reason = fmt.Sprintf("closed before open (%s)", info)
		}
		cs.err = &ConnectError{URL: url, Reason: reason, Err: cs.pending}
	case cs.pending != nil:
		cs.err = cs.pending
	case !info.WasClean:
		cs.err = &CloseError{Info: info}
	}
	return true
}

//fail handles a host error event. Before Open it fails the handshake. Later the first
// error is held as the terminal reason and the CloseInfo still comes from the host's
// close event. It reports whether anything changed.
func (cs *connState) fail(url, desc string) bool {
	switch cs.cur {
	case StateConnecting:
		cs.pending = &ProtocolError{Desc: desc}
		return cs.close(url, CloseInfo{Code: StatusAbnormalClosure, Reason: desc})
	case StateOpen, StateClosing:
		if cs.pending != nil {
			return false
		}
		cs.pending = &ProtocolError{Desc: desc}
		return true
	}
	return false
}

//takePending hands out a held host error before Closed so a waiting poll resolves
// with it. It counts as the terminal error, which is reported only once.
func (cs *connState) takePending() error {
	if cs.pending == nil || cs.errTaken {
		return nil
	}
	cs.errTaken = true
	return cs.pending
}

//takeErr returns the terminal error the first time it is called after Closed.
func (cs *connState) takeErr() error {
	if cs.cur != StateClosed || cs.errTaken {
		return nil
	}
	cs.errTaken = true
	return cs.err
}
