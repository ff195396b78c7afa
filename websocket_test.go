package wsweb

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"
)

func TestConnectHostConstructionFails(t *testing.T) {
	dialErr := errors.New("SyntaxError: bad url")
	_, err := Connect(context.Background(), "nope://x", WithHostDialer(func(HostConfig, HostEvents) (HostSocket, error) {
		return nil, dialErr
	}))

	var connErr *ConnectError
	assert.Assert(t, errors.As(err, &connErr))
	assert.Equal(t, connErr.URL, "nope://x")
	assert.Assert(t, errors.Is(err, dialErr))
}

func TestConnectInvalidConfig(t *testing.T) {
	_, err := New("ws://fake.test", WithSendBufferSize(0))
	var connErr *ConnectError
	assert.Assert(t, errors.As(err, &connErr))
	assert.Check(t, is.ErrorContains(err, "send buffer size"))
}

func TestHostConfigPassedToDialer(t *testing.T) {
	ws, fh := newFakeWebSocket(t, WithProtocols(" chat ", "", "chat", "v2"), WithReceiveBufferSize(1024))
	defer ws.Release()

	assert.Equal(t, fh.cfg.URL, "ws://fake.test/socket")
	assert.DeepEqual(t, fh.cfg.Protocols, []string{"chat", "v2"})
	assert.Equal(t, fh.cfg.MaxMessageSize, int64(1024))
	assert.Equal(t, ws.URL(), "ws://fake.test/socket")
	assert.Assert(t, ws.ID() != "")
}

func TestWaitOpen(t *testing.T) {
	ws, fh := newFakeWebSocket(t)
	defer ws.Release()
	fh.protocol = "chat"
	assert.Equal(t, ws.Protocol(), "", "no protocol before open")

	done := make(chan error, 1)
	go func() { done <- ws.WaitOpen(context.Background()) }()
	fh.fireOpen()
	assert.NilError(t, <-done)
	assert.Equal(t, ws.State(), StateOpen)
	assert.Equal(t, ws.Protocol(), "chat")
}

func TestErrorBeforeOpenFailsConnect(t *testing.T) {
	ws, fh := newFakeWebSocket(t)
	defer ws.Release()

	fh.fireError("connection refused")
	fh.fireClose(CloseInfo{Code: StatusAbnormalClosure})
	fh.fireOpen()

	err := ws.WaitOpen(context.Background())
	var connErr *ConnectError
	assert.Assert(t, errors.As(err, &connErr))
	assert.Check(t, is.ErrorContains(err, "connection refused"))
	assert.Equal(t, ws.State(), StateClosed, "no Open event is observed afterwards")

	_, err = ws.OutgoingSink.PollReady(&countingWaker{})
	assert.Assert(t, errors.Is(err, ErrAlreadyClosed))
}

func TestWaitOpenContextCancelClosesSocket(t *testing.T) {
	ws, fh := newFakeWebSocket(t)
	defer ws.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ws.WaitOpen(ctx)

	var connErr *ConnectError
	assert.Assert(t, errors.As(err, &connErr))
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, ws.State(), StateClosing)
	assert.DeepEqual(t, fh.closeCalls(), []closeCall{{StatusNone, ""}}, cmpCloseCall)
}

func TestPollNextWakesOnMessage(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	w := &countingWaker{}
	_, ready, err := ws.PollNext(w)
	assert.NilError(t, err)
	assert.Assert(t, !ready)

	fh.fireMessage(TextFrame("one"))
	fh.fireMessage(TextFrame("two"))
	assert.Equal(t, w.count(), 1, "pushes between polls coalesce into one wake")

	f, ready, err := ws.PollNext(w)
	assert.NilError(t, err)
	assert.Assert(t, ready)
	assert.Equal(t, f.Text(), "one")
}

func TestPollNextLastWakerWins(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	first, second := &countingWaker{}, &countingWaker{}
	_, ready, _ := ws.PollNext(first)
	assert.Assert(t, !ready)
	_, ready, _ = ws.PollNext(second)
	assert.Assert(t, !ready)

	fh.fireMessage(BinaryFrame([]byte{1}))
	assert.Equal(t, first.count(), 0)
	assert.Equal(t, second.count(), 1)
}

func TestStreamDrainsAfterGracefulClose(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	want := []Frame{TextFrame("a"), BinaryFrame([]byte("b")), TextFrame("c")}
	for _, f := range want {
		fh.fireMessage(f)
	}
	fh.fireCleanClose(StatusNormalClosure, "bye")
	fh.fireMessage(TextFrame("after close"))

	ctx := context.Background()
	var got []Frame
	for {
		f, err := ws.Next(ctx)
		if err == io.EOF {
			break
		}
		assert.NilError(t, err)
		got = append(got, f)
	}
	assert.DeepEqual(t, got, want)

	for i := 0; i < 3; i++ {
		_, ready, err := ws.PollNext(&countingWaker{})
		assert.Assert(t, ready)
		assert.Equal(t, err, io.EOF, "exhausted forever")
	}

	info, err := ws.Closed(ctx)
	assert.NilError(t, err)
	assert.Equal(t, info, CloseInfo{Code: StatusNormalClosure, Reason: "bye", WasClean: true})
}

func TestErrorWhileOpenResolvesPendingPoll(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	stream, sink := &countingWaker{}, &countingWaker{}
	_, ready, _ := ws.PollNext(stream)
	assert.Assert(t, !ready)
	fh.setBuffered(DefaultSendBufferSize)
	ready, _ = ws.PollReady(sink)
	assert.Assert(t, !ready)

	fh.fireError("network reset")
	assert.Equal(t, stream.count(), 1)
	assert.Assert(t, sink.count() >= 1)
	assert.Equal(t, ws.State(), StateOpen, "closed by the host's close event")

	_, ready, err := ws.PollNext(stream)
	assert.Assert(t, ready)
	var protoErr *ProtocolError
	assert.Assert(t, errors.As(err, &protoErr))
	assert.Equal(t, protoErr.Desc, "network reset")

	_, err = ws.PollReady(sink)
	var sendErr *SendError
	assert.Assert(t, errors.As(err, &sendErr))
	assert.Assert(t, errors.As(err, &protoErr))

	_, ready, err = ws.PollNext(stream)
	assert.NilError(t, err)
	assert.Assert(t, !ready, "nothing more until the close event")
}

func TestErrorThenCloseKeepsHostCloseInfo(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	fh.fireMessage(TextFrame("before"))
	fh.fireError("network error")
	hostInfo := CloseInfo{Code: StatusInternalError, Reason: "server crashed"}
	fh.fireClose(hostInfo)

	ctx := context.Background()
	info, err := ws.Closed(ctx)
	assert.NilError(t, err)
	assert.Equal(t, info, hostInfo)

	f, err := ws.Next(ctx)
	assert.NilError(t, err)
	assert.Equal(t, f.Text(), "before")
	_, err = ws.Next(ctx)
	assert.Check(t, is.ErrorContains(err, "network error"))
	_, err = ws.Next(ctx)
	assert.Equal(t, err, io.EOF)

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if fh.isDetached() {
			return poll.Success()
		}
		return poll.Continue("host not detached yet")
	}, poll.WithTimeout(time.Second))
}

func TestErrorWithoutCloseEventTimesOut(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t, WithCloseTimeout(20*time.Millisecond))
	defer ws.Release()

	fh.fireError("network reset")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := ws.Closed(ctx)
	assert.NilError(t, err)
	assert.Equal(t, info, CloseInfo{Code: StatusAbnormalClosure, Reason: "network reset"})

	_, err = ws.Next(ctx)
	var protoErr *ProtocolError
	assert.Assert(t, errors.As(err, &protoErr))
	_, err = ws.Next(ctx)
	assert.Equal(t, err, io.EOF)
}

func TestErrorWhileClosingIsTerminalReason(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	assert.NilError(t, ws.Close(StatusNormalClosure, "done"))
	fh.fireError("late failure")
	assert.Equal(t, ws.State(), StateClosing)
	fh.fireClose(CloseInfo{Code: StatusAbnormalClosure})

	_, err := ws.Next(context.Background())
	assert.Check(t, is.ErrorContains(err, "late failure"))
	_, err = ws.Next(context.Background())
	assert.Equal(t, err, io.EOF)
}

func TestUncleanCloseReportsCloseError(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	fh.fireMessage(TextFrame("queued"))
	fh.fireClose(CloseInfo{Code: StatusAbnormalClosure})

	f, err := ws.Next(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, f.Text(), "queued")

	_, err = ws.Next(context.Background())
	var closeErr *CloseError
	assert.Assert(t, errors.As(err, &closeErr))
	assert.Equal(t, closeErr.Info.Code, StatusAbnormalClosure)
}

func TestReceiveBufferOverflow(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t, WithReceiveBufferSize(8))
	defer ws.Release()

	fh.fireMessage(BinaryFrame(make([]byte, 6)))
	fh.fireMessage(BinaryFrame(make([]byte, 6)))
	assert.Equal(t, ws.State(), StateClosed)
	assert.DeepEqual(t, fh.closeCalls(), []closeCall{{StatusNone, ""}}, cmpCloseCall)

	f, err := ws.Next(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, f.Len(), 6, "queued frames still drain")

	_, err = ws.Next(context.Background())
	var closeErr *CloseError
	assert.Assert(t, errors.As(err, &closeErr))
	assert.Equal(t, closeErr.Info, CloseInfo{Code: StatusMessageTooBig, Reason: "receive buffer overflow"})
}

func TestCloseIsIdempotent(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	assert.NilError(t, ws.Close(StatusNormalClosure, "done"))
	assert.NilError(t, ws.Close(3001, "again"))
	assert.Equal(t, ws.State(), StateClosing)
	assert.DeepEqual(t, fh.closeCalls(), []closeCall{{StatusNormalClosure, "done"}}, cmpCloseCall)

	fh.fireCleanClose(StatusNormalClosure, "done")
	assert.NilError(t, ws.Close(StatusNormalClosure, "after"))
	assert.Equal(t, len(fh.closeCalls()), 1)
}

func TestCloseRejectsInvalidCode(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	assert.Assert(t, errors.Is(ws.Close(StatusAbnormalClosure, ""), ErrInvalidCloseCode))
	assert.Equal(t, ws.State(), StateOpen)
	assert.Equal(t, len(fh.closeCalls()), 0)
}

func TestCloseWhileConnecting(t *testing.T) {
	ws, fh := newFakeWebSocket(t)
	defer ws.Release()

	assert.NilError(t, ws.Close(StatusNormalClosure, ""))
	assert.Equal(t, ws.State(), StateClosing)
	fh.fireClose(CloseInfo{Code: StatusAbnormalClosure})
	assert.Equal(t, ws.State(), StateClosed)

	var connErr *ConnectError
	assert.Assert(t, errors.As(ws.WaitOpen(context.Background()), &connErr))
}

func TestCloseTimeout(t *testing.T) {
	ws, _ := newOpenFakeWebSocket(t, WithCloseTimeout(20*time.Millisecond))
	defer ws.Release()

	assert.NilError(t, ws.Close(StatusNormalClosure, ""))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := ws.Closed(ctx)
	assert.NilError(t, err)
	assert.Equal(t, info, CloseInfo{Code: StatusAbnormalClosure, Reason: "close handshake timed out"})
}

func TestSplitReferenceCounting(t *testing.T) {
	t.Run("one half released", func(t *testing.T) {
		ws, fh := newOpenFakeWebSocket(t)
		rx, tx := ws.Split()
		ws.Release() //Handed over by Split; a no-op
		rx.Release()

		assert.Equal(t, ws.State(), StateOpen)
		assert.Equal(t, len(fh.closeCalls()), 0)
		assert.NilError(t, tx.Send(context.Background(), TextFrame("still open")))
		tx.Release()
	})

	t.Run("both halves released", func(t *testing.T) {
		ws, fh := newOpenFakeWebSocket(t)
		rx, tx := ws.Split()
		tx.Release()
		tx.Release()
		assert.Equal(t, len(fh.closeCalls()), 0, "double release counts once")
		rx.Release()

		assert.Equal(t, ws.State(), StateClosing)
		assert.DeepEqual(t, fh.closeCalls(), []closeCall{{StatusNone, ""}}, cmpCloseCall)
	})

	t.Run("split is idempotent", func(t *testing.T) {
		ws, _ := newOpenFakeWebSocket(t)
		rx1, tx1 := ws.Split()
		rx2, tx2 := ws.Split()
		assert.Assert(t, rx1 == rx2)
		assert.Assert(t, tx1 == tx2)
		rx1.Release()
		tx1.Release()
	})

	t.Run("unsplit handle released", func(t *testing.T) {
		ws, fh := newOpenFakeWebSocket(t)
		ws.Release()
		assert.DeepEqual(t, fh.closeCalls(), []closeCall{{StatusNone, ""}}, cmpCloseCall)
	})
}

func TestSplitHalvesAcrossGoroutines(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	rx, tx := ws.Split()
	defer rx.Release()
	defer tx.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Frame, 1)
	go func() {
		f, err := rx.Next(ctx)
		if err == nil {
			received <- f
		}
	}()
	assert.NilError(t, tx.Send(ctx, TextFrame("hello")))
	fh.fireMessage(fh.sentFrames()[0])

	select {
	case f := <-received:
		assert.Equal(t, f.Text(), "hello")
	case <-ctx.Done():
		t.Fatal("Timed out waiting for frame")
	}
}

func TestReaderAndWriter(t *testing.T) {
	ws, fh := newOpenFakeWebSocket(t)
	defer ws.Release()

	n, err := ws.Write([]byte("payload"))
	assert.NilError(t, err)
	assert.Equal(t, n, 7)
	assert.DeepEqual(t, fh.sentFrames(), []Frame{BinaryFrame([]byte("payload"))})

	fh.fireMessage(TextFrame("abcdef"))
	fh.fireCleanClose(StatusNormalClosure, "")
	buf := make([]byte, 4)
	n, err = ws.Read(buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf[:n]), "abcd")
	rest, err := io.ReadAll(ws.IncomingStream)
	assert.NilError(t, err)
	assert.Equal(t, string(rest), "ef")
}

var cmpCloseCall = cmp.AllowUnexported(closeCall{})
