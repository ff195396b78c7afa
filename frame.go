package wsweb

import (
	"bytes"
	"fmt"
)

//MessageType is the kind of payload carried by a Frame.
type MessageType uint8

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

func (mt MessageType) String() string {
	switch mt {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(mt))
	}
}

//Frame is one discrete websocket message, either text or binary. A Frame is
// immutable: constructors copy their input and accessors copy their output.
type Frame struct {
	typ  MessageType
	data []byte
}

//TextFrame returns a text frame holding s.
func TextFrame(s string) Frame {
	return Frame{typ: MessageText, data: []byte(s)}
}

//BinaryFrame returns a binary frame holding a copy of buf.
func BinaryFrame(buf []byte) Frame {
	data := make([]byte, len(buf))
	copy(data, buf)
	return Frame{typ: MessageBinary, data: data}
}

//newFrame takes ownership of data without copying; callers must not retain it.
func newFrame(typ MessageType, data []byte) Frame {
	if data == nil {
		data = []byte{}
	}
	return Frame{typ: typ, data: data}
}

func (f Frame) Type() MessageType { return f.typ }

func (f Frame) IsText() bool { return f.typ == MessageText }

func (f Frame) IsBinary() bool { return f.typ == MessageBinary }

//IsZero reports whether f is the zero Frame, which is returned alongside errors.
func (f Frame) IsZero() bool { return f.typ == 0 }

//Len is the payload length in bytes.
func (f Frame) Len() int { return len(f.data) }

//Text returns the payload as a string. Binary payloads are returned as-is.
func (f Frame) Text() string { return string(f.data) }

//Bytes returns a copy of the payload. Text payloads are returned UTF-8 encoded.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.data))
	copy(buf, f.data)
	return buf
}

//Equal reports whether both frames have the same type and payload.
func (f Frame) Equal(other Frame) bool {
	return f.typ == other.typ && bytes.Equal(f.data, other.data)
}

func (f Frame) String() string {
	if f.IsText() {
		return fmt.Sprintf("Text(%q)", f.data)
	}
	return fmt.Sprintf("%s(%d bytes)", titleType(f.typ), len(f.data))
}

func titleType(mt MessageType) string {
	switch mt {
	case MessageText:
		return "Text"
	case MessageBinary:
		return "Binary"
	default:
		return "Frame"
	}
}
