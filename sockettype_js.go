package wsweb

import (
	"syscall/js"
)

const (
	socketTypeUnknown socketType = iota
	socketTypeBlob
	socketTypeArrayBuffer
)

//socketType mirrors the JavaScript websocket.binaryType property, which decides how
// binary message payloads are delivered.
// See https://developer.mozilla.org/en-US/docs/Web/API/WebSocket/binaryType
type socketType uint8

//newSocketType returns the socket type of the provided JavaScript websocket object
func newSocketType(websocket js.Value) socketType {
	switch websocket.Get("binaryType").String() {
	case "blob":
		return socketTypeBlob
	case "arraybuffer":
		return socketTypeArrayBuffer
	default:
		return socketTypeUnknown
	}
}

func (st socketType) String() string {
	switch st {
	case socketTypeArrayBuffer:
		return "arraybuffer"
	case socketTypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

//Set sets the type of the provided JavaScript websocket to itself
func (st socketType) Set(websocket js.Value) {
	websocket.Set("binaryType", st.String())
	if debugVerbose {
		println("Websocket: Set websocket binaryType (mode) to", st.String())
	}
}
