package wsweb

import (
	"fmt"
	"strconv"
)

//CloseCode is a websocket close status code. Codes are passed to and from the host
// verbatim.
type CloseCode uint16

//Registered close codes, see https://www.iana.org/assignments/websocket/websocket.xml#close-code-number
const (
	//StatusNone asks the host to close without sending a code.
	StatusNone CloseCode = 0

	StatusNormalClosure           CloseCode = 1000
	StatusGoingAway               CloseCode = 1001
	StatusProtocolError           CloseCode = 1002
	StatusUnsupportedData         CloseCode = 1003
	StatusNoStatusRcvd            CloseCode = 1005
	StatusAbnormalClosure         CloseCode = 1006
	StatusInvalidFramePayloadData CloseCode = 1007
	StatusPolicyViolation         CloseCode = 1008
	StatusMessageTooBig           CloseCode = 1009
	StatusMandatoryExtension      CloseCode = 1010
	StatusInternalError           CloseCode = 1011
	StatusServiceRestart          CloseCode = 1012
	StatusTryAgainLater           CloseCode = 1013
	StatusBadGateway              CloseCode = 1014
	StatusTLSHandshake            CloseCode = 1015
)

var closeCodeNames = map[CloseCode]string{
	StatusNormalClosure:           "normal closure",
	StatusGoingAway:               "going away",
	StatusProtocolError:           "protocol error",
	StatusUnsupportedData:         "unsupported data",
	StatusNoStatusRcvd:            "no status rcvd",
	StatusAbnormalClosure:         "abnormal closure",
	StatusInvalidFramePayloadData: "invalid frame payload data",
	StatusPolicyViolation:         "policy violation",
	StatusMessageTooBig:           "message too big",
	StatusMandatoryExtension:      "mandatory ext",
	StatusInternalError:           "internal error",
	StatusServiceRestart:          "service restart",
	StatusTryAgainLater:           "try again later",
	StatusBadGateway:              "bad gateway",
	StatusTLSHandshake:            "TLS handshake",
}

func (cc CloseCode) String() string {
	if name, ok := closeCodeNames[cc]; ok {
		return name
	}
	return strconv.Itoa(int(cc))
}

//Valid reports whether a client may initiate a close with this code. Browsers only
// accept 1000 and the application range 3000-4999.
func (cc CloseCode) Valid() bool {
	return cc == StatusNormalClosure || (cc >= 3000 && cc <= 4999)
}

//CloseInfo describes how a connection closed. It is produced once per connection.
type CloseInfo struct {
	Code     CloseCode
	Reason   string
	WasClean bool
}

func (ci CloseInfo) String() string {
	clean := "clean"
	if !ci.WasClean {
		clean = "unclean"
	}
	if ci.Reason == "" {
		return fmt.Sprintf("%s (%d, %s)", ci.Code, uint16(ci.Code), clean)
	}
	return fmt.Sprintf("%s: %s (%d, %s)", ci.Reason, ci.Code, uint16(ci.Code), clean)
}
