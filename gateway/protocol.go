package gateway

import (
	jsoniter "github.com/json-iterator/go"
	"nhooyr.io/websocket"
)

var json = jsoniter.ConfigFastest

// ErrorCode is the internal error code carried in every close frame's
// structured reason payload.
type ErrorCode int

const (
	CodeExceededAllocatedUsage ErrorCode = 0
	CodeTimeout                ErrorCode = 1
	CodeAborted                ErrorCode = 2
	CodeConnectionReplaced     ErrorCode = 3
	CodeUnauthorized           ErrorCode = 4
	CodeShuttingDown           ErrorCode = 5
	CodeNotReady               ErrorCode = 6
	CodeInvalidData            ErrorCode = 7
	CodeServerError            ErrorCode = 99
)

func (c ErrorCode) String() string {
	switch c {
	case CodeExceededAllocatedUsage:
		return "ExceededAllocatedUsage"
	case CodeTimeout:
		return "Timeout"
	case CodeAborted:
		return "Aborted"
	case CodeConnectionReplaced:
		return "ConnectionReplaced"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeShuttingDown:
		return "ShuttingDown"
	case CodeNotReady:
		return "NotReady"
	case CodeInvalidData:
		return "InvalidData"
	case CodeServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

// StatusTimeout is the private-range close status used when a packet's
// transcription deadline expires.
const StatusTimeout = websocket.StatusCode(3008)

// CloseReason pairs a websocket close status with the internal error code
// and human-readable message serialized into the close frame's reason.
type CloseReason struct {
	Status  websocket.StatusCode
	Code    ErrorCode
	Message string
}

// ClosePayload is the wire form of the close frame reason.
type ClosePayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

func (r CloseReason) encode() string {
	payload, err := json.Marshal(ClosePayload{Error: r.Message, Code: r.Code})
	if err != nil {
		return r.Message
	}
	return string(payload)
}

// DecodeClosePayload parses the reason string of a close frame.
func DecodeClosePayload(reason string) (ClosePayload, error) {
	var payload ClosePayload
	err := json.UnmarshalFromString(reason, &payload)
	return payload, err
}

var (
	reasonUnauthorized = CloseReason{websocket.StatusPolicyViolation, CodeUnauthorized, "Unauthorized"}
	reasonExceeded     = CloseReason{websocket.StatusPolicyViolation, CodeExceededAllocatedUsage, "ExceededAllocatedUsage"}
	reasonReplaced     = CloseReason{websocket.StatusPolicyViolation, CodeConnectionReplaced, "ConnectionReplaced"}
	reasonNotReady     = CloseReason{websocket.StatusPolicyViolation, CodeNotReady, "NotReady"}
	reasonInvalidData  = CloseReason{websocket.StatusInvalidFramePayloadData, CodeInvalidData, "InvalidData"}
	reasonShuttingDown = CloseReason{websocket.StatusGoingAway, CodeShuttingDown, "ShuttingDown"}
	reasonTimeout      = CloseReason{StatusTimeout, CodeTimeout, "TimeoutError"}
	reasonAborted      = CloseReason{websocket.StatusGoingAway, CodeAborted, "AbortedError"}
)

func reasonServerError(err error) CloseReason {
	message := "ServerError"
	if err != nil {
		message = err.Error()
	}
	return CloseReason{websocket.StatusInternalError, CodeServerError, message}
}

// readyEvent is sent once admission succeeds and the session will accept
// audio packets.
type readyEvent struct {
	Event string `json:"event"`
}

var eventReady = readyEvent{Event: "ready"}

// transcriptionReply answers one inbound packet. ID echoes the packet's
// sequence id so the client can reconcile replies with requests.
type transcriptionReply struct {
	ID               uint32  `json:"id"`
	Transcript       string  `json:"transcript"`
	Confidence       float64 `json:"confidence"`
	UsageUsedMs      int64   `json:"usageUsedMs"`
	UsageRemainingMs int64   `json:"usageRemainingMs"`
}
