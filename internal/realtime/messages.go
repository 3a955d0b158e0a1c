package realtime

import "encoding/json"

// recordSeparator terminates every JSON hub-protocol record.
const recordSeparator = 0x1e

type MessageType int

const (
	TypeInvocation MessageType = 1
	TypeCompletion MessageType = 3
	TypePing       MessageType = 6
	TypeClose      MessageType = 7
)

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

type invocation struct {
	Type         MessageType `json:"type"`
	InvocationID string      `json:"invocationId"`
	Target       string      `json:"target"`
	Arguments    []any       `json:"arguments"`
}

// envelope is the union of every server -> client record we read.
type envelope struct {
	Type         MessageType     `json:"type"`
	InvocationID string          `json:"invocationId,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type transport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

type negotiateResponse struct {
	NegotiateVersion    int         `json:"negotiateVersion"`
	ConnectionID        string      `json:"connectionId"`
	ConnectionToken     string      `json:"connectionToken"`
	AvailableTransports []transport `json:"availableTransports"`
	Error               string      `json:"error,omitempty"`
}
