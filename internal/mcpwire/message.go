// Package mcpwire provides MCP JSON-RPC framing utilities built on top of
// the protocol SDK's codec. It does not interpret tool calls or MCP
// capabilities; it only gives the proxy enough visibility into a frame to
// correlate requests with responses and detect notifications.
package mcpwire

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates which way a frame is flowing through the proxy.
type Direction int

const (
	// Inbound is a frame flowing from the HTTP client toward the backend.
	Inbound Direction = iota
	// Outbound is a frame flowing from the backend toward the HTTP client.
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Frame wraps a decoded JSON-RPC message with the metadata the proxy needs
// to route it, without inspecting its method or params.
type Frame struct {
	// Raw holds the original frame bytes exactly as passed to WrapFrame, for
	// passthrough.
	Raw []byte

	Direction Direction

	// Decoded is either *jsonrpc.Request or *jsonrpc.Response, or nil if
	// decoding failed and the frame is carried through unexamined.
	Decoded jsonrpc.Message

	Timestamp time.Time
}

// WrapFrame decodes raw JSON-RPC bytes and wraps them for passthrough.
func WrapFrame(raw []byte, dir Direction) *Frame {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return &Frame{Raw: raw, Direction: dir, Timestamp: time.Now()}
	}
	return &Frame{Raw: raw, Direction: dir, Decoded: decoded, Timestamp: time.Now()}
}

// IsRequest reports whether the frame is a JSON-RPC request or notification.
func (f *Frame) IsRequest() bool {
	_, ok := f.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse reports whether the frame is a JSON-RPC response.
func (f *Frame) IsResponse() bool {
	_, ok := f.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the request method, or "" if this isn't a request.
func (f *Frame) Method() string {
	req, ok := f.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsNotification reports whether the frame is a request without an ID.
// Notifications per JSON-RPC 2.0 expect no response; the Streamable-HTTP
// handler must answer them with 202 Accepted rather than a body.
func (f *Frame) IsNotification() bool {
	return RawID(f.Raw) == nil
}

// RawID extracts the "id" field directly from raw bytes. The SDK's jsonrpc.ID
// type does not round-trip cleanly through interface{}, so frames that need
// to correlate a response to a waiting caller read the ID off the wire
// instead of through the decoded struct.
func RawID(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields.ID
}

// IsInitialize reports whether the frame is an "initialize" request.
func (f *Frame) IsInitialize() bool {
	return f.Method() == "initialize"
}
