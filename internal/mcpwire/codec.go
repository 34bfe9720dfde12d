package mcpwire

import "github.com/modelcontextprotocol/go-sdk/jsonrpc"

// EncodeMessage serializes a JSON-RPC message to its wire format. It
// delegates to the SDK's jsonrpc package; this proxy never constructs the
// wire format by hand.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format bytes into a Request or
// Response.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}
