package mcpwire

import (
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestEncodeDecodeRequest(t *testing.T) {
	id, err := jsonrpc.MakeID(float64(1))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	req := &jsonrpc.Request{ID: id, Method: "tools/call"}

	encoded, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	decodedReq, ok := decoded.(*jsonrpc.Request)
	if !ok {
		t.Fatalf("expected *jsonrpc.Request, got %T", decoded)
	}
	if decodedReq.Method != "tools/call" {
		t.Errorf("method: got %q, want tools/call", decodedReq.Method)
	}
}

func TestWrapFrame(t *testing.T) {
	tests := []struct {
		name             string
		raw              string
		dir              Direction
		wantMethod       string
		wantRequest      bool
		wantNotification bool
	}{
		{
			name:        "request with id",
			raw:         `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			dir:         Inbound,
			wantMethod:  "tools/list",
			wantRequest: true,
		},
		{
			name:             "notification without id",
			raw:              `{"jsonrpc":"2.0","method":"notifications/progress"}`,
			dir:              Inbound,
			wantMethod:       "notifications/progress",
			wantRequest:      true,
			wantNotification: true,
		},
		{
			name: "response",
			raw:  `{"jsonrpc":"2.0","id":1,"result":{}}`,
			dir:  Outbound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := WrapFrame([]byte(tt.raw), tt.dir)
			if f.Direction != tt.dir {
				t.Errorf("direction: got %v, want %v", f.Direction, tt.dir)
			}
			if f.Method() != tt.wantMethod {
				t.Errorf("method: got %q, want %q", f.Method(), tt.wantMethod)
			}
			if f.IsRequest() != tt.wantRequest {
				t.Errorf("IsRequest: got %v, want %v", f.IsRequest(), tt.wantRequest)
			}
			if f.IsNotification() != tt.wantNotification {
				t.Errorf("IsNotification: got %v, want %v", f.IsNotification(), tt.wantNotification)
			}
			if f.Timestamp.After(time.Now()) {
				t.Error("timestamp should not be in the future")
			}
		})
	}
}

func TestWrapFrameMalformed(t *testing.T) {
	f := WrapFrame([]byte(`not json`), Inbound)
	if f.Decoded != nil {
		t.Error("expected nil Decoded for malformed frame")
	}
	if f.IsRequest() || f.IsResponse() {
		t.Error("malformed frame should report neither request nor response")
	}
	if f.Method() != "" {
		t.Error("Method() should be empty for malformed frame")
	}
}

func TestRawID(t *testing.T) {
	if id := RawID([]byte(`{"jsonrpc":"2.0","id":7,"method":"x"}`)); string(id) != "7" {
		t.Errorf("RawID: got %q, want 7", id)
	}
	if id := RawID([]byte(`{"jsonrpc":"2.0","method":"x"}`)); id != nil {
		t.Errorf("RawID: expected nil for notification, got %q", id)
	}
	if id := RawID(nil); id != nil {
		t.Error("RawID(nil) should be nil")
	}
}

func TestDirectionString(t *testing.T) {
	cases := map[Direction]string{Inbound: "inbound", Outbound: "outbound", Direction(99): "unknown"}
	for dir, want := range cases {
		if got := dir.String(); got != want {
			t.Errorf("Direction(%d).String() = %q, want %q", dir, got, want)
		}
	}
}
