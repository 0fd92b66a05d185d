package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeHasID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, true},
		{"numeric id", `{"jsonrpc":"2.0","id":7,"method":"ping"}`, true},
		{"zero id", `{"jsonrpc":"2.0","id":0,"method":"ping"}`, true},
		{"absent id", `{"jsonrpc":"2.0","method":"ping"}`, false},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Envelope
			if err := json.Unmarshal([]byte(tt.raw), &e); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := e.HasID(); got != tt.want {
				t.Errorf("HasID() = %v, want %v", got, tt.want)
			}
			if got := e.IsNotification(); got == tt.want {
				t.Errorf("IsNotification() = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestResponseEchoesRawID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"string", `"req-1"`},
		{"number", `42`},
		{"float", `1.5`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewResponse(json.RawMessage(tt.id), map[string]string{"ok": "yes"})
			if err != nil {
				t.Fatalf("NewResponse() error = %v", err)
			}

			data, err := json.Marshal(resp)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var decoded struct {
				ID json.RawMessage `json:"id"`
			}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if string(decoded.ID) != tt.id {
				t.Errorf("response id = %s, want %s byte-for-byte", decoded.ID, tt.id)
			}
		})
	}
}

func TestErrorResponseNormalizesAbsentID(t *testing.T) {
	resp, err := NewErrorResponse(nil, ParseError, "parse error", nil)
	if err != nil {
		t.Fatalf("NewErrorResponse() error = %v", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if string(decoded["id"]) != "null" {
		t.Errorf("error response id = %s, want null", decoded["id"])
	}
	if _, ok := decoded["result"]; ok {
		t.Error("error response carries a result field")
	}
}

func TestErrorResponseShape(t *testing.T) {
	resp, err := NewErrorResponse(json.RawMessage(`"r1"`), ToolRoutingError, "no such tool", nil)
	if err != nil {
		t.Fatalf("NewErrorResponse() error = %v", err)
	}

	if resp.Error == nil {
		t.Fatal("Error = nil")
	}
	if resp.Error.Code != ToolRoutingError {
		t.Errorf("Code = %d, want %d", resp.Error.Code, ToolRoutingError)
	}
	if resp.Error.Message != "no such tool" {
		t.Errorf("Message = %q", resp.Error.Message)
	}
	if resp.JSONRPC != JSONRPCVersion {
		t.Errorf("JSONRPC = %q, want %q", resp.JSONRPC, JSONRPCVersion)
	}
}

func TestErrorImplementsError(t *testing.T) {
	var err error = &Error{Code: InternalError, Message: "boom"}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestNewRequestRoundTrip(t *testing.T) {
	req, err := NewRequest("r1", MethodListTools, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !e.HasID() {
		t.Error("marshaled request lost its id")
	}
	if e.Method != MethodListTools {
		t.Errorf("Method = %q, want %q", e.Method, MethodListTools)
	}
}
