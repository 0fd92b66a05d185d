package uibridge

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestSanitizeStripsToken(t *testing.T) {
	args := json.RawMessage(`{"path":"/tmp/x","_uiSessionToken":"tok-1"}`)

	cleaned, token := Sanitize(args)
	if token != "tok-1" {
		t.Errorf("token = %q, want tok-1", token)
	}
	if strings.Contains(string(cleaned), TokenField) {
		t.Errorf("cleaned args still carry the token field: %s", cleaned)
	}
	if !strings.Contains(string(cleaned), `"path"`) {
		t.Errorf("cleaned args lost other fields: %s", cleaned)
	}
}

func TestSanitizeWithoutToken(t *testing.T) {
	args := json.RawMessage(`{"path":"/tmp/x"}`)

	cleaned, token := Sanitize(args)
	if token != "" {
		t.Errorf("token = %q, want empty", token)
	}
	if string(cleaned) != string(args) {
		t.Errorf("args without a token must pass through untouched: %s", cleaned)
	}
}

func TestSanitizeNonObject(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"array", `[1,2,3]`},
		{"string", `"hello"`},
		{"number", `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, token := Sanitize(json.RawMessage(tt.args))
			if token != "" {
				t.Errorf("token = %q, want empty", token)
			}
			if string(cleaned) != tt.args {
				t.Errorf("non-object args changed: %s", cleaned)
			}
		})
	}
}

func TestSanitizeEmptyArgs(t *testing.T) {
	cleaned, token := Sanitize(nil)
	if token != "" || cleaned != nil {
		t.Errorf("Sanitize(nil) = %s, %q", cleaned, token)
	}
}

func TestSanitizeMalformedTokenStillStripped(t *testing.T) {
	// A non-string token value is unusable but must never reach a backend.
	args := json.RawMessage(`{"path":"/x","_uiSessionToken":{"nested":true}}`)

	cleaned, token := Sanitize(args)
	if token != "" {
		t.Errorf("token = %q, want empty for malformed value", token)
	}
	if strings.Contains(string(cleaned), TokenField) {
		t.Errorf("malformed token leaked: %s", cleaned)
	}
}

func TestGenerateDeterminism(t *testing.T) {
	c := NewCorrelator()

	a := c.Generate("tok-1", "req-1", "files__read", nil)
	b := c.Generate("tok-1", "req-1", "files__read", nil)

	if a.UISessionID != b.UISessionID {
		t.Error("UISessionID not stable for the same token")
	}
	if a.CorrelationID != b.CorrelationID {
		t.Error("CorrelationID not stable for the same token and request id")
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("Fingerprint not stable for identical input")
	}
	if a.UIRPCID == b.UIRPCID {
		t.Error("UIRPCID must be unique per call")
	}
}

func TestGenerateSessionStableAcrossRequests(t *testing.T) {
	c := NewCorrelator()

	a := c.Generate("tok-1", "req-1", "x", nil)
	b := c.Generate("tok-1", "req-2", "x", nil)

	if a.UISessionID != b.UISessionID {
		t.Error("session id changed across requests with the same token")
	}
	if a.CorrelationID == b.CorrelationID {
		t.Error("correlation id must differ per request id")
	}
}

func TestGenerateDistinctTokens(t *testing.T) {
	c := NewCorrelator()

	a := c.Generate("tok-1", "req-1", "x", nil)
	b := c.Generate("tok-2", "req-1", "x", nil)

	if a.UISessionID == b.UISessionID {
		t.Error("distinct tokens produced the same session id")
	}
}

func TestFingerprintKeyOrderInsensitive(t *testing.T) {
	a := Fingerprint("files__read", json.RawMessage(`{"a":1,"b":2}`))
	b := Fingerprint("files__read", json.RawMessage(`{"b":2,"a":1}`))
	if a != b {
		t.Error("fingerprint depends on JSON key order")
	}

	c := Fingerprint("files__read", json.RawMessage(`{"a":1,"b":3}`))
	if a == c {
		t.Error("fingerprint ignores argument values")
	}

	d := Fingerprint("files__write", json.RawMessage(`{"a":1,"b":2}`))
	if a == d {
		t.Error("fingerprint ignores the tool name")
	}
}

type memorySink struct {
	mu      sync.Mutex
	records []AuditRecord
}

func (s *memorySink) Append(record AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func TestRecordTokenOncePerToken(t *testing.T) {
	sink := &memorySink{}
	c := NewCorrelator(WithAuditSink(sink))

	ids := c.Generate("tok-1", "req-1", "x", nil)
	c.RecordToken("tok-1", ids, "x")
	c.RecordToken("tok-1", ids, "x")
	c.RecordToken("tok-2", c.Generate("tok-2", "req-2", "y", nil), "y")

	if len(sink.records) != 2 {
		t.Fatalf("sink received %d records, want 2 (one per distinct token)", len(sink.records))
	}
	if sink.records[0].Token != "tok-1" || sink.records[1].Token != "tok-2" {
		t.Errorf("records = %+v", sink.records)
	}
	if sink.records[0].Kind != "token" {
		t.Errorf("Kind = %q, want token", sink.records[0].Kind)
	}
}

func TestRecordTokenWithoutSink(t *testing.T) {
	c := NewCorrelator()
	// Must not panic.
	c.RecordToken("tok-1", c.Generate("tok-1", "r", "x", nil), "x")
}
