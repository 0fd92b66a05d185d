// Package uibridge supports an optional UI audit bridge on the primary
// channel. Clients driven through the bridge embed a session token inside
// tools/call arguments; the gateway strips it before anything is forwarded
// to a backend and derives the correlation identifiers that link a call's
// request, result, and delivery audit records.
package uibridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
)

// TokenField is the argument key the bridge injects. It never reaches a
// backend.
const TokenField = "_uiSessionToken"

// correlationNamespace seeds the deterministic (v5) identifier derivations.
var correlationNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// CorrelationIDs are the identifiers derived for one audited tool call
type CorrelationIDs struct {
	// UISessionID is stable for the lifetime of one bridge token
	UISessionID string `json:"uiSessionId"`
	// UIRPCID is unique per call
	UIRPCID string `json:"uiRpcId"`
	// CorrelationID links the request, result, and delivery audit records
	CorrelationID string `json:"correlationId"`
	// Fingerprint is a stable hash of tool name plus normalized arguments,
	// for duplicate and retry detection
	Fingerprint string `json:"toolCallFingerprint"`
}

// AuditRecord is one append-only entry handed to the audit sink
type AuditRecord struct {
	Kind          string    `json:"kind"`
	CorrelationID string    `json:"correlationId"`
	UISessionID   string    `json:"uiSessionId"`
	UIRPCID       string    `json:"uiRpcId"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Tool          string    `json:"tool,omitempty"`
	Token         string    `json:"token,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AuditSink accepts append-only audit records keyed by correlation id. The
// persistent implementation lives outside this module.
type AuditSink interface {
	Append(record AuditRecord) error
}

// Sanitize extracts the optional embedded session token from tools/call
// arguments. It returns arguments safe to forward downstream plus the raw
// token, which is kept only for local audit. Arguments without a token, or
// that are not a JSON object, pass through untouched.
func Sanitize(args json.RawMessage) (json.RawMessage, string) {
	if len(args) == 0 {
		return args, ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return args, ""
	}

	rawToken, ok := fields[TokenField]
	if !ok {
		return args, ""
	}

	var token string
	if err := json.Unmarshal(rawToken, &token); err != nil {
		// A malformed token is still stripped; forwarding it would leak it.
		token = ""
	}
	delete(fields, TokenField)

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return args, token
	}
	return cleaned, token
}

// Correlator derives correlation identifiers and records bridge tokens to
// the audit sink. Safe for concurrent use.
type Correlator struct {
	sink   AuditSink
	logger logging.Logger

	mu         sync.Mutex
	seenTokens map[string]struct{}
}

// CorrelatorOption configures a Correlator
type CorrelatorOption func(*Correlator)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) CorrelatorOption {
	return func(c *Correlator) {
		c.logger = logger
	}
}

// WithAuditSink sets the audit sink; without one, token records are dropped.
func WithAuditSink(sink AuditSink) CorrelatorOption {
	return func(c *Correlator) {
		c.sink = sink
	}
}

// NewCorrelator creates a Correlator.
func NewCorrelator(opts ...CorrelatorOption) *Correlator {
	c := &Correlator{
		logger:     logging.New(nil, nil),
		seenTokens: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate deterministically derives the correlation identifiers for one
// call. UISessionID depends only on the token; CorrelationID on the token
// and request id; UIRPCID is fresh per call; Fingerprint on the tool name
// and normalized arguments.
func (c *Correlator) Generate(token, requestID, toolName string, args json.RawMessage) CorrelationIDs {
	return CorrelationIDs{
		UISessionID:   uuid.NewSHA1(correlationNamespace, []byte("session:"+token)).String(),
		UIRPCID:       uuid.NewString(),
		CorrelationID: uuid.NewSHA1(correlationNamespace, []byte("call:"+token+"|"+requestID)).String(),
		Fingerprint:   Fingerprint(toolName, args),
	}
}

// RecordToken appends the raw bridge token to the audit sink, once per
// distinct token. The token is never forwarded to any backend.
func (c *Correlator) RecordToken(token string, ids CorrelationIDs, toolName string) {
	if token == "" || c.sink == nil {
		return
	}

	c.mu.Lock()
	if _, seen := c.seenTokens[token]; seen {
		c.mu.Unlock()
		return
	}
	c.seenTokens[token] = struct{}{}
	c.mu.Unlock()

	record := AuditRecord{
		Kind:          "token",
		CorrelationID: ids.CorrelationID,
		UISessionID:   ids.UISessionID,
		UIRPCID:       ids.UIRPCID,
		Fingerprint:   ids.Fingerprint,
		Tool:          toolName,
		Token:         token,
		Timestamp:     time.Now(),
	}
	if err := c.sink.Append(record); err != nil {
		c.logger.Warn("audit token record failed", logging.ErrorField(err))
	}
}

// Fingerprint computes the stable hash of a tool name plus normalized
// arguments. Normalization round-trips the JSON so key order never changes
// the hash.
func Fingerprint(toolName string, args json.RawMessage) string {
	normalized := normalizeJSON(args)

	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(normalized)
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeJSON re-encodes arbitrary JSON with sorted object keys.
func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return raw
	}
	normalized, err := json.Marshal(value)
	if err != nil {
		return raw
	}
	return normalized
}
