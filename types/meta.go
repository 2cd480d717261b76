package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	SignatureHeader   = "x-quirrel-signature"
	MetaHeader        = "x-quirrel-meta"
	ContentTypeHeader = "content-type"
	ContentTypeJSON   = "application/json"
)

// JobMeta travels with every delivery in the MetaHeader.
type JobMeta struct {
	ID             string  `json:"id"`
	Count          int     `json:"count"`
	Retry          []int64 `json:"retry"`
	NextRepetition *int64  `json:"nextRepetition"` // unix milliseconds
	Exclusive      bool    `json:"exclusive"`
}

// EncodeMeta renders meta for the MetaHeader.
func EncodeMeta(meta JobMeta) (string, error) {
	if meta.Retry == nil {
		meta.Retry = []int64{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta: %w", err)
	}
	return string(raw), nil
}

// DecodeMeta parses a MetaHeader value. Absent or malformed metadata yields the zero
// JobMeta rather than an error.
func DecodeMeta(header string) JobMeta {
	var meta JobMeta
	if strings.TrimSpace(header) == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(header), &meta); err != nil {
		return JobMeta{}
	}
	return meta
}

// EncodeDeliveryBody wraps the stored body in a JSON string literal. The envelope
// survives a jsonb round trip in the durable scheduler byte for byte.
func EncodeDeliveryBody(stored string) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(stored); err != nil {
		return "", fmt.Errorf("failed to encode delivery body: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// UnwrapDeliveryBody unwraps a body produced by EncodeDeliveryBody. Bodies that are not a
// JSON string literal are reported with ok false; the caller keeps them as they are.
func UnwrapDeliveryBody(wire []byte) (stored string, ok bool) {
	trimmed := bytes.TrimSpace(wire)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(trimmed, &stored); err != nil {
		return "", false
	}
	return stored, true
}
