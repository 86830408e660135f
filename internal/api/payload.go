package api

import (
	"encoding/json"
	"fmt"
)

// Payload is a result that was either decoded into JSON or kept as its raw string form.
// The branch is chosen by a fallible decode attempt in DecodePayload.
type Payload struct {
	decoded json.RawMessage
	raw     string
	isRaw   bool
}

// Decoded wraps an already valid JSON document.
func Decoded(v json.RawMessage) Payload {
	return Payload{decoded: v}
}

// Raw wraps a value that has no JSON form.
func Raw(s string) Payload {
	return Payload{raw: s, isRaw: true}
}

// DecodePayload tries to render v as JSON. Byte slices and strings holding a JSON document are
// taken as is. Anything json.Marshal rejects falls back to its fmt representation.
func DecodePayload(v any) Payload {
	switch t := v.(type) {
	case Payload:
		return t
	case json.RawMessage:
		if json.Valid(t) {
			return Decoded(t)
		}
		return Raw(string(t))
	case []byte:
		if json.Valid(t) {
			return Decoded(json.RawMessage(t))
		}
		return Raw(string(t))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Raw(fmt.Sprintf("%v", v))
	}
	return Decoded(b)
}

// IsRaw reports whether the payload took the raw branch.
func (p Payload) IsRaw() bool {
	return p.isRaw
}

// JSON returns the decoded document, or the raw branch encoded as a JSON string.
func (p Payload) JSON() json.RawMessage {
	if p.isRaw {
		b, _ := json.Marshal(p.raw)
		return b
	}
	if len(p.decoded) == 0 {
		return json.RawMessage("null")
	}
	return p.decoded
}

// String returns the text a model or terminal should see.
func (p Payload) String() string {
	if p.isRaw {
		return p.raw
	}
	return string(p.JSON())
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	return p.JSON(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Every valid document lands in the decoded branch.
func (p *Payload) UnmarshalJSON(b []byte) error {
	if !json.Valid(b) {
		return fmt.Errorf("invalid payload document")
	}
	p.decoded = append(json.RawMessage(nil), b...)
	p.raw = ""
	p.isRaw = false
	return nil
}
