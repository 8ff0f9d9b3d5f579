// Package envelope defines the message unit exchanged between clients via the
// relay broker.
//
// An Envelope carries the original input text, its embedding vector, the
// publisher identity and a wall-clock timestamp. Envelopes are immutable once
// constructed: New copies the vector it is given, and Decode produces a fresh
// value for every frame. The broker never decodes envelopes - it relays the
// serialized form byte-for-byte - so encoding and decoding happen only at the
// publisher and subscriber edges.
//
// Wire format is a single UTF-8 JSON text frame:
//
//	{"user": string, "text": string, "vector": [float, ...], "timestamp": float}
//
// Decode validates incoming frames against a JSON Schema before unmarshalling
// so malformed payloads are rejected with a classified decode error rather
// than producing half-populated envelopes.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// wireSchema validates the envelope wire format. Additional fields are
// tolerated (forward compatibility); missing or mistyped required fields
// are not.
const wireSchema = `{
	"type": "object",
	"required": ["user", "text", "vector", "timestamp"],
	"properties": {
		"user":      {"type": "string"},
		"text":      {"type": "string"},
		"vector":    {"type": "array", "items": {"type": "number"}},
		"timestamp": {"type": "number"}
	}
}`

var schema = gojsonschema.NewSchemaLoader()

// compiledSchema is built once at package init; the schema literal is
// constant so failure here is a programming error.
var compiledSchema *gojsonschema.Schema

func init() {
	var err error
	compiledSchema, err = schema.Compile(gojsonschema.NewStringLoader(wireSchema))
	if err != nil {
		panic(fmt.Sprintf("envelope: compile wire schema: %v", err))
	}
}

// Envelope is the structured message unit exchanged between clients.
//
// The publisher identity is informational only - nothing authenticates it.
// The vector dimension is fixed by whichever embedding producer created it;
// the relay treats it as opaque.
type Envelope struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Vector    []float64 `json:"vector"`
	Timestamp float64   `json:"timestamp"`
}

// New constructs an Envelope from input text and an externally supplied
// embedding vector, stamping it with the current wall-clock time. The vector
// is copied so later mutation by the caller cannot alter the envelope.
func New(user, text string, vector []float64) Envelope {
	v := make([]float64, len(vector))
	copy(v, vector)
	return Envelope{
		User:      user,
		Text:      text,
		Vector:    v,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Encode", "marshal envelope")
	}
	return data, nil
}

// Decode parses and validates a wire frame into an Envelope.
//
// The frame is checked against the wire schema first; validation failures and
// JSON syntax errors both surface as errors.ErrDecodeFailed so subscribers
// can treat every malformed frame uniformly.
func Decode(data []byte) (Envelope, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		// Not even parseable as JSON.
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
			"Envelope", "Decode", "parse frame")
	}
	if !result.Valid() {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDecodeFailed, firstViolation(result)),
			"Envelope", "Decode", "validate frame")
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
			"Envelope", "Decode", "unmarshal frame")
	}
	return e, nil
}

// firstViolation renders the first schema violation for error messages.
func firstViolation(result *gojsonschema.Result) string {
	violations := result.Errors()
	if len(violations) == 0 {
		return "schema violation"
	}
	return violations[0].String()
}
