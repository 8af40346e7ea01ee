package osc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
)

// Base64Key is the single key of the object that wraps blob arguments.
const Base64Key = "base64"

// Document is the JSON form of a message exchanged with WebSocket clients.
//
// Elements of V are JSON-compatible Go values: json.Number, string, bool, nil
// or, for wrapped blobs, map[string]any{"base64": "..."}. Documents decoded
// from client frames may also hold other JSON shapes; EncodeOSC rejects those.
type Document struct {
	Address string `json:"address"`
	V       []any  `json:"v"`
}

// Marshal serializes the document as compact JSON without HTML escaping and
// without a trailing newline.
func (d Document) Marshal() ([]byte, error) {
	if d.V == nil {
		d.V = []any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseDocument decodes a client frame. The frame must be a single JSON object
// holding an "address" string and a "v" array; anything else yields a
// *DecodeError. Numbers are kept as json.Number so integer and float literals
// stay distinguishable.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Document{}, &DecodeError{Reason: "invalid JSON document", Err: err}
	}
	if raw == nil {
		return Document{}, decodeErrorf("document must be a JSON object")
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Document{}, decodeErrorf("unexpected data after JSON document")
	}

	address, ok := raw["address"].(string)
	if !ok {
		return Document{}, decodeErrorf(`"address" must be a string`)
	}

	values, ok := raw["v"].([]any)
	if !ok {
		return Document{}, decodeErrorf(`"v" must be an array`)
	}

	return Document{Address: address, V: values}, nil
}

// WrapBytes returns the JSON object used to carry a blob argument.
func WrapBytes(b []byte) map[string]any {
	return map[string]any{Base64Key: base64.StdEncoding.EncodeToString(b)}
}
