package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BodyField is the JSON member that carries a record's raw body.
const BodyField = "_body"

// Encoder serializes an event record into a message payload.
// Implement this interface for other formats (Protobuf, Avro, etc.).
type Encoder interface {
	Encode(rec Record) ([]byte, error)
}

// JSONEncoder encodes a record as one flat JSON object. Headers become
// members in first-occurrence order; a header name that appears more than
// once becomes an array of its values. The body, if any, is stored under
// BodyField.
type JSONEncoder struct{}

func (JSONEncoder) Encode(rec Record) ([]byte, error) {
	order := make([]string, 0, len(rec.Headers))
	values := make(map[string][]string, len(rec.Headers))
	for _, h := range rec.Headers {
		if _, seen := values[h.Name]; !seen {
			order = append(order, h.Name)
		}
		values[h.Name] = append(values[h.Name], h.Value)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, name, values[name]); err != nil {
			return nil, err
		}
	}
	if rec.Body != nil {
		if len(order) > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, BodyField, []string{string(rec.Body)}); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, name string, vals []string) error {
	key, err := json.Marshal(name)
	if err != nil {
		return fmt.Errorf("json: header name %q: %w", name, err)
	}
	buf.Write(key)
	buf.WriteByte(':')

	var val []byte
	if len(vals) == 1 {
		val, err = json.Marshal(vals[0])
	} else {
		val, err = json.Marshal(vals)
	}
	if err != nil {
		return fmt.Errorf("json: header %q: %w", name, err)
	}
	buf.Write(val)
	return nil
}
