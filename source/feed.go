package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/miladsoleymani/eventbridge/core"
)

// Emitter is what Feed publishes decoded records to. *Bus satisfies it.
type Emitter interface {
	Emit(rec core.Record) int
}

// Feed reads a stream of JSON objects from r, one per event, and emits each
// as a record. Members become headers in document order; the core.BodyField
// member becomes the body. Non-string scalars are kept in their JSON text
// form. It returns the number of records emitted when r is exhausted or
// ctx is cancelled.
func Feed(ctx context.Context, r io.Reader, em Emitter) (int, error) {
	dec := json.NewDecoder(r)

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := decodeRecord(dec)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("eventbridge/source: event %d: %w", n+1, err)
		}
		em.Emit(rec)
		n++
	}
}

// decodeRecord reads one JSON object keeping member order.
func decodeRecord(dec *json.Decoder) (core.Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return core.Record{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return core.Record{}, fmt.Errorf("expected object, got %v", tok)
	}

	var rec core.Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return core.Record{}, unexpectedEOF(err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return core.Record{}, unexpectedEOF(err)
		}
		values, err := scalarValues(raw)
		if err != nil {
			return core.Record{}, fmt.Errorf("member %q: %w", key, err)
		}

		if key == core.BodyField && len(values) == 1 {
			rec.Body = []byte(values[0])
			continue
		}
		for _, v := range values {
			rec.Headers = append(rec.Headers, core.Header{Name: key, Value: v})
		}
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return core.Record{}, unexpectedEOF(err)
	}
	return rec, nil
}

// unexpectedEOF keeps a truncated object from looking like a clean end of input.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// scalarValues turns a member value into header values. Arrays yield one
// value per element, which is how the encoder writes repeated headers.
func scalarValues(raw json.RawMessage) ([]string, error) {
	var v any
	vd := json.NewDecoder(bytes.NewReader(raw))
	vd.UseNumber()
	if err := vd.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(t)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("nested objects are not supported")
	}
}
