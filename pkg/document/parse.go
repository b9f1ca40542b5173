package document

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeSheet parses a full sheet payload. Shape violations (a scalar where
// the sections array is expected, unknown attribute type tags) are returned
// as *StructuralError; the caller must not run field validation on a payload
// that failed to decode.
func DecodeSheet(data []byte) (*Sheet, error) {
	var s Sheet
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, asStructural(err)
	}
	return &s, nil
}

// DecodeMacro parses a full macro document payload.
func DecodeMacro(data []byte) (*Macro, error) {
	var m Macro
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, asStructural(err)
	}
	return &m, nil
}

// asStructural normalizes decoding failures into *StructuralError so callers
// see a single fatal error kind for malformed payloads.
func asStructural(err error) error {
	if IsStructural(err) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if path == "" {
			path = "body"
		}
		return &StructuralError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
	}
	return &StructuralError{Path: "body", Reason: "invalid JSON"}
}
