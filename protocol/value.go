package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// validateFields checks every field of a telemetry record against the wire
// value model before any bytes are produced, so a failed encode never emits
// a partial message.
func validateFields(fields []Field) error {
	seen := make(map[uintptr]struct{})
	for _, f := range fields {
		if f.Key == "" {
			return fmt.Errorf("%w: telemetry field with empty key", ErrEncoding)
		}
		if err := validateValue(f.Value, seen); err != nil {
			return fmt.Errorf("%w (key %q)", err, f.Key)
		}
	}
	return nil
}

// validateValue enforces the wire value model: bool | string | number |
// nested string-keyed mapping. seen tracks visited maps for cycle detection.
func validateValue(v any, seen map[uintptr]struct{}) error {
	if v == nil {
		return fmt.Errorf("%w: null value is not representable", ErrEncoding)
	}

	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		ptr := rv.Pointer()
		if _, visited := seen[ptr]; visited {
			return fmt.Errorf("%w: cyclic structure", ErrEncoding)
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		iter := rv.MapRange()
		for iter.Next() {
			var elem any
			if ev := iter.Value(); ev.Kind() == reflect.Interface && ev.IsNil() {
				elem = nil
			} else {
				elem = ev.Interface()
			}
			if err := validateValue(elem, seen); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("%w: unsupported value type %T", ErrEncoding, v)
}

// orderedObject marshals a field list as a JSON object preserving field
// order. Nested maps marshal through encoding/json, which sorts their keys;
// only the top-level record order is caller-controlled.
type orderedObject []Field

// MarshalJSON implements json.Marshaler.
func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrEncoding, f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: value for key %q: %w", ErrEncoding, f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
