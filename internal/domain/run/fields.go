package run

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// fields is a JSON object whose members are decoded on demand, so that the
// evaluation order decides which problem is reported first.
type fields map[string]json.RawMessage

func decodeObject(raw []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("not an object")
	}
	return f, nil
}

func (f fields) raw(key string) (json.RawMessage, error) {
	raw, ok := f[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedPayload, key)
	}
	return raw, nil
}

func (f fields) object(key string) (fields, error) {
	raw, err := f.raw(key)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
	}
	return obj, nil
}

func (f fields) str(key string) (string, error) {
	raw, err := f.raw(key)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
	}
	return s, nil
}

func (f fields) boolean(key string) (bool, error) {
	raw, err := f.raw(key)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
	}
	return b, nil
}

func (f fields) number(key string) (float64, error) {
	raw, err := f.raw(key)
	if err != nil {
		return 0, err
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
	}
	return n, nil
}

// integer accepts JSON integers and floats; floats truncate toward zero.
func (f fields) integer(key string) (int64, error) {
	raw, err := f.raw(key)
	if err != nil {
		return 0, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	v, err := n.Float64()
	if err != nil || math.IsNaN(v) || v > math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("%w: %q: not an integer", ErrMalformedPayload, key)
	}
	return int64(v), nil
}

// index reads a split index encoded either as a string or a number.
func (f fields) index(key string) (int, error) {
	raw, err := f.raw(key)
	if err != nil {
		return 0, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrMalformedPayload, key, err)
		}
		return i, nil
	}
	i, err := f.integer(key)
	return int(i), err
}
