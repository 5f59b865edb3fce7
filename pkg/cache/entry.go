package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultCompressThreshold is the payload size in bytes above which
// compression is applied when requested.
const DefaultCompressThreshold = 1024

// Entry is a cached value together with its metadata.
// Value holds the JSON payload, or a JSON string with the base64 encoded
// gzip stream of that payload when Compressed is set.
type Entry struct {
	CreatedAt  time.Time       `json:"createdAt"`
	Value      json.RawMessage `json:"value"`
	Tags       []string        `json:"tags,omitempty"`
	TTL        time.Duration   `json:"ttl"`
	Compressed bool            `json:"compressed"`
}

// Expired reports whether the entry is logically absent at now.
// Entries with a non-positive TTL are always expired.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL <= 0 || now.Sub(e.CreatedAt) > e.TTL
}

// ExpiresAt returns the moment after which the entry is expired.
func (e Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Remaining returns how long the entry stays valid from now.
func (e Entry) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt().Sub(now)
}

// Payload returns the raw JSON payload, decompressing it if needed.
func (e Entry) Payload() ([]byte, error) {
	if !e.Compressed {
		return e.Value, nil
	}

	var encoded string
	if err := json.Unmarshal(e.Value, &encoded); err != nil {
		return nil, errors.Join(ErrDecompress, err)
	}
	packed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrDecompress, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, errors.Join(ErrDecompress, err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Join(ErrDecompress, err)
	}
	return payload, nil
}

// Encode wraps value into an Entry created at now.
// When compress is set and the JSON payload is larger than threshold bytes,
// the payload is gzipped and stored as base64 text.
func Encode(value any, ttl time.Duration, compress bool, threshold int, now time.Time) (Entry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return Entry{}, errors.Join(ErrMarshal, err)
	}

	e := Entry{
		Value:     payload,
		CreatedAt: now,
		TTL:       ttl,
	}

	if compress && len(payload) > threshold {
		packed, err := compressPayload(payload)
		if err != nil {
			return Entry{}, errors.Join(ErrCompress, err)
		}
		e.Value = packed
		e.Compressed = true
	}

	return e, nil
}

// DecodeValue restores the typed value held by e.
func DecodeValue[T any](e Entry) (T, error) {
	var v T

	payload, err := e.Payload()
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, errors.Join(ErrUnmarshal, err)
	}
	return v, nil
}

// MarshalEntry serializes an entry for string-oriented stores.
func MarshalEntry(e Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrMarshal, err)
	}
	return data, nil
}

// UnmarshalEntry parses raw into an Entry. It returns false on any malformed
// input instead of an error: a corrupt stored value is simply a miss.
func UnmarshalEntry(raw []byte) (Entry, bool) {
	if len(raw) == 0 {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	if e.CreatedAt.IsZero() || len(e.Value) == 0 {
		return Entry{}, false
	}
	return e, true
}

func compressPayload(payload []byte) (json.RawMessage, error) {
	var buf bytes.Buffer

	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return json.Marshal(base64.StdEncoding.EncodeToString(buf.Bytes()))
}
