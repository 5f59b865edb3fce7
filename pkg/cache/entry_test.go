package cache_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
)

func TestEntry_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := cache.Entry{CreatedAt: now, TTL: time.Second}

	assert.False(t, e.Expired(now))
	assert.False(t, e.Expired(now.Add(time.Second)), "boundary is still valid")
	assert.True(t, e.Expired(now.Add(time.Second+time.Nanosecond)))
	assert.True(t, cache.Entry{CreatedAt: now}.Expired(now), "zero ttl is always expired")
}

func TestEncode(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("small payload stays plain even when compression is requested", func(t *testing.T) {
		t.Parallel()

		e, err := cache.Encode(map[string]int{"a": 1}, time.Minute, true, cache.DefaultCompressThreshold, now)
		require.NoError(t, err)
		require.False(t, e.Compressed)
		require.JSONEq(t, `{"a":1}`, string(e.Value))
	})

	t.Run("large payload is compressed and restored exactly", func(t *testing.T) {
		t.Parallel()

		value := strings.Repeat("0123456789abcdef", 256)
		e, err := cache.Encode(value, time.Minute, true, cache.DefaultCompressThreshold, now)
		require.NoError(t, err)
		require.True(t, e.Compressed)

		var text string
		require.NoError(t, json.Unmarshal(e.Value, &text), "compressed payload must be a JSON string")

		got, err := cache.DecodeValue[string](e)
		require.NoError(t, err)
		require.Equal(t, value, got)

		payload, err := e.Payload()
		require.NoError(t, err)
		want, _ := json.Marshal(value)
		require.Equal(t, want, payload)
	})

	t.Run("large payload without compression flag stays plain", func(t *testing.T) {
		t.Parallel()

		e, err := cache.Encode(strings.Repeat("x", 4096), time.Minute, false, cache.DefaultCompressThreshold, now)
		require.NoError(t, err)
		require.False(t, e.Compressed)
	})

	t.Run("records metadata", func(t *testing.T) {
		t.Parallel()

		e, err := cache.Encode(1, 3*time.Second, false, 0, now)
		require.NoError(t, err)
		require.Equal(t, now, e.CreatedAt)
		require.Equal(t, 3*time.Second, e.TTL)
		require.Equal(t, now.Add(3*time.Second), e.ExpiresAt())
	})
}

func TestUnmarshalEntry(t *testing.T) {
	t.Parallel()

	valid, err := cache.Encode("v", time.Minute, false, 0, time.Now())
	require.NoError(t, err)
	raw, err := cache.MarshalEntry(valid)
	require.NoError(t, err)

	e, ok := cache.UnmarshalEntry(raw)
	require.True(t, ok)
	got, err := cache.DecodeValue[string](e)
	require.NoError(t, err)
	require.Equal(t, "v", got)

	for name, input := range map[string]string{
		"empty":         "",
		"garbage":       "{{not json",
		"wrong type":    `[1,2,3]`,
		"no timestamp":  `{"value":"v","ttl":1000}`,
		"no value":      `{"createdAt":"2025-01-01T00:00:00Z","ttl":1000}`,
		"bad timestamp": `{"createdAt":"yesterday","value":"v"}`,
	} {
		_, ok := cache.UnmarshalEntry([]byte(input))
		assert.False(t, ok, name)
	}
}

func TestDecodeValue_CorruptCompressedPayload(t *testing.T) {
	t.Parallel()

	e := cache.Entry{
		CreatedAt:  time.Now(),
		TTL:        time.Minute,
		Value:      json.RawMessage(`"bm90IGd6aXA="`),
		Compressed: true,
	}

	_, err := cache.DecodeValue[string](e)
	require.ErrorIs(t, err, cache.ErrDecompress)
}
