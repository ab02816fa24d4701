package security

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNonceStore(t *testing.T) *NonceStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewNonceStore(client)
}

func TestEncodeDecodeState(t *testing.T) {
	store := newTestNonceStore(t)
	ctx := context.Background()

	state, err := EncodeState(ctx, store, 42)
	require.NoError(t, err)

	claims, err := DecodeState(ctx, store, state)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.NotEmpty(t, claims.Nonce)
}

// Each issued state is redeemable exactly once.
func TestDecodeStateSingleUse(t *testing.T) {
	store := newTestNonceStore(t)
	ctx := context.Background()

	state, err := EncodeState(ctx, store, 7)
	require.NoError(t, err)

	_, err = DecodeState(ctx, store, state)
	require.NoError(t, err)

	_, err = DecodeState(ctx, store, state)
	assert.ErrorIs(t, err, ErrStateNonce)
}

func TestDecodeStateUnknownNonce(t *testing.T) {
	store := newTestNonceStore(t)

	forged := base64.StdEncoding.EncodeToString([]byte(`{"user_id":1,"nonce":"never-issued"}`))
	_, err := DecodeState(context.Background(), store, forged)
	assert.ErrorIs(t, err, ErrStateNonce)
}

func TestDecodeStateMalformed(t *testing.T) {
	store := newTestNonceStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		state string
	}{
		{"not base64", "%%%"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"missing user id", base64.StdEncoding.EncodeToString([]byte(`{"nonce":"n"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(ctx, store, tt.state)
			assert.Error(t, err)
		})
	}
}

// A nil store skips nonce verification for states issued before the store
// existed.
func TestDecodeStateNilStore(t *testing.T) {
	state := base64.StdEncoding.EncodeToString([]byte(`{"user_id":3,"nonce":"legacy"}`))

	claims, err := DecodeState(context.Background(), nil, state)
	require.NoError(t, err)
	assert.Equal(t, uint(3), claims.UserID)
}

func TestNonceExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewNonceStore(client)
	ctx := context.Background()

	state, err := EncodeState(ctx, store, 9)
	require.NoError(t, err)

	mr.FastForward(StateTTL + 1)

	_, err = DecodeState(ctx, store, state)
	assert.ErrorIs(t, err, ErrStateNonce)
}
