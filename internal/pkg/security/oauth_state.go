package security

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StateTTL bounds how long an issued OAuth state stays redeemable.
const StateTTL = 15 * time.Minute

var ErrStateNonce = errors.New("oauth state nonce is unknown or already used")

// StateClaims is the payload encoded into the OAuth state parameter. The
// encoding is base64(JSON) and is not tamper-proof on its own; the nonce is
// additionally recorded server-side and consumed on verification.
type StateClaims struct {
	UserID uint   `json:"user_id"`
	Nonce  string `json:"nonce"`
}

// NonceStore records issued state nonces with a TTL so each state is
// redeemable exactly once.
type NonceStore struct {
	client *redis.Client
}

func NewNonceStore(client *redis.Client) *NonceStore {
	return &NonceStore{client: client}
}

func (s *NonceStore) key(nonce string) string {
	return "oauth_state:" + nonce
}

// Issue records a fresh nonce and returns it.
func (s *NonceStore) Issue(ctx context.Context) (string, error) {
	nonce := uuid.NewString()
	if err := s.client.Set(ctx, s.key(nonce), "1", StateTTL).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

// Consume deletes the nonce, failing if it was never issued or already used.
func (s *NonceStore) Consume(ctx context.Context, nonce string) error {
	n, err := s.client.Del(ctx, s.key(nonce)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStateNonce
	}
	return nil
}

// EncodeState issues a nonce and packs it with the user id into an opaque
// state parameter.
func EncodeState(ctx context.Context, store *NonceStore, userID uint) (string, error) {
	nonce, err := store.Issue(ctx)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(StateClaims{UserID: userID, Nonce: nonce})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeState unpacks a state parameter and consumes its nonce. A nil store
// skips nonce verification (legacy states from before the store existed).
func DecodeState(ctx context.Context, store *NonceStore, state string) (*StateClaims, error) {
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return nil, fmt.Errorf("malformed oauth state: %w", err)
	}
	var claims StateClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("malformed oauth state: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("oauth state missing user id")
	}
	if store != nil {
		if err := store.Consume(ctx, claims.Nonce); err != nil {
			return nil, err
		}
	}
	return &claims, nil
}
