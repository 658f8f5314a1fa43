package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"operador/internal/domain"
	"operador/internal/repo"
)

// APIKeyPrefix marks plaintext keys so they are recognisable in configs.
const APIKeyPrefix = "op_"

type APIKeyStore interface {
	InsertAPIKey(ctx context.Context, key domain.APIKey) error
}

// IssueAPIKey mints a random key for userID, stores its hash and returns the
// plaintext once.
func IssueAPIKey(ctx context.Context, store APIKeyStore, userID int64, name string, now time.Time) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	plain := APIKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	if err := store.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
