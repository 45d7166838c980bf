package storage

import (
	"context"
	"strings"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
)

var (
	_ cart.TokenProvider = (*TokenSource)(nil)
	_ cart.TokenProvider = StaticToken("")
)

// TokenSource reads the bearer credential the login flow stored under cart.TokenKey.
type TokenSource struct {
	storage cart.Storage
	logg    *logger.Logger
}

func NewTokenSource(storage cart.Storage, logg *logger.Logger) *TokenSource {
	if logg == nil {
		logg = logger.Nop()
	}
	return &TokenSource{storage: storage, logg: logg}
}

// Token returns "" when no credential is stored or storage is unavailable.
func (t *TokenSource) Token(ctx context.Context) string {
	v, ok, err := t.storage.Get(ctx, cart.TokenKey)
	if err != nil {
		t.logg.WarnErr(ctx, "credential read failed", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Store saves the credential for later pushes; an empty token removes it.
func (t *TokenSource) Store(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return t.storage.Delete(ctx, cart.TokenKey)
	}
	return t.storage.Set(ctx, cart.TokenKey, token)
}

// StaticToken is a fixed credential.
type StaticToken string

func (s StaticToken) Token(context.Context) string { return string(s) }
