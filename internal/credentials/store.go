// Package credentials persists the access/refresh credential pair and the
// session flags that travel with it.
package credentials

import (
	"context"
	"errors"
)

// Keys used by the session layer.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyAutoLogin    = "autoLogin"
	KeyLoginID      = "loginId"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("credential not found")

// Store is durable key-value storage for credentials.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	RemoveMany(ctx context.Context, keys ...string) error
	Close() error
}

// BatchSetter is implemented by stores that can write several keys so that
// no reader observes a partial update.
type BatchSetter interface {
	SetMany(ctx context.Context, values map[string]string) error
}

// Pair is the access/refresh credential pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// StoreError indicates a credential storage error.
type StoreError struct {
	Op    string // "get", "set", "remove", "load", "save"
	Key   string
	Cause error
}

func (e *StoreError) Error() string {
	msg := e.Op + " credential"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Lookup returns the value of key, or "" when it is absent.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// LoadPair reads both tokens. Missing tokens are returned as empty strings.
func LoadPair(ctx context.Context, s Store) (Pair, error) {
	access, err := Lookup(ctx, s, KeyAccessToken)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := Lookup(ctx, s, KeyRefreshToken)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// SavePair writes both tokens, in one batch when the store supports it.
func SavePair(ctx context.Context, s Store, p Pair) error {
	values := map[string]string{
		KeyAccessToken:  p.AccessToken,
		KeyRefreshToken: p.RefreshToken,
	}
	if b, ok := s.(BatchSetter); ok {
		return b.SetMany(ctx, values)
	}
	// refresh first: a reader that sees the new access token also sees its refresh token
	if err := s.Set(ctx, KeyRefreshToken, p.RefreshToken); err != nil {
		return err
	}
	return s.Set(ctx, KeyAccessToken, p.AccessToken)
}

// ClearPair removes both tokens.
func ClearPair(ctx context.Context, s Store) error {
	return s.RemoveMany(ctx, KeyAccessToken, KeyRefreshToken)
}
