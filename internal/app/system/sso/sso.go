// Package sso verifies single sign-on tokens against every configured
// backend at once.
//
// A client posts one opaque token. It may be a partner-portal JWT or a
// Google access token; the caller does not have to say which. Each
// backend is tried concurrently, all of them are awaited, and the first
// success in configuration order wins.
package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoBackends     = errors.New("no sso backends configured")
	ErrUnknownBackend = errors.New("unknown sso provider")
	ErrRejected       = errors.New("token rejected by every sso backend")
)

// Identity is what a backend vouches for.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Verifier is one SSO backend.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, token string) (Identity, error)
}

// Multi fans a token out to several verifiers.
type Multi struct {
	verifiers []Verifier
	timeout   time.Duration
	logger    *zap.Logger
}

// NewMulti keeps verifiers in the given order; that order decides which
// success wins when more than one backend accepts a token.
func NewMulti(timeout time.Duration, logger *zap.Logger, verifiers ...Verifier) *Multi {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Multi{verifiers: verifiers, timeout: timeout, logger: logger}
}

// Enabled reports whether any backend is configured.
func (m *Multi) Enabled() bool {
	return m != nil && len(m.verifiers) > 0
}

// Providers lists the configured backend names in order.
func (m *Multi) Providers() []string {
	out := make([]string, len(m.verifiers))
	for i, v := range m.verifiers {
		out[i] = v.Name()
	}
	return out
}

type result struct {
	id  Identity
	err error
}

// VerifyAny checks token against every backend, or only the named one
// when provider is non-empty. It waits for all backends to finish.
func (m *Multi) VerifyAny(ctx context.Context, token, provider string) (Identity, error) {
	if !m.Enabled() {
		return Identity{}, ErrNoBackends
	}
	if strings.TrimSpace(token) == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrRejected)
	}

	verifiers := m.verifiers
	if provider != "" {
		verifiers = nil
		for _, v := range m.verifiers {
			if v.Name() == provider {
				verifiers = []Verifier{v}
				break
			}
		}
		if verifiers == nil {
			return Identity{}, ErrUnknownBackend
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]result, len(verifiers))
	var wg sync.WaitGroup
	for i, v := range verifiers {
		wg.Add(1)
		go func(i int, v Verifier) {
			defer wg.Done()
			id, err := v.Verify(ctx, token)
			if err == nil && id.Provider == "" {
				id.Provider = v.Name()
			}
			results[i] = result{id: id, err: err}
		}(i, v)
	}
	wg.Wait()

	var errs []error
	for i, res := range results {
		if res.err == nil {
			return res.id, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", verifiers[i].Name(), res.err))
	}

	joined := errors.Join(errs...)
	m.logger.Info("sso token rejected", zap.Error(joined))
	return Identity{}, fmt.Errorf("%w: %w", ErrRejected, joined)
}
