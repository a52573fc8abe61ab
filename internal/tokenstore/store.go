// Package tokenstore keeps a session's access and refresh tokens in a pluggable
// backend, sealed with a locally derived key. Sealing is obfuscation: it hides
// tokens from casual inspection of the storage medium and nothing more.
package tokenstore

import (
	"context"
	"fmt"

	"finboard/internal/log"
)

// Kind names a stored token.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Kinds lists every token kind a namespace can hold.
var Kinds = []Kind{Access, Refresh}

// Backend persists sealed values. Get reports ok=false when nothing is stored.
// Delete removes every kind held by the namespace.
type Backend interface {
	Put(ctx context.Context, namespace, kind, value string) error
	Get(ctx context.Context, namespace, kind string) (value string, ok bool, err error)
	Delete(ctx context.Context, namespace string) error
}

// Store is the token store for a single namespace (one browser session or CLI profile).
type Store struct {
	backend   Backend
	namespace string
	cipher    *Cipher
	logger    *log.Logger
}

func New(backend Backend, namespace string, c *Cipher, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		backend:   backend,
		namespace: namespace,
		cipher:    c,
		logger:    logger.WithComponent(log.ComponentTokenStore),
	}
}

func (s *Store) Namespace() string { return s.namespace }

// Store seals token and saves it under kind.
func (s *Store) Store(ctx context.Context, kind Kind, token string) error {
	sealed, err := s.cipher.Seal(token)
	if err != nil {
		return fmt.Errorf("seal %s token: %w", kind, err)
	}
	if err := s.backend.Put(ctx, s.namespace, string(kind), sealed); err != nil {
		return fmt.Errorf("store %s token: %w", kind, err)
	}
	return nil
}

// Get returns the token of the given kind or "" when absent. A value that no
// longer opens (key rotated, storage tampered) is reported as absent.
func (s *Store) Get(ctx context.Context, kind Kind) (string, error) {
	sealed, ok, err := s.backend.Get(ctx, s.namespace, string(kind))
	if err != nil {
		return "", fmt.Errorf("load %s token: %w", kind, err)
	}
	if !ok || sealed == "" {
		return "", nil
	}
	token, err := s.cipher.Open(sealed)
	if err != nil {
		s.logger.Warn("Discarding unreadable stored token",
			log.FieldTokenKind, string(kind),
			log.FieldSessionID, s.namespace,
			log.FieldError, err)
		return "", nil
	}
	return token, nil
}

// Clear removes every token held by the namespace.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.namespace); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
