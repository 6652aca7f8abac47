// Package registry implements the participant registry: a durable
// mapping of participant identity to registration record.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/planhub/planhub/internal/core"
	"github.com/planhub/planhub/internal/db"
)

// Store is the durable backend for participant records. Implemented by
// *db.DB; tests use an in-memory implementation.
type Store interface {
	InsertParticipant(ctx context.Context, p *db.Participant) error
	GetParticipant(ctx context.Context, identity string) (*db.Participant, error)
	ListParticipants(ctx context.Context) ([]*db.Participant, error)
	DeleteParticipant(ctx context.Context, identity string) (*db.Participant, error)
}

// Service manages participant records. All mutations are durable
// before success is returned.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Add registers a new participant. Duplicate identities are rejected,
// never upserted: a caller that retries after an ambiguous failure must
// see duplicate_identity rather than silently clobbering a record.
func (s *Service) Add(ctx context.Context, identity, name string, metadata map[string]string) (*db.Participant, error) {
	identity = strings.TrimSpace(identity)
	name = strings.TrimSpace(name)
	if identity == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "identity is required")
	}
	if name == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "name is required")
	}

	p := &db.Participant{
		Identity:  identity,
		Name:      name,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.InsertParticipant(ctx, p)
	if errors.Is(err, db.ErrDuplicateIdentity) {
		return nil, core.Errorf(core.KindDuplicateIdentity, "participant %q already registered", identity)
	}
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "registry store unavailable", err)
	}
	return p, nil
}

// Lookup returns the record for the given identity.
func (s *Service) Lookup(ctx context.Context, identity string) (*db.Participant, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "identity is required")
	}
	p, err := s.store.GetParticipant(ctx, identity)
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "registry store unavailable", err)
	}
	if p == nil {
		return nil, core.Errorf(core.KindNotFound, "participant %q not found", identity)
	}
	return p, nil
}

// List returns participants whose identity or name contains filter
// (case-insensitive), ordered ascending by identity. An empty filter
// matches everything. The result is a fresh slice on every call, so
// callers may restart iteration freely.
func (s *Service) List(ctx context.Context, filter string) ([]*db.Participant, error) {
	all, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "registry store unavailable", err)
	}
	if filter == "" {
		return all, nil
	}
	needle := strings.ToLower(filter)
	var out []*db.Participant
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Identity), needle) ||
			strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Remove deletes the record for the given identity and returns it so
// callers can audit (or undo) the removal. The identity may be
// registered again afterwards; there is no tombstone.
func (s *Service) Remove(ctx context.Context, identity string) (*db.Participant, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "identity is required")
	}
	p, err := s.store.DeleteParticipant(ctx, identity)
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "registry store unavailable", err)
	}
	if p == nil {
		return nil, core.Errorf(core.KindNotFound, "participant %q not found", identity)
	}
	return p, nil
}
