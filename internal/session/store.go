// Package session implements the two-tier session store: a Redis cache in
// front of the durable PostgreSQL tier. All writes go through to PostgreSQL;
// the cache is repaired on read misses and may be disabled entirely.
package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/repository"
)

// Slot names address independent values inside a session's data document.
const (
	// SlotUser holds the authenticated user summary.
	SlotUser = "user"
	// SlotCeremony holds in-flight WebAuthn ceremony state.
	SlotCeremony = "webauthn_ceremony"
)

// Store manages session lifecycle and per-session slot data.
type Store interface {
	// Create starts an authenticated session for the user. Any previous
	// session of the same user is invalidated.
	Create(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	// CreateAnonymous starts a session not bound to any user, used to carry
	// a WebAuthn authentication ceremony before the user is verified.
	CreateAnonymous(ctx context.Context) (uuid.UUID, error)
	// Resolve returns the user bound to the session. found=false means the
	// session does not exist; a nil userID with found=true means anonymous.
	Resolve(ctx context.Context, id uuid.UUID) (userID *uuid.UUID, found bool, err error)
	// BindUser attaches a user to an anonymous session, invalidating any
	// other session of that user. errors.ErrInvalidSession when the session
	// does not exist.
	BindUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	// Invalidate removes the session from both tiers. Invalidating an absent
	// session is not an error.
	Invalidate(ctx context.Context, id uuid.UUID) error

	// GetData returns the raw slot value. errors.ErrInvalidSession when the
	// session does not exist; (nil, nil) when the slot is empty.
	GetData(ctx context.Context, id uuid.UUID, slot string) (json.RawMessage, error)
	// SetData stores a slot value and returns the previous value, if any.
	SetData(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) (json.RawMessage, error)
	// DeleteData removes a slot. Deleting an absent slot is not an error.
	DeleteData(ctx context.Context, id uuid.UUID, slot string) error
}

type store struct {
	repo  repository.SessionRepository
	cache Cache
}

// NewStore creates a session store. cache may be nil, in which case all
// operations hit PostgreSQL directly.
func NewStore(repo repository.SessionRepository, cache Cache) Store {
	return &store{repo: repo, cache: cache}
}

var _ Store = (*store)(nil)

func (s *store) Create(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()

	displaced, err := s.repo.Upsert(ctx, id, userID)
	if err != nil {
		return uuid.Nil, err
	}
	s.evict(ctx, displaced)

	if s.cache != nil {
		if err := s.cache.Put(ctx, id, &userID); err != nil {
			s.cacheWarn("put", err)
		}
	}
	return id, nil
}

func (s *store) CreateAnonymous(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()

	if err := s.repo.CreateAnonymous(ctx, id); err != nil {
		return uuid.Nil, err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, id, nil); err != nil {
			s.cacheWarn("put", err)
		}
	}
	return id, nil
}

func (s *store) Resolve(ctx context.Context, id uuid.UUID) (*uuid.UUID, bool, error) {
	// A cache hit is authoritative: every invalidation evicts the cache
	// before touching PostgreSQL, so a cached session is a live session.
	if s.cache != nil {
		userID, found, err := s.cache.Lookup(ctx, id)
		if err != nil {
			s.cacheWarn("lookup", err)
		} else if found {
			return userID, true, nil
		}
	}

	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if sess == nil {
		return nil, false, nil
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, id, sess.UserID); err != nil {
			s.cacheWarn("repair", err)
		}
	}
	return sess.UserID, true, nil
}

func (s *store) BindUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	displaced, err := s.repo.BindUser(ctx, id, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrSessionNotFound) {
			return errors.ErrInvalidSession
		}
		return err
	}
	s.evict(ctx, displaced)

	if s.cache != nil {
		if err := s.cache.Put(ctx, id, &userID); err != nil {
			s.cacheWarn("put", err)
		}
	}
	return nil
}

func (s *store) Invalidate(ctx context.Context, id uuid.UUID) error {
	// Cache first. Evicting before the durable delete keeps the cache from
	// ever vouching for a session PostgreSQL no longer has.
	if s.cache != nil {
		if err := s.cache.Evict(ctx, id); err != nil {
			return fmt.Errorf("failed to evict session from cache: %w", err)
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *store) GetData(ctx context.Context, id uuid.UUID, slot string) (json.RawMessage, error) {
	if s.cache != nil {
		value, found, err := s.cache.GetSlot(ctx, id, slot)
		if err != nil {
			s.cacheWarn("get slot", err)
		} else if found {
			return value, nil
		}
	}

	value, found, err := s.repo.GetData(ctx, id, slot)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.ErrInvalidSession
	}
	return value, nil
}

func (s *store) SetData(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) (json.RawMessage, error) {
	prev, found, err := s.repo.SetData(ctx, id, slot, value)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.ErrInvalidSession
	}

	if s.cache != nil {
		if err := s.cache.SetSlot(ctx, id, slot, value); err != nil {
			s.cacheWarn("set slot", err)
		}
	}
	return prev, nil
}

func (s *store) DeleteData(ctx context.Context, id uuid.UUID, slot string) error {
	if s.cache != nil {
		if err := s.cache.DeleteSlot(ctx, id, slot); err != nil {
			return fmt.Errorf("failed to delete slot from cache: %w", err)
		}
	}
	return s.repo.DeleteData(ctx, id, slot)
}

func (s *store) evict(ctx context.Context, id *uuid.UUID) {
	if id == nil || s.cache == nil {
		return
	}
	if err := s.cache.Evict(ctx, *id); err != nil {
		s.cacheWarn("evict displaced", err)
	}
}

// cacheWarn logs a degraded cache operation. The durable tier keeps the
// store correct, except for Invalidate and DeleteData which fail hard above.
func (s *store) cacheWarn(op string, err error) {
	slog.Warn("session cache degraded", "op", op, "error", err)
}
