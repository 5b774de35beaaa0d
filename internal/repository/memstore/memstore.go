// Package memstore is an in-process implementation of the repository
// contracts. Documents are deep-copied on every read and write so callers
// never share state with the store.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

type Store struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	goals     map[string]models.Goal
	payments  map[string]models.Payment
	users     map[string]models.User
	coaches   map[string]models.CoachProfile
	sequences map[string]int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		sessions:  make(map[string]models.Session),
		goals:     make(map[string]models.Goal),
		payments:  make(map[string]models.Payment),
		users:     make(map[string]models.User),
		coaches:   make(map[string]models.CoachProfile),
		sequences: make(map[string]int),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Sessions:      &sessionStore{s: s},
		Goals:         &goalStore{s: s},
		Payments:      &paymentStore{s: s},
		Users:         &userStore{s: s},
		CoachProfiles: &coachProfileStore{s: s},
	}
}

// WithinTx serializes units of work sharing a lock key. Writes are applied
// immediately; there is no rollback, so callers validate before writing.
func (s *Store) WithinTx(
	ctx context.Context,
	lockKeys []string,
	fn func(ctx context.Context, repos repository.Repositories) error,
) error {
	keys := repository.SortedKeys(lockKeys)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		lock := s.keyLock(key)
		lock.Lock()
		held = append(held, lock)
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.Repositories())
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// PutUser seeds a user record.
func (s *Store) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutCoachProfile seeds a coach profile keyed by its user id.
func (s *Store) PutCoachProfile(profile models.CoachProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coaches[profile.UserID] = clone(profile)
}

func clone[T any](v T) T {
	encoded, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(encoded, &out); err != nil {
		panic(err)
	}
	return out
}

func window[T any](items []T, opts repository.ListOptions) []T {
	if opts.Skip > 0 {
		if opts.Skip >= len(items) {
			return []T{}
		}
		items = items[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
