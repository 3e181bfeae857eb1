package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hausmeister-app/hausmeister/internal/models"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/repository"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

// memStore is an in-memory session.Store for service tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*memSession
}

type memSession struct {
	userID *uuid.UUID
	slots  map[string]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{sessions: map[uuid.UUID]*memSession{}}
}

var _ session.Store = (*memStore)(nil)

func (m *memStore) Create(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, s := range m.sessions {
		if s.userID != nil && *s.userID == userID {
			delete(m.sessions, sid)
		}
	}
	id := uuid.New()
	uid := userID
	m.sessions[id] = &memSession{userID: &uid, slots: map[string]json.RawMessage{}}
	return id, nil
}

func (m *memStore) CreateAnonymous(_ context.Context) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.sessions[id] = &memSession{slots: map[string]json.RawMessage{}}
	return id, nil
}

func (m *memStore) Resolve(_ context.Context, id uuid.UUID) (*uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return s.userID, true, nil
}

func (m *memStore) BindUser(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errors.ErrInvalidSession
	}
	for sid, other := range m.sessions {
		if sid != id && other.userID != nil && *other.userID == userID {
			delete(m.sessions, sid)
		}
	}
	uid := userID
	s.userID = &uid
	return nil
}

func (m *memStore) Invalidate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) GetData(_ context.Context, id uuid.UUID, slot string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.ErrInvalidSession
	}
	return s.slots[slot], nil
}

func (m *memStore) SetData(_ context.Context, id uuid.UUID, slot string, value json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.ErrInvalidSession
	}
	prev := s.slots[slot]
	s.slots[slot] = value
	return prev, nil
}

func (m *memStore) DeleteData(_ context.Context, id uuid.UUID, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		delete(s.slots, slot)
	}
	return nil
}

// MockUserRepository is a mock implementation of UserRepository for testing.
type MockUserRepository struct {
	mock.Mock
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) CreateAdminIfNoneExist(ctx context.Context, user *models.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

// MockResetRepository is a mock implementation of ResetRepository for testing.
type MockResetRepository struct {
	mock.Mock
}

var _ repository.ResetRepository = (*MockResetRepository)(nil)

func (m *MockResetRepository) Upsert(ctx context.Context, token string, userID uuid.UUID) error {
	args := m.Called(ctx, token, userID)
	return args.Error(0)
}

func (m *MockResetRepository) Exists(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockResetRepository) Consume(ctx context.Context, token string, passwordHash string) (bool, error) {
	args := m.Called(ctx, token, passwordHash)
	return args.Bool(0), args.Error(1)
}

// fakeUserRepo is an in-memory UserRepository for ceremony tests.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*models.User{}}
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.PasswordHash = &passwordHash
	}
	return nil
}

func (f *fakeUserRepo) CreateAdminIfNoneExist(_ context.Context, user *models.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) > 0 {
		return false, nil
	}
	copied := *user
	f.users[user.ID] = &copied
	return true, nil
}

// fakeResetRepo is an in-memory ResetRepository. Like the database table it
// keeps one pending request per user, so a new Upsert replaces the old token.
type fakeResetRepo struct {
	mu     sync.Mutex
	users  *fakeUserRepo
	tokens map[uuid.UUID]string
}

func newFakeResetRepo(users *fakeUserRepo) *fakeResetRepo {
	return &fakeResetRepo{users: users, tokens: map[uuid.UUID]string{}}
}

var _ repository.ResetRepository = (*fakeResetRepo)(nil)

func (f *fakeResetRepo) Upsert(_ context.Context, token string, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[userID] = token
	return nil
}

func (f *fakeResetRepo) Exists(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t == token {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResetRepo) Consume(ctx context.Context, token string, passwordHash string) (bool, error) {
	f.mu.Lock()
	var userID uuid.UUID
	found := false
	for uid, t := range f.tokens {
		if t == token {
			userID, found = uid, true
			break
		}
	}
	if found {
		delete(f.tokens, userID)
	}
	f.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, f.users.UpdatePassword(ctx, userID, passwordHash)
}

// fakePasskeyRepo is an in-memory PasskeyRepository for ceremony tests.
type fakePasskeyRepo struct {
	mu          sync.Mutex
	credentials map[uuid.UUID][]json.RawMessage
}

func newFakePasskeyRepo() *fakePasskeyRepo {
	return &fakePasskeyRepo{credentials: map[uuid.UUID][]json.RawMessage{}}
}

var _ repository.PasskeyRepository = (*fakePasskeyRepo)(nil)

func (f *fakePasskeyRepo) Add(_ context.Context, userID uuid.UUID, credential json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials[userID] = append(f.credentials[userID], credential)
	return nil
}

func (f *fakePasskeyRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.credentials[userID]...), nil
}

func (f *fakePasskeyRepo) UpdateCredential(_ context.Context, userID uuid.UUID, credentialID string, credential json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, doc := range f.credentials[userID] {
		var stored struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(doc, &stored); err != nil {
			return err
		}
		if stored.ID == credentialID {
			f.credentials[userID][i] = credential
		}
	}
	return nil
}
