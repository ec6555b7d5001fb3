package store

import (
	"context"
	"sync"

	"accounts/internal/users/models"
	id "accounts/pkg/domain"
	"accounts/pkg/platform/sentinel"
)

// InMemory keeps users in process. It is the default when no database is
// configured and the store used by unit tests.
type InMemory struct {
	mu         sync.RWMutex
	users      map[id.UserID]models.User
	byEmail    map[string]id.UserID
	byUsername map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:      make(map[id.UserID]models.User),
		byEmail:    make(map[string]id.UserID),
		byUsername: make(map[string]id.UserID),
	}
}

// Create inserts user if its email and username are free.
func (s *InMemory) Create(_ context.Context, user *models.User) error {
	emailKey := models.NormalizeKey(user.Email)
	usernameKey := models.NormalizeKey(user.Username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[emailKey]; taken {
		return models.ErrEmailTaken
	}
	if _, taken := s.byUsername[usernameKey]; taken {
		return models.ErrUsernameTaken
	}
	s.users[user.ID] = *user
	s.byEmail[emailKey] = user.ID
	s.byUsername[usernameKey] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(userID, true)
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[models.NormalizeKey(email)]
	return s.lookup(userID, ok)
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byUsername[models.NormalizeKey(username)]
	return s.lookup(userID, ok)
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// lookup must be called with the read lock held.
func (s *InMemory) lookup(userID id.UserID, ok bool) (*models.User, error) {
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &user, nil
}
