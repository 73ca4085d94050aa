package inmemdb

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core/user"
)

// userRepository keeps users in memory. It backs tests and local toying
// around without a database.
type userRepository struct {
	mu    sync.RWMutex
	users map[string]user.User
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository() *userRepository {
	return &userRepository{users: make(map[string]user.User)}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}
	for _, usr := range repo.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	users := make([]user.User, 0, len(repo.users))
	for _, usr := range repo.users {
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if usr, ok := repo.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == username })
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == username || usr.Email == username })
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	filter.Clean()

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var users []user.User
	for _, usr := range repo.users {
		if filter.Search != "" && !matchesSearch(usr, filter.Search) {
			continue
		}
		if filter.Roles != nil && !hasAnyRole(usr, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && usr.Active() != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	orig, ok := repo.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.PhoneNumber != "" {
		orig.PhoneNumber = usr.PhoneNumber
	}
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.SetActive(*isActive)
	}
	if !usr.UpdatedAt.IsZero() {
		orig.UpdatedAt = usr.UpdatedAt
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	repo.users[usr.ID] = orig
	return orig, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, id := range ids {
		delete(repo.users, id)
	}
	return nil
}

func (repo *userRepository) find(match func(user.User) bool) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, usr := range repo.users {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func matchesSearch(usr user.User, search string) bool {
	search = strings.ToLower(search)
	for _, field := range []string{usr.Name, usr.Username, usr.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func hasAnyRole(usr user.User, roles []string) bool {
	for _, role := range roles {
		for _, ur := range usr.Roles {
			if ur == role {
				return true
			}
		}
	}
	return false
}
