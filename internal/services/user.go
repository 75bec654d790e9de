package services

import (
	"context"
	"errors"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id int, name, email string) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, id int, name, email string) (types.User, error) {
	return s.repo.Update(ctx, id, name, email)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// FindOrCreateByEmail returns the user with the given email, creating a
// passwordless account when none exists. If the create loses a race to a
// concurrent registration with the same email, the winner is returned.
func (s *UserService) FindOrCreateByEmail(ctx context.Context, name, email string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	created, err := s.repo.Create(ctx, types.User{Name: name, Email: email})
	if err == nil {
		return created, nil
	}
	if errors.Is(err, store.ErrEmailTaken) {
		return s.repo.GetByEmail(ctx, email)
	}
	return types.User{}, err
}
