package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/identity"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

const testSecret = "test-secret"

// memRepo is an in-memory services.UserRepository with the same error
// contract as the Postgres repository.
type memRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *memRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for id := 1; id < r.nextID; id++ {
		if user, ok := r.users[id]; ok {
			user.PasswordHash = ""
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *memRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrEmailTaken
		}
	}
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *memRepo) Update(_ context.Context, id int, name, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for otherID, existing := range r.users {
		if otherID != id && existing.Email == email {
			return types.User{}, store.ErrEmailTaken
		}
	}
	user.Name = name
	user.Email = email
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

func (r *memRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// newTestRouter wires the full route surface against an in-memory
// repository and a real token service.
func newTestRouter() (http.Handler, *memRepo, *auth.TokenService) {
	repo := newMemRepo()
	userService := services.NewUserService(repo)
	tokens, err := auth.NewTokenService(testSecret)
	if err != nil {
		panic(err)
	}

	google := identity.NewGoogle(identity.Config{})

	router := chi.NewRouter()
	AuthRouter(router, userService, tokens, google)
	UserRouter(router, userService, RequireAuth(tokens))
	return router, repo, tokens
}
