package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

const usersDocument = "users.json"

// DocumentUserRepository keeps identities in memory, optionally mirrored to a JSON document.
type DocumentUserRepository struct {
	mu       sync.RWMutex
	order    []string
	users    map[string]domain.User
	byHandle map[string]string
	file     *documentFile
}

// NewMemoryUserRepository returns a non-durable repository.
func NewMemoryUserRepository() *DocumentUserRepository {
	return &DocumentUserRepository{
		users:    make(map[string]domain.User),
		byHandle: make(map[string]string),
	}
}

// NewFileUserRepository loads (or initializes) the identity document under dir.
func NewFileUserRepository(dir string) (*DocumentUserRepository, error) {
	repo := NewMemoryUserRepository()
	file, err := newDocumentFile(dir, usersDocument)
	if err != nil {
		return nil, err
	}
	repo.file = file

	var users []domain.User
	if err := file.read(&users); err != nil {
		return nil, err
	}
	for _, user := range users {
		key := handleKey(user.Handle)
		if user.ID == "" || key == "" {
			continue
		}
		if _, taken := repo.byHandle[key]; taken {
			continue
		}
		repo.insert(user)
	}
	return repo, nil
}

func (r *DocumentUserRepository) insert(user domain.User) {
	user.ID = strings.Clone(user.ID)
	user.Handle = strings.Clone(user.Handle)
	r.order = append(r.order, user.ID)
	r.users[user.ID] = user
	r.byHandle[handleKey(user.Handle)] = user.ID
}

func (r *DocumentUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	key := handleKey(user.Handle)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byHandle[key]; taken {
		return ErrConflict
	}
	if _, taken := r.users[user.ID]; taken {
		return ErrConflict
	}
	r.insert(*user)

	if r.file == nil {
		return nil
	}
	snapshot := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.users[id])
	}
	if err := withRetry(ctx, func() error { return r.file.write(snapshot) }); err != nil {
		r.order = r.order[:len(r.order)-1]
		delete(r.users, user.ID)
		delete(r.byHandle, key)
		return err
	}
	return nil
}

func (r *DocumentUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *DocumentUserRepository) GetByHandle(_ context.Context, handle string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handleKey(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.users[id]
	return &user, nil
}

var _ UserRepository = (*DocumentUserRepository)(nil)
