package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/repository"
)

// stubStore implements port.UnitOfWork over in-memory repositories. There
// is no real transaction; fn simply runs against the shared state, which
// matches the single-threaded test flows.
type stubStore struct {
	users  *stubUserRepo
	roles  *stubRoleRepo
	tokens *stubTokenRepo

	// txCount observes how often a command opened a unit of work.
	txCount int
}

func newStubStore() *stubStore {
	return &stubStore{
		users:  newStubUserRepo(),
		roles:  newStubRoleRepo(),
		tokens: newStubTokenRepo(),
	}
}

func (s *stubStore) Do(_ context.Context, fn func(repos port.RepositorySet) error) error {
	s.txCount++
	return fn(port.RepositorySet{
		Users:  s.users,
		Roles:  s.roles,
		Tokens: s.tokens,
	})
}

type stubUserRepo struct {
	mu     sync.Mutex
	byID   map[string]domain.User
	nextID int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byID: make(map[string]domain.User)}
}

func (r *stubUserRepo) add(user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[user.ID] = user
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Username == user.Username {
			return nil, repository.ErrConflict
		}
	}

	r.nextID++
	user.ExternalID = r.nextID
	r.byID[user.ID] = user
	return &user, nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.byID[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByExternalID(_ context.Context, externalID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.byID {
		if user.ExternalID == externalID {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.byID {
		if user.Username == username {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *stubUserRepo) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != user.Version {
		return repository.ErrConflict
	}
	user.Version++
	r.byID[user.ID] = user
	return nil
}

func (r *stubUserRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.IsActive = false
	user.Version++
	r.byID[id] = user
	return nil
}

func (r *stubUserRepo) AssignRole(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, role := range user.Roles {
		if role.ID == roleID {
			return repository.ErrConflict
		}
	}
	user.Roles = append(user.Roles, domain.Role{ID: roleID, IsActive: true})
	r.byID[userID] = user
	return nil
}

func (r *stubUserRepo) RemoveRole(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	for i, role := range user.Roles {
		if role.ID == roleID {
			user.Roles = append(user.Roles[:i], user.Roles[i+1:]...)
			r.byID[userID] = user
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubUserRepo) AddDeniedPermission(_ context.Context, userID string, p domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.DenyPermission(p)
	r.byID[userID] = user
	return nil
}

func (r *stubUserRepo) RemoveDeniedPermission(_ context.Context, userID string, p domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := user.AllowPermission(p); err != nil {
		return repository.ErrNotFound
	}
	r.byID[userID] = user
	return nil
}

type stubRoleRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Role
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{byID: make(map[string]domain.Role)}
}

func (r *stubRoleRepo) Create(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Name == role.Name {
			return repository.ErrConflict
		}
	}
	r.byID[role.ID] = role
	return nil
}

func (r *stubRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role, ok := r.byID[id]; ok {
		copied := role
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range r.byID {
		if role.Name == name {
			copied := role
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roles := make([]domain.Role, 0, len(r.byID))
	for _, role := range r.byID {
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *stubRoleRepo) Update(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[role.ID]; !ok {
		return repository.ErrNotFound
	}
	r.byID[role.ID] = role
	return nil
}

func (r *stubRoleRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	role.IsActive = false
	r.byID[id] = role
	return nil
}

func (r *stubRoleRepo) AssignPermission(_ context.Context, roleID string, p domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[roleID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := role.AssignPermission(p); err != nil {
		return repository.ErrConflict
	}
	r.byID[roleID] = role
	return nil
}

func (r *stubRoleRepo) RemovePermission(_ context.Context, roleID string, p domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[roleID]
	if !ok {
		return repository.ErrNotFound
	}
	if !role.RemovePermission(p) {
		return repository.ErrNotFound
	}
	r.byID[roleID] = role
	return nil
}

func (r *stubRoleRepo) ListByUser(context.Context, string) ([]domain.Role, error) {
	return nil, errors.New("unexpected call")
}

type stubTokenRepo struct {
	mu     sync.Mutex
	byHash map[string]domain.RefreshToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{byHash: make(map[string]domain.RefreshToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[token.TokenHash]; ok {
		return repository.ErrConflict
	}
	r.byHash[token.TokenHash] = token
	return nil
}

func (r *stubTokenRepo) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token, ok := r.byHash[hash]; ok {
		copied := token
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

// Revoke mirrors the transactional compare-and-set: only an unrevoked row
// transitions, everyone else observes not-found.
func (r *stubTokenRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, token := range r.byHash {
		if token.ID != id {
			continue
		}
		if token.RevokedAt != nil {
			return repository.ErrNotFound
		}
		token.Revoke(at)
		r.byHash[hash] = token
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubTokenRepo) ListByUser(_ context.Context, userID string) ([]domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tokens []domain.RefreshToken
	for _, token := range r.byHash {
		if token.UserID == userID {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

type stubTokenIndex struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
}

func newStubTokenIndex() *stubTokenIndex {
	return &stubTokenIndex{entries: make(map[string]string)}
}

func (i *stubTokenIndex) Set(_ context.Context, tokenHash, userID string, _ time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[tokenHash] = userID
	return nil
}

func (i *stubTokenIndex) Get(_ context.Context, tokenHash string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.gets++
	if userID, ok := i.entries[tokenHash]; ok {
		return userID, nil
	}
	return "", repository.ErrNotFound
}

func (i *stubTokenIndex) Delete(_ context.Context, tokenHash string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, tokenHash)
	return nil
}

func (i *stubTokenIndex) owner(tokenHash string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.entries[tokenHash]
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (p *stubEventPublisher) Publish(_ context.Context, event domain.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *stubEventPublisher) byType(eventType string) []domain.AuthEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []domain.AuthEvent
	for _, event := range p.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
