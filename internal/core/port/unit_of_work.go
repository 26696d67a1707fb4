package port

import "context"

// RepositorySet groups the repositories bound to one storage transaction.
type RepositorySet struct {
	Users  UserRepository
	Roles  RoleRepository
	Tokens TokenRepository
}

// UnitOfWork executes fn against a RepositorySet sharing a single
// transaction. The transaction commits only if fn returns nil; any error
// or cancellation rolls back every mutation, so a crash mid-command never
// leaves a half-mutated aggregate persisted.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos RepositorySet) error) error
}
