package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrStaleAccount is returned by Save when the stored version no longer
	// matches the one the caller read.
	ErrStaleAccount = errors.New("account was modified concurrently")
)

// Store is the persistence contract for accounts.
//
// Save is a compare-and-swap: it only writes when the stored Version equals
// acc.Version, and on success increments acc.Version. RoleGroup, Email and
// CreatedAt are never written by Save.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, acc *Account) (*Account, error)
	Save(ctx context.Context, acc *Account) error
}

// Reload replaces acc with the latest stored copy
func Reload(ctx context.Context, store Store, acc *Account) error {
	fresh, err := store.GetByID(ctx, acc.ID)
	if err != nil {
		return err
	}
	*acc = *fresh
	return nil
}
