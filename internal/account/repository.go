package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/docstamp-api/internal/database"
)

const emailUniqueConstraint = "accounts_email_key"

// Repository handles account persistence in Postgres
type Repository struct {
	db bun.IDB
}

var _ Store = (*Repository)(nil)

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account
func (r *Repository) Create(ctx context.Context, acc *Account) (*Account, error) {
	dbAcc := mapModelToDBAccount(acc)
	dbAcc.Email = NormalizeEmail(acc.Email)

	_, err := r.db.NewInsert().
		Model(dbAcc).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if database.IsUniqueViolation(err, emailUniqueConstraint) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return mapDBAccountToModel(dbAcc), nil
}

// GetByEmail retrieves an account by normalized email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	dbAcc := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAcc).
		Where("acc.email = ?", NormalizeEmail(email)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return mapDBAccountToModel(dbAcc), nil
}

// GetByID retrieves an account by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	dbAcc := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAcc).
		Where("acc.id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return mapDBAccountToModel(dbAcc), nil
}

// Save writes the mutable fields of acc if nobody else has written since it was read
func (r *Repository) Save(ctx context.Context, acc *Account) error {
	next := acc.Version + 1
	now := time.Now()

	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("password_hash = ?", acc.PasswordHash).
		Set("first_name = ?", acc.FirstName).
		Set("last_name = ?", acc.LastName).
		Set("is_active = ?", acc.IsActive).
		Set("is_verified = ?", acc.IsVerified).
		Set("otp_verified = ?", acc.OTPVerified).
		Set("otp_code = ?", acc.OTPCode).
		Set("otp_expires_at = ?", acc.OTPExpiresAt).
		Set("otp_generation = ?", acc.OTPGeneration).
		Set("version = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", acc.ID).
		Where("version = ?", acc.Version).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrStaleAccount
	}

	acc.Version = next
	acc.UpdatedAt = now
	return nil
}

func mapModelToDBAccount(a *Account) *database.Account {
	return &database.Account{
		ID:            a.ID,
		Email:         a.Email,
		PasswordHash:  a.PasswordHash,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		RoleGroup:     string(a.RoleGroup),
		IsActive:      a.IsActive,
		IsVerified:    a.IsVerified,
		OTPVerified:   a.OTPVerified,
		OTPCode:       a.OTPCode,
		OTPExpiresAt:  a.OTPExpiresAt,
		OTPGeneration: a.OTPGeneration,
		Version:       a.Version,
	}
}

// mapDBAccountToModel converts database model to domain model
func mapDBAccountToModel(dba *database.Account) *Account {
	return &Account{
		ID:            dba.ID,
		Email:         dba.Email,
		PasswordHash:  dba.PasswordHash,
		FirstName:     dba.FirstName,
		LastName:      dba.LastName,
		RoleGroup:     RoleGroup(dba.RoleGroup),
		IsActive:      dba.IsActive,
		IsVerified:    dba.IsVerified,
		OTPVerified:   dba.OTPVerified,
		OTPCode:       dba.OTPCode,
		OTPExpiresAt:  dba.OTPExpiresAt,
		OTPGeneration: dba.OTPGeneration,
		Version:       dba.Version,
		CreatedAt:     dba.CreatedAt,
		UpdatedAt:     dba.UpdatedAt,
	}
}
