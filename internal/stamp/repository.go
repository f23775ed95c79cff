package stamp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/docstamp-api/internal/database"
)

// Repository is the persistence contract for stamps
type Repository interface {
	Create(ctx context.Context, s *Stamp) (*Stamp, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Stamp, error)
}

// BunRepository stores stamps in Postgres
type BunRepository struct {
	db bun.IDB
}

var _ Repository = (*BunRepository)(nil)

func NewRepository(db bun.IDB) *BunRepository {
	return &BunRepository{db: db}
}

func (r *BunRepository) Create(ctx context.Context, s *Stamp) (*Stamp, error) {
	dbStamp := &database.Stamp{
		ID:        s.ID,
		AccountID: s.AccountID,
		Shape:     s.Shape,
		Color:     s.Color,
		Text:      s.Text,
		LogoKey:   s.LogoKey,
	}

	_, err := r.db.NewInsert().
		Model(dbStamp).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to create stamp: %w", err)
	}

	return mapDBStampToModel(dbStamp), nil
}

// ListByAccount returns the account's stamps, newest first
func (r *BunRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Stamp, error) {
	var rows []database.Stamp
	err := r.db.NewSelect().
		Model(&rows).
		Where("stp.account_id = ?", accountID).
		OrderExpr("stp.created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list stamps: %w", err)
	}

	stamps := make([]*Stamp, 0, len(rows))
	for i := range rows {
		stamps = append(stamps, mapDBStampToModel(&rows[i]))
	}
	return stamps, nil
}

func mapDBStampToModel(s *database.Stamp) *Stamp {
	return &Stamp{
		ID:        s.ID,
		AccountID: s.AccountID,
		Shape:     s.Shape,
		Color:     s.Color,
		Text:      s.Text,
		LogoKey:   s.LogoKey,
		CreatedAt: s.CreatedAt,
	}
}
