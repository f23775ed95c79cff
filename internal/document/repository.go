package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/docstamp-api/internal/database"
)

const serialUniqueConstraint = "documents_serial_number_key"

// Repository is the persistence contract for documents
type Repository interface {
	Create(ctx context.Context, doc *Document) (*Document, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Document, error)
	// GetBySerial loads the document together with its Owner
	GetBySerial(ctx context.Context, serial string) (*Document, error)
}

// BunRepository stores documents in Postgres
type BunRepository struct {
	db bun.IDB
}

var _ Repository = (*BunRepository)(nil)

func NewRepository(db bun.IDB) *BunRepository {
	return &BunRepository{db: db}
}

// Create inserts a document, reporting ErrDuplicateSerial on a serial clash
func (r *BunRepository) Create(ctx context.Context, doc *Document) (*Document, error) {
	dbDoc := &database.Document{
		ID:           doc.ID,
		AccountID:    doc.AccountID,
		FileKey:      doc.FileKey,
		SerialNumber: doc.SerialNumber,
	}

	_, err := r.db.NewInsert().
		Model(dbDoc).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if database.IsUniqueViolation(err, serialUniqueConstraint) {
			return nil, ErrDuplicateSerial
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return mapDBDocumentToModel(dbDoc), nil
}

// ListByAccount returns the account's documents, newest first
func (r *BunRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Document, error) {
	var rows []database.Document
	err := r.db.NewSelect().
		Model(&rows).
		Where("doc.account_id = ?", accountID).
		OrderExpr("doc.created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*Document, 0, len(rows))
	for i := range rows {
		docs = append(docs, mapDBDocumentToModel(&rows[i]))
	}
	return docs, nil
}

func (r *BunRepository) GetBySerial(ctx context.Context, serial string) (*Document, error) {
	dbDoc := new(database.Document)
	err := r.db.NewSelect().
		Model(dbDoc).
		Relation("Account").
		Where("doc.serial_number = ?", serial).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document by serial: %w", err)
	}

	doc := mapDBDocumentToModel(dbDoc)
	if dbDoc.Account != nil {
		doc.Owner = &Owner{
			Name:      strings.TrimSpace(dbDoc.Account.FirstName + " " + dbDoc.Account.LastName),
			RoleGroup: dbDoc.Account.RoleGroup,
		}
	}
	return doc, nil
}

func mapDBDocumentToModel(d *database.Document) *Document {
	return &Document{
		ID:           d.ID,
		AccountID:    d.AccountID,
		FileKey:      d.FileKey,
		SerialNumber: d.SerialNumber,
		CreatedAt:    d.CreatedAt,
	}
}
