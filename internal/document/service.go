package document

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/storage"
)

const (
	maxSerialAttempts = 5

	DefaultQRSize = 256
	MinQRSize     = 128
	MaxQRSize     = 1024
)

// SaveInput registers an uploaded file. SerialNumber is generated when empty.
type SaveInput struct {
	FileKey      string `json:"file_key"`
	SerialNumber string `json:"serial_number,omitempty"`
}

func (in SaveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FileKey, validation.Required, validation.Length(1, 1024)),
		validation.Field(&in.SerialNumber, validation.Match(serialPattern).Error("must look like XXXX-XXXX-XXXX")),
	)
}

// View is a document as returned to its owner
type View struct {
	*Document
	DownloadURL string `json:"download_url,omitempty"`
	VerifyURL   string `json:"verify_url"`
	QRCodeURL   string `json:"qr_code_url"`
}

// Verification is the public answer to "is this serial genuine"
type Verification struct {
	Valid        bool       `json:"valid"`
	Message      string     `json:"message"`
	SerialNumber string     `json:"serial_number"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	Owner        *Owner     `json:"owner,omitempty"`
}

// Service issues serial numbers and tracks uploaded documents
type Service struct {
	repo        Repository
	objects     storage.ObjectStore
	logger      *logging.Logger
	frontendURL string
	publicURL   string
	serials     func() (string, error)
}

// Option configures a Service
type Option func(*Service)

// WithSerialSource replaces the random serial generator
func WithSerialSource(fn func() (string, error)) Option {
	return func(s *Service) { s.serials = fn }
}

func NewService(repo Repository, objects storage.ObjectStore, logger *logging.Logger, frontendURL, publicURL string, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		objects:     objects,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		publicURL:   strings.TrimRight(publicURL, "/"),
		serials:     GenerateSerialNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSerialNumber hands out a fresh serial without reserving it
func (s *Service) GenerateSerialNumber() (string, error) {
	return s.serials()
}

// RequestUpload returns a presigned PUT under the account's document prefix
func (s *Service) RequestUpload(ctx context.Context, accountID uuid.UUID) (*storage.PresignedURL, error) {
	return s.objects.PresignUpload(ctx, KeyPrefix(accountID))
}

// Save records an uploaded file against a serial number
func (s *Service) Save(ctx context.Context, accountID uuid.UUID, in SaveInput) (*View, error) {
	in.FileKey = strings.TrimSpace(in.FileKey)
	in.SerialNumber = NormalizeSerial(in.SerialNumber)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(in.FileKey, KeyPrefix(accountID)) || strings.Contains(in.FileKey, "..") {
		return nil, ErrInvalidFileKey
	}

	generated := in.SerialNumber == ""
	attempts := 1
	if generated {
		attempts = maxSerialAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		serial := in.SerialNumber
		if generated {
			var err error
			if serial, err = s.serials(); err != nil {
				return nil, err
			}
		}

		doc, err := s.repo.Create(ctx, &Document{
			AccountID:    accountID,
			FileKey:      in.FileKey,
			SerialNumber: serial,
		})
		if err == nil {
			s.logger.Info("document saved", "account_id", accountID, "document_id", doc.ID, "serial_number", doc.SerialNumber)
			return s.view(doc), nil
		}
		if !errors.Is(err, ErrDuplicateSerial) {
			return nil, err
		}

		s.logger.Warn("serial number collision", "serial_number", serial, "attempt", i+1)
		lastErr = err
	}

	return nil, lastErr
}

// List returns the account's documents with download links, newest first
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]*View, error) {
	docs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(docs))
	for _, doc := range docs {
		v := s.view(doc)
		if v.DownloadURL, err = s.objects.PresignDownload(ctx, doc.FileKey); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// VerifySerial answers whether serial was issued. Unknown and malformed serials
// are reported as not valid rather than as errors.
func (s *Service) VerifySerial(ctx context.Context, serial string) (*Verification, error) {
	serial = NormalizeSerial(serial)
	if !ValidSerial(serial) {
		return &Verification{Valid: false, Message: "Invalid serial number format", SerialNumber: serial}, nil
	}

	doc, err := s.repo.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Verification{Valid: false, Message: "No document was issued with this serial number", SerialNumber: serial}, nil
		}
		return nil, err
	}

	return &Verification{
		Valid:        true,
		Message:      "Document is authentic",
		SerialNumber: doc.SerialNumber,
		CreatedAt:    &doc.CreatedAt,
		Owner:        doc.Owner,
	}, nil
}

// QRCode renders a PNG that links to the public verification page for serial
func (s *Service) QRCode(ctx context.Context, serial string, size int) ([]byte, error) {
	serial = NormalizeSerial(serial)
	if !ValidSerial(serial) {
		return nil, ErrInvalidSerial
	}

	if _, err := s.repo.GetBySerial(ctx, serial); err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(s.VerifyURL(serial), qrcode.Medium, clampQRSize(size))
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// VerifyURL is the frontend page a scanned code opens
func (s *Service) VerifyURL(serial string) string {
	return s.frontendURL + "/verify/" + url.PathEscape(serial)
}

func (s *Service) view(doc *Document) *View {
	return &View{
		Document:  doc,
		VerifyURL: s.VerifyURL(doc.SerialNumber),
		QRCodeURL: s.publicURL + "/verify-serial/" + url.PathEscape(doc.SerialNumber) + "/qr",
	}
}

func clampQRSize(size int) int {
	switch {
	case size <= 0:
		return DefaultQRSize
	case size < MinQRSize:
		return MinQRSize
	case size > MaxQRSize:
		return MaxQRSize
	}
	return size
}
