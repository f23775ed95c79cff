package document

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicateSerial = errors.New("serial number already in use")
	ErrInvalidSerial   = errors.New("invalid serial number")
	ErrInvalidFileKey  = errors.New("file key does not belong to this account")
)

// serialPattern is three groups of four uppercase hex digits
var serialPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

// Document is an uploaded file with the serial number that vouches for it
type Document struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	FileKey      string    `json:"file_key"`
	SerialNumber string    `json:"serial_number"`
	CreatedAt    time.Time `json:"created_at"`

	// Owner is only loaded by serial lookups
	Owner *Owner `json:"-"`
}

// Owner is the public view of the account a document belongs to
type Owner struct {
	Name      string `json:"name"`
	RoleGroup string `json:"role_group"`
}

// GenerateSerialNumber returns a random XXXX-XXXX-XXXX serial from 6 random bytes
func GenerateSerialNumber() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	h := strings.ToUpper(hex.EncodeToString(b))
	return h[0:4] + "-" + h[4:8] + "-" + h[8:12], nil
}

// NormalizeSerial trims and upper-cases a client supplied serial
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// ValidSerial reports whether serial is in canonical form
func ValidSerial(serial string) bool {
	return serialPattern.MatchString(serial)
}

// KeyPrefix is where an account's documents are uploaded
func KeyPrefix(accountID uuid.UUID) string {
	return "documents/" + accountID.String() + "/"
}
