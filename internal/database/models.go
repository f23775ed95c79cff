package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the persisted identity record
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email         string     `bun:"email,notnull,unique"`
	PasswordHash  string     `bun:"password_hash,notnull"`
	FirstName     string     `bun:"first_name,notnull"`
	LastName      string     `bun:"last_name,notnull"`
	RoleGroup     string     `bun:"role_group,notnull"`
	IsActive      bool       `bun:"is_active,notnull"`
	IsVerified    bool       `bun:"is_verified,notnull"`
	OTPVerified   bool       `bun:"otp_verified,notnull"`
	OTPCode       *string    `bun:"otp_code"`
	OTPExpiresAt  *time.Time `bun:"otp_expires_at"`
	OTPGeneration int64      `bun:"otp_generation,notnull"`
	Version       int64      `bun:"version,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Document is an uploaded file with its issued serial number
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:doc"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccountID    uuid.UUID `bun:"account_id,type:uuid,notnull"`
	FileKey      string    `bun:"file_key,notnull"`
	SerialNumber string    `bun:"serial_number,notnull,unique"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Account *Account `bun:"rel:belongs-to,join:account_id=id"`
}

// Stamp is a reusable visual stamp owned by an account
type Stamp struct {
	bun.BaseModel `bun:"table:stamps,alias:stp"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccountID uuid.UUID `bun:"account_id,type:uuid,notnull"`
	Shape     string    `bun:"shape,notnull"`
	Color     string    `bun:"color,notnull"`
	Text      string    `bun:"text,notnull"`
	LogoKey   *string   `bun:"logo_key"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
