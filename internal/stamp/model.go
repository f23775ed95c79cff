package stamp

import (
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

const (
	ShapeCircle    = "circle"
	ShapeRectangle = "rectangle"

	DefaultColor  = "#000000"
	MaxTextLength = 200
)

var ErrInvalidLogoKey = errors.New("logo key does not belong to this account")

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Stamp is a reusable visual mark an account applies to its documents
type Stamp struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Shape     string    `json:"shape"`
	Color     string    `json:"color"`
	Text      string    `json:"text"`
	LogoKey   *string   `json:"logo_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput is the client payload for a new stamp
type CreateInput struct {
	Shape   string `json:"shape"`
	Color   string `json:"color,omitempty"`
	Text    string `json:"text,omitempty"`
	LogoKey string `json:"logo_key,omitempty"`
}

func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Shape, validation.Required, validation.In(ShapeCircle, ShapeRectangle).Error("must be circle or rectangle")),
		validation.Field(&in.Color, validation.Required, validation.Match(colorPattern).Error("must be a hex colour like #1A2B3C")),
		validation.Field(&in.Text, validation.RuneLength(0, MaxTextLength)),
		validation.Field(&in.LogoKey, validation.Length(0, 1024)),
	)
}

func (in *CreateInput) normalize() {
	in.Shape = strings.ToLower(strings.TrimSpace(in.Shape))
	in.Color = strings.ToUpper(strings.TrimSpace(in.Color))
	if in.Color == "" {
		in.Color = DefaultColor
	}
	in.LogoKey = strings.TrimSpace(in.LogoKey)
}

// LogoPrefix is where an account's logos are uploaded
func LogoPrefix(accountID uuid.UUID) string {
	return "logos/" + accountID.String() + "/"
}
