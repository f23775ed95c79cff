package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldErrors(t *testing.T) {
	in := struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}{}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Name, validation.Required),
	)
	fields, ok := FieldErrors(fmt.Errorf("register: %w", err))
	require.True(t, ok)
	assert.Equal(t, "cannot be blank", fields["email"])
	assert.Contains(t, fields, "name")

	_, ok = FieldErrors(errors.New("boom"))
	assert.False(t, ok)
}

func TestRespondFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondFieldErrors(rec, map[string]string{"email": "must be a valid email address"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, CodeValidationFailed, resp.Code)
	assert.Equal(t, "must be a valid email address", resp.Fields["email"])
}

func TestRespondErrorWithCode_OmitsEmptyFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithCode(rec, "nope", CodeNotFound, http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"nope","code":"NOT_FOUND"}`, rec.Body.String())
}
