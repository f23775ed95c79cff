package stamp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/redmonkez12/docstamp-api/internal/auth"
	"github.com/redmonkez12/docstamp-api/internal/guard"
	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/storage"
)

// Handler exposes stamps over HTTP
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles stamp creation
// @Summary      Create a stamp
// @Description  Requires an OTP-verified account (POST /otp/request then POST /otp/verify).
// @Tags         stamps
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateInput true "Stamp design"
// @Success      201 {object} Stamp
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      403 {object} httputil.ErrorResponse "Account is not OTP verified"
// @Router       /stamps [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid stamp request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	st, err := h.service.Create(r.Context(), accountID, req)
	if err != nil {
		if errors.Is(err, guard.ErrActionNotPermitted) {
			httputil.RespondErrorWithCode(w, "OTP verification is required before creating stamps", httputil.CodeActionNotPermitted, http.StatusForbidden)
			return
		}
		if fields, ok := httputil.FieldErrors(err); ok {
			httputil.RespondFieldErrors(w, fields)
			return
		}
		if errors.Is(err, ErrInvalidLogoKey) {
			httputil.RespondJSON(w, httputil.ErrorResponse{
				Error:  err.Error(),
				Code:   httputil.CodeInvalidFileKey,
				Fields: map[string]string{"logo_key": "must be a key returned by the logo upload URL endpoint"},
			}, http.StatusBadRequest)
			return
		}
		logger.Error("failed to create stamp", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to create stamp", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, st, http.StatusCreated)
}

// List handles listing the caller's stamps
// @Summary      List stamps
// @Tags         stamps
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} Stamp
// @Router       /stamps [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	stamps, err := h.service.List(r.Context(), accountID)
	if err != nil {
		logger.Error("failed to list stamps", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to list stamps", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, stamps, http.StatusOK)
}

// RequestLogoUpload handles presigned logo uploads
// @Summary      Get a logo upload URL
// @Tags         stamps
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} storage.PresignedURL
// @Failure      503 {object} httputil.ErrorResponse "Object storage unavailable"
// @Router       /stamps/logo-upload-url [post]
func (h *Handler) RequestLogoUpload(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	presigned, err := h.service.RequestLogoUpload(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			logger.Error("object storage failure", "error", err.Error())
			httputil.RespondErrorWithCode(w, "file storage is temporarily unavailable", httputil.CodeStorageUnavailable, http.StatusServiceUnavailable)
			return
		}
		logger.Error("failed to presign logo upload", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, presigned, http.StatusOK)
}
