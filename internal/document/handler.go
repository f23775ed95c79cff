package document

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/docstamp-api/internal/auth"
	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/storage"
)

// Handler exposes documents and serial verification over HTTP
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SerialNumberResponse carries a freshly generated serial
type SerialNumberResponse struct {
	SerialNumber string `json:"serial_number"`
}

// GenerateSerial handles serial number generation
// @Summary      Generate a serial number
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} SerialNumberResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /serial-numbers [post]
func (h *Handler) GenerateSerial(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	serial, err := h.service.GenerateSerialNumber()
	if err != nil {
		logger.Error("failed to generate serial number", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to generate serial number", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, SerialNumberResponse{SerialNumber: serial}, http.StatusOK)
}

// RequestUpload handles presigned document uploads
// @Summary      Get a document upload URL
// @Description  Returns a presigned PUT URL. Upload the file there, then register it with POST /documents.
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} storage.PresignedURL
// @Failure      401 {object} httputil.ErrorResponse
// @Failure      503 {object} httputil.ErrorResponse "Object storage unavailable"
// @Router       /documents/upload-url [post]
func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	presigned, err := h.service.RequestUpload(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, presigned, http.StatusOK)
}

// Save handles document registration
// @Summary      Register an uploaded document
// @Tags         documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SaveInput true "Uploaded file key and optional serial"
// @Success      201 {object} View
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Serial number already in use"
// @Router       /documents [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req SaveInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid document request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	view, err := h.service.Save(r.Context(), accountID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, view, http.StatusCreated)
}

// List handles listing the caller's documents
// @Summary      List documents
// @Tags         documents
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} View
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /documents [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	views, err := h.service.List(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, views, http.StatusOK)
}

// VerifySerial handles the public authenticity check
// @Summary      Verify a serial number
// @Description  Public. Reports whether a document was issued with the serial number.
// @Tags         verification
// @Produce      json
// @Param        serial path string true "Serial number (XXXX-XXXX-XXXX)"
// @Success      200 {object} Verification
// @Router       /verify-serial/{serial} [get]
func (h *Handler) VerifySerial(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, result, http.StatusOK)
}

// QRCode handles QR code rendering
// @Summary      QR code for a serial number
// @Description  PNG linking to the public verification page.
// @Tags         verification
// @Produce      png
// @Param        serial path string true "Serial number"
// @Param        size query int false "Edge length in pixels (128-1024)"
// @Success      200 {file} binary
// @Failure      400 {object} httputil.ErrorResponse "Invalid serial number"
// @Failure      404 {object} httputil.ErrorResponse "Unknown serial number"
// @Router       /verify-serial/{serial}/qr [get]
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	png, err := h.service.QRCode(r.Context(), chi.URLParam(r, "serial"), size)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	if fields, ok := httputil.FieldErrors(err); ok {
		httputil.RespondFieldErrors(w, fields)
		return
	}

	switch {
	case errors.Is(err, ErrInvalidFileKey):
		httputil.RespondJSON(w, httputil.ErrorResponse{
			Error:  err.Error(),
			Code:   httputil.CodeInvalidFileKey,
			Fields: map[string]string{"file_key": "must be a key returned by the upload URL endpoint"},
		}, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidSerial):
		httputil.RespondErrorWithCode(w, "invalid serial number", httputil.CodeInvalidSerial, http.StatusBadRequest)
	case errors.Is(err, ErrDuplicateSerial):
		httputil.RespondErrorWithCode(w, "serial number already in use", httputil.CodeDuplicateSerial, http.StatusConflict)
	case errors.Is(err, ErrNotFound):
		httputil.RespondErrorWithCode(w, "document not found", httputil.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, storage.ErrUnavailable):
		logger.Error("object storage failure", "error", err.Error())
		httputil.RespondErrorWithCode(w, "file storage is temporarily unavailable", httputil.CodeStorageUnavailable, http.StatusServiceUnavailable)
	default:
		logger.Error("document request failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
