package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/config"
	"github.com/trunov/freshconnect-images/internal/entities"
)

type UseCase interface {
	ValidateImage(input entities.ImageInput) entities.ValidationResult
	UploadImage(ctx context.Context, input entities.ImageInput, token string) entities.UploadResult
	CleanReference(raw string) entities.Representation
	ReviveReferencesOnStartup(ctx context.Context) []string
	IsExpiredReference(ctx context.Context, handle string) bool
	PreviewImage(ctx context.Context, input entities.ImageInput, ownerContext string) (entities.Representation, error)
	Blob(id string) ([]byte, string, bool)
	SaveListings(ctx context.Context, listings []entities.Listing) error
	LoadListings(ctx context.Context) ([]entities.ListingView, error)
}

// Pinger reports whether a backing store is reachable. Nil means there is
// nothing to check.
type Pinger func(ctx context.Context) error

type Handler struct {
	useCase   UseCase
	cfg       *config.Config
	validator *validator.Validate
	ping      Pinger
	log       *zap.Logger
}

func New(useCase UseCase, cfg *config.Config, ping Pinger, log *zap.Logger) *Handler {
	return &Handler{
		useCase:   useCase,
		cfg:       cfg,
		validator: validator.New(),
		ping:      ping,
		log:       log,
	}
}

func (h *Handler) ValidateImage(w http.ResponseWriter, r *http.Request) {
	input, ok := h.readImage(w, r)
	if !ok {
		return
	}

	writeJSON(w, h.useCase.ValidateImage(input), http.StatusOK)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	input, ok := h.readImage(w, r)
	if !ok {
		return
	}

	res := h.useCase.UploadImage(r.Context(), input, bearerToken(r))

	code := http.StatusCreated
	if res.ErrorKind == entities.UploadErrValidation {
		code = http.StatusUnprocessableEntity
	}

	writeJSON(w, UploadResponse{
		RepresentationResponse: toRepresentationResponse(res.Representation),
		IsDegraded:             res.IsDegraded,
		ErrorKind:              string(res.ErrorKind),
		Error:                  res.Error,
	}, code)
}

func (h *Handler) PreviewImage(w http.ResponseWriter, r *http.Request) {
	input, ok := h.readImage(w, r)
	if !ok {
		return
	}

	params := PreviewParams{OwnerContext: r.Form.Get("ownerContext")}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, validationErrorsToMap(err), http.StatusBadRequest)
		return
	}

	rep, err := h.useCase.PreviewImage(r.Context(), input, params.OwnerContext)
	if err != nil {
		var verr *entities.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, verr.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, toRepresentationResponse(rep), http.StatusCreated)
}

func (h *Handler) CleanReference(w http.ResponseWriter, r *http.Request) {
	var req CleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, validationErrorsToMap(err), http.StatusBadRequest)
		return
	}

	writeJSON(w, toRepresentationResponse(h.useCase.CleanReference(req.Raw)), http.StatusOK)
}

func (h *Handler) ReviveReferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ReviveResponse{Expired: h.useCase.ReviveReferencesOnStartup(r.Context())}, http.StatusOK)
}

func (h *Handler) IsExpiredReference(w http.ResponseWriter, r *http.Request) {
	params := ExpiredParams{Handle: r.URL.Query().Get("handle")}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, validationErrorsToMap(err), http.StatusBadRequest)
		return
	}

	writeJSON(w, ExpiredResponse{
		Handle:  params.Handle,
		Expired: h.useCase.IsExpiredReference(r.Context(), params.Handle),
	}, http.StatusOK)
}

func (h *Handler) LoadListings(w http.ResponseWriter, r *http.Request) {
	views, err := h.useCase.LoadListings(r.Context())
	if err != nil {
		writeJSONError(w, "failed to load listings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, views, http.StatusOK)
}

func (h *Handler) SaveListings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	var listings []entities.Listing
	if err := json.NewDecoder(r.Body).Decode(&listings); err != nil {
		writeJSONError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.useCase.SaveListings(r.Context(), listings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, validationErrorsToMap(err), http.StatusBadRequest)
			return
		}
		h.log.Error("save listings", zap.Error(err))
		writeJSONError(w, "failed to save listings", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Blob(w http.ResponseWriter, r *http.Request) {
	data, mediaType, ok := h.useCase.Blob(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, "reference not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			writeJSON(w, map[string]string{"status": "unavailable", "error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// readImage writes the error response itself and reports false on failure.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (entities.ImageInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return entities.ImageInput{}, false
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return entities.ImageInput{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return entities.ImageInput{}, false
	}

	// The declared type is what gets validated; sniff only when the client
	// sent none.
	mediaType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(data).String()
	}

	return entities.NewImageInput(data, mediaType, fh.Filename), true
}
