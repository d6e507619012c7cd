package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/service"
	"github.com/calloway-labs/cvforge/internal/storage"
	"github.com/google/uuid"
)

// MaxResumeSize is the upload cap for resume documents (10 MB).
const MaxResumeSize = 10 << 20

// UploadHandler handles resume document uploads.
type UploadHandler struct {
	store          storage.Storage
	questionnaires service.QuestionnaireService
	logger         *slog.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(store storage.Storage, questionnaires service.QuestionnaireService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		store:          store,
		questionnaires: questionnaires,
		logger:         logger,
	}
}

// RegisterRoutes registers upload routes. Uploads sit behind the uploads
// throttle scope; downloads only need authentication.
func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux, authed, uploadScoped func(http.Handler) http.Handler) {
	mux.Handle("POST /api/uploads/resume", uploadScoped(http.HandlerFunc(h.UploadResume)))
	mux.Handle("GET /api/uploads/resume/{key...}", authed(http.HandlerFunc(h.DownloadResume)))
}

// UploadResume stores a resume document and attaches it to one of the
// caller's questionnaires.
//
// Multipart form fields:
//   - file: the resume (PDF or Word, up to MaxResumeSize)
//   - questionnaire_id: UUID of the questionnaire to attach it to
func (h *UploadHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxResumeSize+4096)
	if err := r.ParseMultipartForm(MaxResumeSize); err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Errorf(domain.ETOOLARGE, "", "Resume must be under 10 MB"))
		return
	}

	questionnaireID, err := uuid.Parse(r.FormValue("questionnaire_id"))
	if err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "questionnaire_id is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "file is required"))
		return
	}
	defer file.Close()

	contentType := storage.DetectContentType(
		header.Header.Get("Content-Type"), header.Filename, nil)
	if !storage.IsAllowedResumeType(contentType) {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "Resume must be a PDF or Word document"))
		return
	}

	key := storage.ResumeKey(user.ID, header.Filename)
	err = h.store.Put(r.Context(), key, file, storage.PutOptions{
		ContentType: contentType,
		MaxSize:     MaxResumeSize,
	})
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			ErrorResponse(w, r, h.logger,
				domain.Errorf(domain.ETOOLARGE, "", "Resume must be under 10 MB"))
			return
		}
		h.logger.Error("resume upload failed", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	// Attach after the object is stored. If attaching fails the orphaned
	// object is removed so storage never outlives the reference.
	if err := h.questionnaires.AttachResume(r.Context(), user.ID, questionnaireID, key); err != nil {
		if delErr := h.store.Delete(r.Context(), key); delErr != nil {
			h.logger.Warn("failed to remove orphaned resume", "key", key, "error", delErr)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.ResumesUploaded.Inc()
	h.logger.Info("resume uploaded",
		"user_id", user.ID,
		"questionnaire_id", questionnaireID,
		"key", key,
		"content_type", contentType,
		"size", header.Size,
	)

	body := map[string]string{
		"resume_key":   key,
		"content_type": contentType,
	}
	// Best effort: the key alone is enough to fetch the document later.
	if url, err := h.store.URL(r.Context(), key, time.Hour); err != nil {
		h.logger.Warn("failed to generate resume URL", "key", key, "error", err)
	} else {
		body["resume_url"] = url
	}

	respondJSON(w, h.logger, http.StatusCreated, body)
}

// DownloadResume streams a previously uploaded resume document back to its
// owner. Keys are namespaced per user, so a caller can only fetch documents
// under their own prefix; anything else reads as not found.
func (h *UploadHandler) DownloadResume(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	key := r.PathValue("key")
	if !strings.HasPrefix(key, "resumes/"+user.ID.String()+"/") {
		ErrorResponse(w, r, h.logger,
			domain.Errorf(domain.ENOTFOUND, "", "Resume not found"))
		return
	}

	obj, info, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			ErrorResponse(w, r, h.logger,
				domain.Errorf(domain.ENOTFOUND, "", "Resume not found"))
			return
		}
		h.logger.Error("resume download failed", "error", err, "user_id", user.ID, "key", key)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", info.ContentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Content-Disposition", "attachment")
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn("resume stream interrupted", "key", key, "error", err)
	}
}
