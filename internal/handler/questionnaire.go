package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/service"
	"github.com/google/uuid"
)

// QuestionnaireHandler handles questionnaire CRUD and AI improvement.
type QuestionnaireHandler struct {
	questionnaires service.QuestionnaireService
	logger         *slog.Logger
}

// NewQuestionnaireHandler creates a new QuestionnaireHandler.
func NewQuestionnaireHandler(questionnaires service.QuestionnaireService, logger *slog.Logger) *QuestionnaireHandler {
	return &QuestionnaireHandler{
		questionnaires: questionnaires,
		logger:         logger,
	}
}

// RegisterRoutes registers questionnaire routes. All routes require auth;
// the caller supplies pre-built middleware stacks per throttle scope so the
// create and improve paths burn the right quota.
func (h *QuestionnaireHandler) RegisterRoutes(mux *http.ServeMux, authed, questionnaireScoped, aiScoped func(http.Handler) http.Handler) {
	mux.Handle("POST /api/questionnaires", questionnaireScoped(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/questionnaires", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/questionnaires/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/questionnaires/{id}", authed(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/questionnaires/{id}/improve", aiScoped(http.HandlerFunc(h.Improve)))
	mux.Handle("GET /api/questionnaires/{id}/responses", authed(http.HandlerFunc(h.ListResponses)))
}

type questionnaireResponse struct {
	ID                  string `json:"id"`
	Position            string `json:"position"`
	Industry            string `json:"industry"`
	ExperienceLevel     string `json:"experience_level"`
	CompanySize         string `json:"company_size"`
	Location            string `json:"location,omitempty"`
	ApplicationTimeline string `json:"application_timeline"`
	JobDescription      string `json:"job_description,omitempty"`
	ResumeKey           string `json:"resume_key,omitempty"`
	SubmittedAt         string `json:"submitted_at"`
}

func toQuestionnaireResponse(q *domain.Questionnaire) questionnaireResponse {
	return questionnaireResponse{
		ID:                  q.ID.String(),
		Position:            q.Position,
		Industry:            q.Industry,
		ExperienceLevel:     q.ExperienceLevel,
		CompanySize:         q.CompanySize,
		Location:            q.Location,
		ApplicationTimeline: q.ApplicationTimeline,
		JobDescription:      q.JobDescription,
		ResumeKey:           q.ResumeKey,
		SubmittedAt:         q.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

type aiResponseBody struct {
	ID              string `json:"id"`
	QuestionnaireID string `json:"questionnaire_id"`
	ResponseText    string `json:"response_text"`
	CreatedAt       string `json:"created_at"`
}

func toAIResponseBody(a *domain.AIResponse) aiResponseBody {
	return aiResponseBody{
		ID:              a.ID.String(),
		QuestionnaireID: a.QuestionnaireID.String(),
		ResponseText:    a.ResponseText,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create submits a new questionnaire. Validation failures are rejected
// before any quota was spent on provider work.
func (h *QuestionnaireHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Position            string `json:"position"`
		Industry            string `json:"industry"`
		ExperienceLevel     string `json:"experience_level"`
		CompanySize         string `json:"company_size"`
		Location            string `json:"location"`
		ApplicationTimeline string `json:"application_timeline"`
		JobDescription      string `json:"job_description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	q, err := h.questionnaires.Create(r.Context(), user.ID, domain.QuestionnaireParams{
		Position:            req.Position,
		Industry:            req.Industry,
		ExperienceLevel:     req.ExperienceLevel,
		CompanySize:         req.CompanySize,
		Location:            req.Location,
		ApplicationTimeline: req.ApplicationTimeline,
		JobDescription:      req.JobDescription,
	})
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.QuestionnairesCreated.Inc()

	respondJSON(w, h.logger, http.StatusCreated, toQuestionnaireResponse(q))
}

// List returns the caller's questionnaires, newest first.
func (h *QuestionnaireHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	list, err := h.questionnaires.List(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := make([]questionnaireResponse, 0, len(list))
	for _, q := range list {
		items = append(items, toQuestionnaireResponse(q))
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"questionnaires": items,
	})
}

// Get returns one questionnaire owned by the caller.
func (h *QuestionnaireHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	q, err := h.questionnaires.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, toQuestionnaireResponse(q))
}

// Delete removes one questionnaire owned by the caller.
func (h *QuestionnaireHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.questionnaires.Delete(r.Context(), user.ID, id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Improve generates CV advice for a questionnaire. The route's throttle
// middleware has already verified the ai_responses budget, so the provider
// is never reached by a caller who is out of it; the quota charge lands
// once this handler responds with anything other than a validation error.
func (h *QuestionnaireHandler) Improve(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp, err := h.questionnaires.Improve(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, toAIResponseBody(resp))
}

// ListResponses returns all generated advice for one questionnaire.
func (h *QuestionnaireHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	list, err := h.questionnaires.ListResponses(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := make([]aiResponseBody, 0, len(list))
	for _, a := range list {
		items = append(items, toAIResponseBody(a))
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"responses": items,
	})
}

// pathID parses the {id} path segment as a UUID.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Errorf(domain.EINVALID, "", "Invalid resource ID")
	}
	return id, nil
}
