package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calloway-labs/cvforge/internal/ai"
	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/repository"
	"github.com/google/uuid"
)

// QuestionnaireService manages CV questionnaires and the AI responses
// generated from them.
type QuestionnaireService interface {
	// Create validates and stores a new questionnaire for the user.
	// Returns a field-level validation error via domain.EINVALID.
	Create(ctx context.Context, userID uuid.UUID, params domain.QuestionnaireParams) (*domain.Questionnaire, error)

	// Get retrieves one questionnaire. Another user's questionnaire is
	// indistinguishable from a missing one (domain.ENOTFOUND).
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Questionnaire, error)

	// List returns the user's questionnaires, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Questionnaire, error)

	// Delete removes a questionnaire and its responses.
	// Returns domain.ENOTFOUND if it does not exist or belongs to another user.
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// AttachResume records the storage key of an uploaded resume.
	AttachResume(ctx context.Context, userID, id uuid.UUID, key string) error

	// Improve generates CV advice for a questionnaire and stores it.
	// Provider failures surface as domain.EUPSTREAM; missing credentials or
	// exhausted provider quota as domain.EUNAVAILABLE. The provider is
	// called at most once per Improve call.
	Improve(ctx context.Context, userID, questionnaireID uuid.UUID) (*domain.AIResponse, error)

	// GetResponse retrieves one generated response owned by the user.
	GetResponse(ctx context.Context, userID, responseID uuid.UUID) (*domain.AIResponse, error)

	// ListResponses returns all responses for one questionnaire, newest first.
	ListResponses(ctx context.Context, userID, questionnaireID uuid.UUID) ([]*domain.AIResponse, error)
}

type questionnaireService struct {
	queries  *repository.Queries
	provider ai.Provider
	logger   *slog.Logger
}

// NewQuestionnaireService creates a QuestionnaireService backed by the
// given repository and AI provider.
func NewQuestionnaireService(queries *repository.Queries, provider ai.Provider, logger *slog.Logger) QuestionnaireService {
	return &questionnaireService{
		queries:  queries,
		provider: provider,
		logger:   logger,
	}
}

// Create validates and stores a new questionnaire.
func (s *questionnaireService) Create(ctx context.Context, userID uuid.UUID, params domain.QuestionnaireParams) (*domain.Questionnaire, error) {
	const op = "QuestionnaireService.Create"

	params.Position = strings.TrimSpace(params.Position)
	params.Industry = strings.TrimSpace(params.Industry)
	params.Location = strings.TrimSpace(params.Location)

	if err := params.Validate(); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Validation failed")
	}

	row, err := s.queries.CreateQuestionnaire(ctx, repository.CreateQuestionnaireParams{
		UserID:              userID,
		Position:            params.Position,
		Industry:            params.Industry,
		ExperienceLevel:     params.ExperienceLevel,
		CompanySize:         params.CompanySize,
		Location:            domain.ToNullString(params.Location),
		ApplicationTimeline: params.ApplicationTimeline,
		JobDescription:      domain.ToNullString(params.JobDescription),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create questionnaire")
	}

	s.logger.Info("questionnaire created", "questionnaire_id", row.ID, "user_id", userID)

	return repoQuestionnaireToDomain(row), nil
}

// Get retrieves one questionnaire, scoped to the owning user.
func (s *questionnaireService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Questionnaire, error) {
	const op = "QuestionnaireService.Get"

	row, err := s.getOwned(ctx, op, userID, id)
	if err != nil {
		return nil, err
	}
	return repoQuestionnaireToDomain(row), nil
}

// List returns the user's questionnaires, newest first.
func (s *questionnaireService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Questionnaire, error) {
	const op = "QuestionnaireService.List"

	rows, err := s.queries.ListQuestionnairesByUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list questionnaires")
	}

	items := make([]*domain.Questionnaire, 0, len(rows))
	for _, row := range rows {
		items = append(items, repoQuestionnaireToDomain(row))
	}
	return items, nil
}

// Delete removes a questionnaire. The delete is scoped to the owning user
// in SQL; zero rows affected reads as not found.
func (s *questionnaireService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const op = "QuestionnaireService.Delete"

	affected, err := s.queries.DeleteQuestionnaire(ctx, repository.DeleteQuestionnaireParams{
		ID:     id,
		UserID: userID,
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to delete questionnaire")
	}
	if affected == 0 {
		return domain.NotFound(op, "questionnaire", id.String())
	}

	s.logger.Info("questionnaire deleted", "questionnaire_id", id, "user_id", userID)
	return nil
}

// AttachResume records the storage key of an uploaded resume document.
func (s *questionnaireService) AttachResume(ctx context.Context, userID, id uuid.UUID, key string) error {
	const op = "QuestionnaireService.AttachResume"

	if _, err := s.getOwned(ctx, op, userID, id); err != nil {
		return err
	}

	err := s.queries.UpdateQuestionnaireResume(ctx, repository.UpdateQuestionnaireResumeParams{
		ID:        id,
		ResumeKey: domain.ToNullString(key),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to attach resume")
	}

	s.logger.Info("resume attached", "questionnaire_id", id, "user_id", userID)
	return nil
}

// Improve generates CV advice for a questionnaire.
//
// The caller is expected to have passed quota checks already; this method
// spends provider budget, so it must not be reachable for throttled
// requests.
func (s *questionnaireService) Improve(ctx context.Context, userID, questionnaireID uuid.UUID) (*domain.AIResponse, error) {
	const op = "QuestionnaireService.Improve"

	row, err := s.getOwned(ctx, op, userID, questionnaireID)
	if err != nil {
		return nil, err
	}
	q := repoQuestionnaireToDomain(row)

	result, err := s.provider.Generate(ctx, ai.GenerateParams{
		Prompt: buildImprovementPrompt(q),
	})
	if err != nil {
		metrics.AICallFailed()
		s.logger.Error("ai generation failed",
			"user_id", userID,
			"questionnaire_id", questionnaireID,
			"error", err,
		)
		return nil, mapProviderError(err, op)
	}
	metrics.AICallSucceeded(result.Usage.InputTokens, result.Usage.OutputTokens)

	respRow, err := s.queries.CreateAIResponse(ctx, repository.CreateAIResponseParams{
		QuestionnaireID: questionnaireID,
		ResponseText:    result.Text,
		Model:           domain.ToNullString(result.Usage.Model),
		InputTokens:     sql.NullInt32{Int32: int32(result.Usage.InputTokens), Valid: true},
		OutputTokens:    sql.NullInt32{Int32: int32(result.Usage.OutputTokens), Valid: true},
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to store AI response")
	}

	s.logger.Info("ai response generated",
		"questionnaire_id", questionnaireID,
		"user_id", userID,
		"model", result.Usage.Model,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
	)

	return repoAIResponseToDomain(respRow), nil
}

// GetResponse retrieves one generated response, scoped to the owning user.
func (s *questionnaireService) GetResponse(ctx context.Context, userID, responseID uuid.UUID) (*domain.AIResponse, error) {
	const op = "QuestionnaireService.GetResponse"

	row, err := s.queries.GetAIResponseByID(ctx, repository.GetAIResponseByIDParams{
		ID:     responseID,
		UserID: userID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "ai response", responseID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve AI response")
	}

	return repoAIResponseToDomain(row), nil
}

// ListResponses returns all responses for one questionnaire, newest first.
func (s *questionnaireService) ListResponses(ctx context.Context, userID, questionnaireID uuid.UUID) ([]*domain.AIResponse, error) {
	const op = "QuestionnaireService.ListResponses"

	if _, err := s.getOwned(ctx, op, userID, questionnaireID); err != nil {
		return nil, err
	}

	rows, err := s.queries.ListAIResponsesByQuestionnaire(ctx, repository.ListAIResponsesByQuestionnaireParams{
		QuestionnaireID: questionnaireID,
		UserID:          userID,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list AI responses")
	}

	items := make([]*domain.AIResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, repoAIResponseToDomain(row))
	}
	return items, nil
}

// getOwned loads a questionnaire and verifies ownership. Another user's
// questionnaire reads as not found so IDs cannot be probed.
func (s *questionnaireService) getOwned(ctx context.Context, op string, userID, id uuid.UUID) (repository.Questionnaire, error) {
	row, err := s.queries.GetQuestionnaireByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Questionnaire{}, domain.NotFound(op, "questionnaire", id.String())
		}
		return repository.Questionnaire{}, domain.Internal(err, op, "Failed to retrieve questionnaire")
	}
	if row.UserID != userID {
		return repository.Questionnaire{}, domain.NotFound(op, "questionnaire", id.String())
	}
	return row, nil
}

// mapProviderError translates provider errors into domain errors. Every
// failure category carries its own message, so a caller can tell a
// credential problem from an outage from an empty generation.
//
// Bad credentials and exhausted provider quota are our operational
// problems, so they read as service unavailability (503). Everything else
// from the provider is an upstream failure (502).
func mapProviderError(err error, op string) error {
	switch {
	case errors.Is(err, ai.EAIUnauthorized):
		return domain.Unavailable(op, "AI service is not configured correctly. Please contact support.")
	case errors.Is(err, ai.EAIQuota):
		return domain.Unavailable(op, "AI service usage allowance is exhausted. Please try again later.")
	case errors.Is(err, ai.EAIRateLimit):
		return domain.Upstream(err, op, "AI service is receiving too many requests. Please retry in a moment.")
	case errors.Is(err, ai.EAITimeout):
		return domain.Upstream(err, op, "AI service timed out generating a response. Please try again.")
	case errors.Is(err, ai.EAIUnavailable):
		return domain.Upstream(err, op, "AI service could not be reached. Please try again later.")
	case errors.Is(err, ai.EAIEmptyResponse):
		return domain.Upstream(err, op, "AI service returned an empty response. Please try again.")
	default:
		return domain.Upstream(err, op, "AI service failed to generate a response")
	}
}

// buildImprovementPrompt renders a questionnaire as the user prompt for
// the AI provider.
func buildImprovementPrompt(q *domain.Questionnaire) string {
	var b strings.Builder

	fmt.Fprintf(&b, "I am applying for a %s position in the %s industry.\n", q.Position, q.Industry)
	fmt.Fprintf(&b, "Years of experience: %s\n", q.ExperienceLevel)
	fmt.Fprintf(&b, "Target company size: %s\n", q.CompanySize)
	if q.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", q.Location)
	}
	fmt.Fprintf(&b, "Application timeline: %s\n", q.ApplicationTimeline)

	if q.JobDescription != "" {
		b.WriteString("\nJob description:\n")
		b.WriteString(q.JobDescription)
		b.WriteString("\n")
	}

	b.WriteString("\nPlease improve my CV for this application.")

	return b.String()
}

func repoQuestionnaireToDomain(q repository.Questionnaire) *domain.Questionnaire {
	item := &domain.Questionnaire{
		ID:                  q.ID,
		UserID:              q.UserID,
		Position:            q.Position,
		Industry:            q.Industry,
		ExperienceLevel:     q.ExperienceLevel,
		CompanySize:         q.CompanySize,
		Location:            domain.NullStringValue(q.Location),
		ApplicationTimeline: q.ApplicationTimeline,
		JobDescription:      domain.NullStringValue(q.JobDescription),
		ResumeKey:           domain.NullStringValue(q.ResumeKey),
	}
	if q.SubmittedAt.Valid {
		item.SubmittedAt = q.SubmittedAt.Time
	}
	return item
}

func repoAIResponseToDomain(r repository.AIResponse) *domain.AIResponse {
	item := &domain.AIResponse{
		ID:              r.ID,
		QuestionnaireID: r.QuestionnaireID,
		ResponseText:    r.ResponseText,
	}
	if r.CreatedAt.Valid {
		item.CreatedAt = r.CreatedAt.Time
	}
	return item
}

var _ QuestionnaireService = (*questionnaireService)(nil)
