package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const createQuestionnaire = `
INSERT INTO questionnaires (
    user_id, "position", industry, experience_level, company_size,
    location, application_timeline, job_description
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, "position", industry, experience_level, company_size,
          location, application_timeline, job_description, resume_key, submitted_at
`

type CreateQuestionnaireParams struct {
	UserID              uuid.UUID
	Position            string
	Industry            string
	ExperienceLevel     string
	CompanySize         string
	Location            sql.NullString
	ApplicationTimeline string
	JobDescription      sql.NullString
}

func (q *Queries) CreateQuestionnaire(ctx context.Context, arg CreateQuestionnaireParams) (Questionnaire, error) {
	row := q.db.QueryRowContext(ctx, createQuestionnaire,
		arg.UserID, arg.Position, arg.Industry, arg.ExperienceLevel,
		arg.CompanySize, arg.Location, arg.ApplicationTimeline, arg.JobDescription)
	return scanQuestionnaire(row)
}

const getQuestionnaireByID = `
SELECT id, user_id, "position", industry, experience_level, company_size,
       location, application_timeline, job_description, resume_key, submitted_at
FROM questionnaires
WHERE id = $1
`

func (q *Queries) GetQuestionnaireByID(ctx context.Context, id uuid.UUID) (Questionnaire, error) {
	return scanQuestionnaire(q.db.QueryRowContext(ctx, getQuestionnaireByID, id))
}

const listQuestionnairesByUser = `
SELECT id, user_id, "position", industry, experience_level, company_size,
       location, application_timeline, job_description, resume_key, submitted_at
FROM questionnaires
WHERE user_id = $1
ORDER BY submitted_at DESC
`

func (q *Queries) ListQuestionnairesByUser(ctx context.Context, userID uuid.UUID) ([]Questionnaire, error) {
	rows, err := q.db.QueryContext(ctx, listQuestionnairesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Questionnaire
	for rows.Next() {
		item, err := scanQuestionnaire(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const updateQuestionnaireResume = `
UPDATE questionnaires
SET resume_key = $2
WHERE id = $1
`

type UpdateQuestionnaireResumeParams struct {
	ID        uuid.UUID
	ResumeKey sql.NullString
}

func (q *Queries) UpdateQuestionnaireResume(ctx context.Context, arg UpdateQuestionnaireResumeParams) error {
	_, err := q.db.ExecContext(ctx, updateQuestionnaireResume, arg.ID, arg.ResumeKey)
	return err
}

const deleteQuestionnaire = `
DELETE FROM questionnaires
WHERE id = $1 AND user_id = $2
`

// DeleteQuestionnaireParams scopes the delete to the owning user; deleting
// another user's questionnaire silently affects zero rows.
type DeleteQuestionnaireParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeleteQuestionnaire(ctx context.Context, arg DeleteQuestionnaireParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteQuestionnaire, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createAIResponse = `
INSERT INTO ai_responses (questionnaire_id, response_text, model, input_tokens, output_tokens)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, questionnaire_id, response_text, model, input_tokens, output_tokens, created_at
`

type CreateAIResponseParams struct {
	QuestionnaireID uuid.UUID
	ResponseText    string
	Model           sql.NullString
	InputTokens     sql.NullInt32
	OutputTokens    sql.NullInt32
}

func (q *Queries) CreateAIResponse(ctx context.Context, arg CreateAIResponseParams) (AIResponse, error) {
	row := q.db.QueryRowContext(ctx, createAIResponse,
		arg.QuestionnaireID, arg.ResponseText, arg.Model, arg.InputTokens, arg.OutputTokens)
	return scanAIResponse(row)
}

const getAIResponseByID = `
SELECT r.id, r.questionnaire_id, r.response_text, r.model,
       r.input_tokens, r.output_tokens, r.created_at
FROM ai_responses r
JOIN questionnaires q ON q.id = r.questionnaire_id
WHERE r.id = $1 AND q.user_id = $2
`

// GetAIResponseByIDParams scopes the lookup to the owning user.
type GetAIResponseByIDParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetAIResponseByID(ctx context.Context, arg GetAIResponseByIDParams) (AIResponse, error) {
	return scanAIResponse(q.db.QueryRowContext(ctx, getAIResponseByID, arg.ID, arg.UserID))
}

const listAIResponsesByQuestionnaire = `
SELECT r.id, r.questionnaire_id, r.response_text, r.model,
       r.input_tokens, r.output_tokens, r.created_at
FROM ai_responses r
JOIN questionnaires q ON q.id = r.questionnaire_id
WHERE r.questionnaire_id = $1 AND q.user_id = $2
ORDER BY r.created_at DESC
`

type ListAIResponsesByQuestionnaireParams struct {
	QuestionnaireID uuid.UUID
	UserID          uuid.UUID
}

func (q *Queries) ListAIResponsesByQuestionnaire(ctx context.Context, arg ListAIResponsesByQuestionnaireParams) ([]AIResponse, error) {
	rows, err := q.db.QueryContext(ctx, listAIResponsesByQuestionnaire, arg.QuestionnaireID, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AIResponse
	for rows.Next() {
		item, err := scanAIResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const listAIResponsesByUser = `
SELECT r.id, r.questionnaire_id, r.response_text, r.model,
       r.input_tokens, r.output_tokens, r.created_at
FROM ai_responses r
JOIN questionnaires q ON q.id = r.questionnaire_id
WHERE q.user_id = $1
ORDER BY r.created_at DESC
`

func (q *Queries) ListAIResponsesByUser(ctx context.Context, userID uuid.UUID) ([]AIResponse, error) {
	rows, err := q.db.QueryContext(ctx, listAIResponsesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AIResponse
	for rows.Next() {
		item, err := scanAIResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanQuestionnaire(row rowScanner) (Questionnaire, error) {
	var item Questionnaire
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Position,
		&item.Industry,
		&item.ExperienceLevel,
		&item.CompanySize,
		&item.Location,
		&item.ApplicationTimeline,
		&item.JobDescription,
		&item.ResumeKey,
		&item.SubmittedAt,
	)
	return item, err
}

func scanAIResponse(row rowScanner) (AIResponse, error) {
	var item AIResponse
	err := row.Scan(
		&item.ID,
		&item.QuestionnaireID,
		&item.ResponseText,
		&item.Model,
		&item.InputTokens,
		&item.OutputTokens,
		&item.CreatedAt,
	)
	return item, err
}
