package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User mirrors the users table.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	Name               string
	Plan               string
	StripeCustomerID   sql.NullString
	SubscriptionID     sql.NullString
	SubscriptionStatus sql.NullString
	CreatedAt          sql.NullTime
	UpdatedAt          sql.NullTime
}

// Session mirrors the sessions table.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt sql.NullTime
}

// Questionnaire mirrors the questionnaires table.
type Questionnaire struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Position            string
	Industry            string
	ExperienceLevel     string
	CompanySize         string
	Location            sql.NullString
	ApplicationTimeline string
	JobDescription      sql.NullString
	ResumeKey           sql.NullString
	SubmittedAt         sql.NullTime
}

// AIResponse mirrors the ai_responses table. Token counts are retained for
// cost monitoring even though the API only exposes the text.
type AIResponse struct {
	ID              uuid.UUID
	QuestionnaireID uuid.UUID
	ResponseText    string
	Model           sql.NullString
	InputTokens     sql.NullInt32
	OutputTokens    sql.NullInt32
	CreatedAt       sql.NullTime
}
