// Package domain contains core business types and interfaces.
//
// This file defines the CV questionnaire and the AI response produced for it.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Choice sets for questionnaire fields. The API rejects anything outside
// these sets before any quota or provider work happens.
var (
	ExperienceLevels     = []string{"0-2", "3-5", "6+"}
	CompanySizes         = []string{"startup", "small", "medium", "enterprise"}
	ApplicationTimelines = []string{"immediate", "1-3 months", "3-6 months", "6+ months"}
)

const (
	// MaxFieldLen bounds the short free-text fields (position, industry, location).
	MaxFieldLen = 255

	// MaxJobDescriptionLen bounds the pasted job description.
	MaxJobDescriptionLen = 10000

	// MinJobDescriptionLen rejects descriptions too short to be useful.
	MinJobDescriptionLen = 20
)

// Questionnaire captures the inputs a user provides about the role they
// are applying for. It is the prompt material for AI CV advice.
type Questionnaire struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Position            string
	Industry            string
	ExperienceLevel     string
	CompanySize         string
	Location            string // optional
	ApplicationTimeline string
	JobDescription      string // optional
	ResumeKey           string // storage key of the uploaded resume, optional
	SubmittedAt         time.Time
}

// AIResponse is a piece of generated CV advice for one questionnaire.
// A questionnaire can accumulate several responses over time.
type AIResponse struct {
	ID              uuid.UUID
	QuestionnaireID uuid.UUID
	ResponseText    string
	CreatedAt       time.Time
}

// QuestionnaireParams contains the raw inputs for creating a questionnaire.
type QuestionnaireParams struct {
	Position            string
	Industry            string
	ExperienceLevel     string
	CompanySize         string
	Location            string
	ApplicationTimeline string
	JobDescription      string
}

// Validate checks all questionnaire fields and returns a field-level
// ValidationError naming every violated constraint, or nil.
func (p QuestionnaireParams) Validate() error {
	const op = "questionnaire.validate"

	var err error

	if strings.TrimSpace(p.Position) == "" {
		err = addField(err, op, "position", "position is required")
	} else if len(p.Position) > MaxFieldLen {
		err = addField(err, op, "position", "position must be at most 255 characters")
	}

	if strings.TrimSpace(p.Industry) == "" {
		err = addField(err, op, "industry", "industry is required")
	} else if len(p.Industry) > MaxFieldLen {
		err = addField(err, op, "industry", "industry must be at most 255 characters")
	}

	if !oneOf(p.ExperienceLevel, ExperienceLevels) {
		err = addField(err, op, "experience_level", "experience_level must be one of: 0-2, 3-5, 6+")
	}

	if !oneOf(p.CompanySize, CompanySizes) {
		err = addField(err, op, "company_size", "company_size must be one of: startup, small, medium, enterprise")
	}

	if p.Location != "" && len(p.Location) > MaxFieldLen {
		err = addField(err, op, "location", "location must be at most 255 characters")
	}

	if !oneOf(p.ApplicationTimeline, ApplicationTimelines) {
		err = addField(err, op, "application_timeline", "application_timeline must be one of: immediate, 1-3 months, 3-6 months, 6+ months")
	}

	if p.JobDescription != "" {
		if len(p.JobDescription) < MinJobDescriptionLen {
			err = addField(err, op, "job_description", "job_description is too short (minimum 20 characters)")
		} else if len(p.JobDescription) > MaxJobDescriptionLen {
			err = addField(err, op, "job_description", "job_description is too long (maximum 10000 characters)")
		}
	}

	return err
}

func addField(err error, op, field, message string) error {
	if err == nil {
		return NewValidationError(op, field, message)
	}
	return AddFieldError(err, field, message)
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
