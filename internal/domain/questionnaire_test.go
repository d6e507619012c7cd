package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() QuestionnaireParams {
	return QuestionnaireParams{
		Position:            "Backend Engineer",
		Industry:            "Fintech",
		ExperienceLevel:     "3-5",
		CompanySize:         "startup",
		ApplicationTimeline: "1-3 months",
	}
}

func TestQuestionnaireParamsValidate_Valid(t *testing.T) {
	assert.NoError(t, validParams().Validate())

	withOptionals := validParams()
	withOptionals.Location = "Berlin"
	withOptionals.JobDescription = strings.Repeat("responsibilities ", 5)
	assert.NoError(t, withOptionals.Validate())
}

func TestQuestionnaireParamsValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QuestionnaireParams)
		field  string
	}{
		{"missing position", func(p *QuestionnaireParams) { p.Position = "  " }, "position"},
		{"position too long", func(p *QuestionnaireParams) { p.Position = strings.Repeat("x", 256) }, "position"},
		{"missing industry", func(p *QuestionnaireParams) { p.Industry = "" }, "industry"},
		{"bad experience level", func(p *QuestionnaireParams) { p.ExperienceLevel = "veteran" }, "experience_level"},
		{"bad company size", func(p *QuestionnaireParams) { p.CompanySize = "huge" }, "company_size"},
		{"location too long", func(p *QuestionnaireParams) { p.Location = strings.Repeat("x", 256) }, "location"},
		{"bad timeline", func(p *QuestionnaireParams) { p.ApplicationTimeline = "soon" }, "application_timeline"},
		{"job description too short", func(p *QuestionnaireParams) { p.JobDescription = "short" }, "job_description"},
		{"job description too long", func(p *QuestionnaireParams) { p.JobDescription = strings.Repeat("x", 10001) }, "job_description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestQuestionnaireParamsValidate_CollectsAllErrors(t *testing.T) {
	err := QuestionnaireParams{}.Validate()
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))

	for _, field := range []string{"position", "industry", "experience_level", "company_size", "application_timeline"} {
		assert.Contains(t, ve.Fields, field)
	}
	// Optional fields are not flagged when empty.
	assert.NotContains(t, ve.Fields, "location")
	assert.NotContains(t, ve.Fields, "job_description")
}
