package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/paulexconde/surveyflow/internal/services"
)

type Survey struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Section struct {
	ID          int64  `db:"id" json:"id"`
	SurveyID    int64  `db:"survey_id" json:"survey_id"`
	Ordering    int    `db:"ordering" json:"ordering"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

func (s Section) ToDomain() services.Section {
	return services.Section{
		ID:          s.ID,
		SurveyID:    s.SurveyID,
		Ordering:    s.Ordering,
		Name:        s.Name,
		Description: s.Description,
	}
}

type Question struct {
	ID              int64          `db:"id" json:"id"`
	SurveyID        int64          `db:"survey_id" json:"survey_id"`
	SectionID       *int64         `db:"section_id" json:"section_id"`
	Type            string         `db:"question_type" json:"type"`
	Label           string         `db:"label" json:"label"`
	Choices         pq.StringArray `db:"choices" json:"choices"`
	Ordering        int            `db:"ordering" json:"ordering"`
	EnableBranching bool           `db:"enable_branching" json:"enable_branching"`
	// BranchConfig is a jsonb object of normalized choice key to target section id (null ends the survey).
	BranchConfig types.JSONText `db:"branch_config" json:"branch_config"`
}

func (q Question) ToDomain() (services.Question, error) {
	qt, err := services.ParseQuestionType(q.Type)
	if err != nil {
		return services.Question{}, fmt.Errorf("question %d: %w", q.ID, err)
	}

	var cfg services.BranchConfig
	if len(q.BranchConfig) > 0 && string(q.BranchConfig) != "null" {
		if err := json.Unmarshal(q.BranchConfig, &cfg); err != nil {
			return services.Question{}, fmt.Errorf("question %d branch config: %w", q.ID, err)
		}
	}

	return services.Question{
		ID:              q.ID,
		SurveyID:        q.SurveyID,
		SectionID:       q.SectionID,
		Type:            qt,
		Label:           q.Label,
		Choices:         []string(q.Choices),
		Ordering:        q.Ordering,
		EnableBranching: q.EnableBranching,
		BranchConfig:    cfg,
	}, nil
}

type BranchRule struct {
	ID                  int64         `db:"id" json:"id"`
	SectionID           int64         `db:"section_id" json:"section_id"`
	ConditionQuestionID int64         `db:"condition_question_id" json:"condition_question_id"`
	Operator            string        `db:"operator" json:"operator"`
	ConditionValue      string        `db:"condition_value" json:"condition_value"`
	NextSectionID       sql.NullInt64 `db:"next_section_id" json:"next_section_id"`
	Priority            int           `db:"priority" json:"priority"`
}

func (r BranchRule) ToDomain() services.BranchRule {
	rule := services.BranchRule{
		ID:                  r.ID,
		SectionID:           r.SectionID,
		ConditionQuestionID: r.ConditionQuestionID,
		Operator:            services.Operator(r.Operator),
		ConditionValue:      r.ConditionValue,
		Priority:            r.Priority,
	}
	if r.NextSectionID.Valid {
		id := r.NextSectionID.Int64
		rule.NextSectionID = &id
	}
	return rule
}

// Draft is a row of survey_drafts.
type Draft struct {
	ID               int64          `db:"id" json:"id"`
	SurveyID         int64          `db:"survey_id" json:"survey_id"`
	UserID           *int64         `db:"user_id" json:"user_id"`
	SessionKey       sql.NullString `db:"session_key" json:"-"`
	RespondentKey    string         `db:"respondent_key" json:"respondent_key"`
	Data             types.JSONText `db:"data" json:"data"`
	CurrentSectionID *int64         `db:"current_section_id" json:"current_section_id"`
	Transitions      int            `db:"transitions" json:"transitions"`
	ExpiresAt        time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

func (d Draft) ToDomain() (*services.Draft, error) {
	answers := services.Answers{}
	if len(d.Data) > 0 {
		if err := json.Unmarshal(d.Data, &answers); err != nil {
			return nil, fmt.Errorf("draft %d data: %w", d.ID, err)
		}
	}

	who := services.Respondent{UserID: d.UserID}
	if d.SessionKey.Valid {
		who.SessionKey = d.SessionKey.String
	}

	return &services.Draft{
		ID:               d.ID,
		SurveyID:         d.SurveyID,
		Respondent:       who,
		Data:             answers,
		CurrentSectionID: d.CurrentSectionID,
		Transitions:      d.Transitions,
		ExpiresAt:        d.ExpiresAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}
