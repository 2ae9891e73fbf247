package models

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/paulexconde/surveyflow/internal/services"
)

type SurveyDTO struct {
	Name        string `db:"name"`
	Description string `db:"description"`
}

func (d *SurveyDTO) ToModel(id int64) any {
	return &services.Survey{ID: id, Name: d.Name, Description: d.Description}
}

// SectionDTO writes a section. Position is the 0-based slot to insert at; a negative
// position appends. Ordering is filled in by the insert hook.
type SectionDTO struct {
	SurveyID    int64  `db:"survey_id"`
	Ordering    int    `db:"ordering"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Position    int    `db:"-"`
}

func (d *SectionDTO) ToModel(id int64) any {
	return &services.Section{
		ID:          id,
		SurveyID:    d.SurveyID,
		Ordering:    d.Ordering,
		Name:        d.Name,
		Description: d.Description,
	}
}

type QuestionDTO struct {
	SurveyID        int64          `db:"survey_id"`
	SectionID       *int64         `db:"section_id"`
	Type            string         `db:"question_type"`
	Label           string         `db:"label"`
	Choices         pq.StringArray `db:"choices"`
	Ordering        int            `db:"ordering"`
	EnableBranching bool           `db:"enable_branching"`
	BranchConfig    types.JSONText `db:"branch_config"`

	question services.Question `db:"-"`
}

func NewQuestionDTO(q services.Question) (*QuestionDTO, error) {
	cfg, err := MarshalBranchConfig(q.BranchConfig)
	if err != nil {
		return nil, err
	}
	return &QuestionDTO{
		SurveyID:        q.SurveyID,
		SectionID:       q.SectionID,
		Type:            q.Type.String(),
		Label:           q.Label,
		Choices:         pq.StringArray(q.Choices),
		Ordering:        q.Ordering,
		EnableBranching: q.EnableBranching,
		BranchConfig:    cfg,
		question:        q,
	}, nil
}

func (d *QuestionDTO) ToModel(id int64) any {
	q := d.question
	q.ID = id
	return &q
}

// MarshalBranchConfig encodes a config for the branch_config jsonb column; an empty config
// is stored as an empty object.
func MarshalBranchConfig(cfg services.BranchConfig) (types.JSONText, error) {
	if len(cfg) == 0 {
		return types.JSONText("{}"), nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode branch config: %w", err)
	}
	return types.JSONText(b), nil
}

type BranchRuleDTO struct {
	SectionID           int64         `db:"section_id"`
	ConditionQuestionID int64         `db:"condition_question_id"`
	Operator            string        `db:"operator"`
	ConditionValue      string        `db:"condition_value"`
	NextSectionID       sql.NullInt64 `db:"next_section_id"`
	Priority            int           `db:"priority"`
}

func NewBranchRuleDTO(r services.BranchRule) *BranchRuleDTO {
	dto := &BranchRuleDTO{
		SectionID:           r.SectionID,
		ConditionQuestionID: r.ConditionQuestionID,
		Operator:            string(r.Operator),
		ConditionValue:      r.ConditionValue,
		Priority:            r.Priority,
	}
	if r.NextSectionID != nil {
		dto.NextSectionID = sql.NullInt64{Int64: *r.NextSectionID, Valid: true}
	}
	return dto
}

func (d *BranchRuleDTO) ToModel(id int64) any {
	rule := BranchRule{
		ID:                  id,
		SectionID:           d.SectionID,
		ConditionQuestionID: d.ConditionQuestionID,
		Operator:            d.Operator,
		ConditionValue:      d.ConditionValue,
		NextSectionID:       d.NextSectionID,
		Priority:            d.Priority,
	}.ToDomain()
	return &rule
}
