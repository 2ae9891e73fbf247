package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/models"
	"github.com/paulexconde/surveyflow/internal/pkg/store"
	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

const (
	surveyColumns   = "id, name, description, created_at"
	sectionColumns  = "id, survey_id, ordering, name, description"
	questionColumns = "id, survey_id, section_id, question_type, label, choices, ordering, enable_branching, branch_config"
	ruleColumns     = "r.id, r.section_id, r.condition_question_id, r.operator, r.condition_value, r.next_section_id, r.priority"
)

// SurveyRepository loads surveys with their sections, questions and branch rules, and keeps
// section ordering and branching configuration consistent on writes.
type SurveyRepository struct {
	surveys   store.Datastorer[models.Survey]
	sections  store.Datastorer[models.Section]
	questions store.Datastorer[models.Question]
	rules     store.Datastorer[models.BranchRule]
	log       *logger.Logger
}

func NewSurveyRepository(db *sqlx.DB, log *logger.Logger) *SurveyRepository {
	r := &SurveyRepository{
		surveys:   store.NewDataStore[models.Survey](db, "surveys"),
		sections:  store.NewDataStore[models.Section](db, "sections"),
		questions: store.NewDataStore[models.Question](db, "questions"),
		rules:     store.NewDataStore[models.BranchRule](db, "branch_rules"),
		log:       log.With("repository", "SurveyRepository"),
	}

	r.sections.SetHooks(store.Hooks{
		PreSave: []func(ctx context.Context, tx *sqlx.Tx, data store.DTO, isNew bool) error{r.placeSection},
	})

	return r
}

func (r *SurveyRepository) CreateSurvey(ctx context.Context, name, description string) (*services.Survey, error) {
	model, err := r.surveys.Create(ctx, &models.SurveyDTO{Name: name, Description: description})
	if err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	return model.(*services.Survey), nil
}

// DeleteSurvey removes a survey with its sections, questions, rules and drafts.
func (r *SurveyRepository) DeleteSurvey(ctx context.Context, id int64) error {
	if err := r.surveys.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete survey %d: %w", id, err)
	}
	return nil
}

// LoadSurvey returns the survey with every section, question and branch rule.
func (r *SurveyRepository) LoadSurvey(ctx context.Context, id int64) (*services.Survey, error) {
	row, err := r.surveys.Get(ctx, "SELECT "+surveyColumns+" FROM surveys WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("load survey %d: %w", id, err)
	}

	sections, err := r.sections.Select(ctx,
		"SELECT "+sectionColumns+" FROM sections WHERE survey_id = $1 ORDER BY ordering", id)
	if err != nil {
		return nil, fmt.Errorf("load sections of survey %d: %w", id, err)
	}

	questions, err := r.questions.Select(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE survey_id = $1 ORDER BY ordering, id", id)
	if err != nil {
		return nil, fmt.Errorf("load questions of survey %d: %w", id, err)
	}

	rules, err := r.rules.Select(ctx, `
		SELECT `+ruleColumns+`
		FROM branch_rules r
		JOIN sections s ON s.id = r.section_id
		WHERE s.survey_id = $1
		ORDER BY r.section_id, r.priority, r.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load branch rules of survey %d: %w", id, err)
	}

	survey := &services.Survey{ID: row.ID, Name: row.Name, Description: row.Description}

	byID := make(map[int64]int, len(sections))
	for i, s := range sections {
		survey.Sections = append(survey.Sections, s.ToDomain())
		byID[s.ID] = i
	}
	for _, rule := range rules {
		i := byID[rule.SectionID]
		survey.Sections[i].Rules = append(survey.Sections[i].Rules, rule.ToDomain())
	}
	for _, q := range questions {
		question, err := q.ToDomain()
		if err != nil {
			return nil, err
		}
		survey.Questions = append(survey.Questions, question)
	}

	if err := survey.Validate(); err != nil {
		return nil, fmt.Errorf("survey %d is inconsistent: %w", id, err)
	}
	return survey, nil
}

// InsertSection adds a section at the 0-based position among the survey's sections, shifting
// later sections down. A negative position appends.
func (r *SurveyRepository) InsertSection(ctx context.Context, surveyID int64, position int, name, description string) (*services.Section, error) {
	model, err := r.sections.Create(ctx, &models.SectionDTO{
		SurveyID:    surveyID,
		Name:        name,
		Description: description,
		Position:    position,
	})
	if err != nil {
		return nil, fmt.Errorf("insert section: %w", err)
	}
	return model.(*services.Section), nil
}

// placeSection assigns the ordering of a new section and moves the sections after it, inside
// the insert transaction.
func (r *SurveyRepository) placeSection(ctx context.Context, tx *sqlx.Tx, data store.DTO, isNew bool) error {
	dto, ok := data.(*models.SectionDTO)
	if !ok || !isNew {
		return nil
	}

	sections, err := lockSections(ctx, tx, dto.SurveyID)
	if err != nil {
		return err
	}

	if dto.Position < 0 {
		dto.Ordering = services.NextOrdering(sections)
		return nil
	}

	ordering, moves, err := services.PlanInsert(sections, dto.Position)
	if err != nil {
		return err
	}
	if err := applyOrdering(ctx, tx, dto.SurveyID, moves); err != nil {
		return err
	}
	dto.Ordering = ordering
	return nil
}

// ReorderSections renumbers the survey's sections to follow ids.
func (r *SurveyRepository) ReorderSections(ctx context.Context, surveyID int64, ids []int64) error {
	return r.sections.InTx(ctx, func(tx *sqlx.Tx) error {
		sections, err := lockSections(ctx, tx, surveyID)
		if err != nil {
			return err
		}

		moves, err := services.PlanReorder(sections, ids)
		if err != nil {
			return err
		}
		return applyOrdering(ctx, tx, surveyID, moves)
	})
}

// DeleteSection removes a section. Its questions become unsectioned and its rules, along with
// rules targeting it, are removed.
func (r *SurveyRepository) DeleteSection(ctx context.Context, id int64) error {
	if err := r.sections.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete section %d: %w", id, err)
	}
	return nil
}

// lockSections locks the survey row so concurrent ordering changes serialize, then returns
// its sections.
func lockSections(ctx context.Context, tx *sqlx.Tx, surveyID int64) ([]services.Section, error) {
	var locked int64
	if err := tx.GetContext(ctx, &locked, "SELECT id FROM surveys WHERE id = $1 FOR UPDATE", surveyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("survey %d: %w", surveyID, fault.ErrNotFound)
		}
		return nil, err
	}

	var rows []models.Section
	if err := tx.SelectContext(ctx, &rows,
		"SELECT "+sectionColumns+" FROM sections WHERE survey_id = $1 ORDER BY ordering", surveyID); err != nil {
		return nil, err
	}

	sections := make([]services.Section, len(rows))
	for i, row := range rows {
		sections[i] = row.ToDomain()
	}
	return sections, nil
}

// applyOrdering writes ordering moves in two phases: the moved sections are first shifted
// past every current and final ordering, then set to their final values, so the unique
// (survey_id, ordering) constraint holds after every statement.
func applyOrdering(ctx context.Context, tx *sqlx.Tx, surveyID int64, moves []services.OrderingAssignment) error {
	if len(moves) == 0 {
		return nil
	}

	var offset int
	if err := tx.GetContext(ctx, &offset,
		"SELECT COALESCE(MAX(ordering), 0) + COUNT(*) + 1 FROM sections WHERE survey_id = $1", surveyID); err != nil {
		return err
	}

	ids := make([]int64, len(moves))
	for i, m := range moves {
		ids[i] = m.SectionID
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sections SET ordering = ordering + $1 WHERE survey_id = $2 AND id = ANY($3)",
		offset, surveyID, pq.Array(ids)); err != nil {
		return fmt.Errorf("shift section orderings: %w", err)
	}

	for _, m := range moves {
		if _, err := tx.NamedExecContext(ctx, "UPDATE sections SET ordering = :ordering WHERE id = :id", m); err != nil {
			return fmt.Errorf("set ordering of section %d: %w", m.SectionID, err)
		}
	}
	return nil
}

// CreateQuestion stores a question. Branching configurations are validated against the survey.
func (r *SurveyRepository) CreateQuestion(ctx context.Context, q services.Question) (*services.Question, error) {
	if q.EnableBranching {
		survey, err := r.LoadSurvey(ctx, q.SurveyID)
		if err != nil {
			return nil, err
		}
		if err := services.ValidateBranchConfig(survey, &q); err != nil {
			return nil, err
		}
	}

	dto, err := models.NewQuestionDTO(q)
	if err != nil {
		return nil, err
	}

	model, err := r.questions.Create(ctx, dto)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return model.(*services.Question), nil
}

// SaveBranchConfig replaces a question's branching configuration and returns the cycles the
// survey now contains.
func (r *SurveyRepository) SaveBranchConfig(ctx context.Context, questionID int64, enable bool, cfg services.BranchConfig) (*services.Question, []services.Cycle, error) {
	row, err := r.questions.Get(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = $1", questionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load question %d: %w", questionID, err)
	}

	survey, err := r.LoadSurvey(ctx, row.SurveyID)
	if err != nil {
		return nil, nil, err
	}

	q := survey.Question(questionID)
	q.EnableBranching = enable
	q.BranchConfig = cfg
	if err := services.ValidateBranchConfig(survey, q); err != nil {
		return nil, nil, err
	}

	encoded, err := models.MarshalBranchConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := r.questions.BulkUpdate(ctx,
		"UPDATE questions SET enable_branching = $1, branch_config = $2::jsonb WHERE id = $3",
		enable, string(encoded), questionID); err != nil {
		return nil, nil, fmt.Errorf("save branch config of question %d: %w", questionID, err)
	}

	saved := *q
	return &saved, r.cycles(survey), nil
}

// SaveBranchRule validates and stores a rule (created when ID is 0, updated otherwise) and
// returns the cycles the survey now contains. Cycles are warnings; the rule is saved anyway.
func (r *SurveyRepository) SaveBranchRule(ctx context.Context, rule services.BranchRule) (*services.BranchRule, []services.Cycle, error) {
	section, err := r.sections.Get(ctx, "SELECT "+sectionColumns+" FROM sections WHERE id = $1", rule.SectionID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			v := &fault.ValidationError{}
			v.Add("section", "section is not part of the survey")
			return nil, nil, v
		}
		return nil, nil, fmt.Errorf("load section %d: %w", rule.SectionID, err)
	}

	survey, err := r.LoadSurvey(ctx, section.SurveyID)
	if err != nil {
		return nil, nil, err
	}

	if err := services.ValidateBranchRule(survey, rule); err != nil {
		return nil, nil, err
	}

	dto := models.NewBranchRuleDTO(rule)
	var saved services.BranchRule
	if rule.ID == 0 {
		model, err := r.rules.Create(ctx, dto)
		if err != nil {
			return nil, nil, fmt.Errorf("create branch rule: %w", err)
		}
		saved = *model.(*services.BranchRule)
	} else {
		model, err := r.rules.Update(ctx, rule.ID, dto)
		if err != nil {
			return nil, nil, fmt.Errorf("update branch rule %d: %w", rule.ID, err)
		}
		saved = model.(*models.BranchRule).ToDomain()
	}

	sec := survey.Section(saved.SectionID)
	replaced := false
	for i := range sec.Rules {
		if sec.Rules[i].ID == saved.ID {
			sec.Rules[i] = saved
			replaced = true
		}
	}
	if !replaced {
		sec.Rules = append(sec.Rules, saved)
	}

	return &saved, r.cycles(survey), nil
}

func (r *SurveyRepository) DeleteBranchRule(ctx context.Context, id int64) error {
	if err := r.rules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete branch rule %d: %w", id, err)
	}
	return nil
}

func (r *SurveyRepository) cycles(survey *services.Survey) []services.Cycle {
	cycles := services.DetectCycles(survey)
	for _, c := range cycles {
		r.log.Warn("circular branching detected", "survey_id", survey.ID, "section_id", c.Section.ID, "path", c.Path)
	}
	return cycles
}
