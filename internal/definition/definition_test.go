package definition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/choicekey"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

func TestLoadFile(t *testing.T) {
	survey, err := LoadFile("testdata/onboarding.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", survey.Name)
	require.Len(t, survey.Sections, 4)
	for i, s := range survey.Sections {
		assert.Equal(t, int64(i+1), s.ID)
		assert.Equal(t, i, s.Ordering)
	}

	age := survey.Question(1)
	require.NotNil(t, age)
	assert.Equal(t, services.Radio, age.Type)
	assert.True(t, age.Branches())
	assert.Equal(t, services.BranchConfig{
		choicekey.Normalize("18-25"): services.GoTo(2),
		choicekey.Normalize("26-35"): services.GoTo(3),
		choicekey.Normalize("36+"):   services.EndSurvey(),
	}, age.BranchConfig)

	adult := survey.Section(3)
	require.Len(t, adult.Rules, 1)
	rule := adult.Rules[0]
	assert.Equal(t, int64(3), rule.ConditionQuestionID)
	assert.Equal(t, services.OpEquals, rule.Operator)
	assert.Nil(t, rule.NextSectionID)

	assert.Equal(t, services.TextArea, survey.Question(4).Type)
	assert.Empty(t, services.DetectCycles(survey))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ncolour: red\n",
			want: "field colour not found",
		},
		{
			name: "missing name",
			yaml: "sections:\n  - ref: a\n",
			want: "survey name is required",
		},
		{
			name: "duplicate section ref",
			yaml: "name: x\nsections:\n  - ref: a\n  - ref: a\n",
			want: `duplicate section ref "a"`,
		},
		{
			name: "unknown question type",
			yaml: "name: x\nquestions:\n  - ref: q\n    type: slider\n",
			want: `unknown question type "slider"`,
		},
		{
			name: "question in unknown section",
			yaml: "name: x\nquestions:\n  - ref: q\n    type: text\n    section: nowhere\n",
			want: `unknown section "nowhere"`,
		},
		{
			name: "branch target unknown",
			yaml: "name: x\nsections:\n  - ref: a\nquestions:\n  - ref: q\n    type: radio\n    section: a\n    choices: [Yes]\n    branch:\n      Yes: b\n",
			want: `unknown section "b"`,
		},
		{
			name: "rule on unknown question",
			yaml: "name: x\nsections:\n  - ref: a\n    rules:\n      - question: q\n        operator: equals\n        value: x\n        next: end\n",
			want: `unknown question "q"`,
		},
		{
			name: "branching on a text question",
			yaml: "name: x\nsections:\n  - ref: a\n  - ref: b\nquestions:\n  - ref: q\n    type: text\n    section: a\n    branch:\n      Yes: b\n",
			want: "branching is only supported for radio questions",
		},
		{
			name: "rule with unknown operator",
			yaml: "name: x\nsections:\n  - ref: a\n    rules:\n      - question: q\n        operator: like\n        value: x\n        next: end\nquestions:\n  - ref: q\n    type: text\n    section: a\n",
			want: `unknown operator "like"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_ValidationErrorsAreClientErrors(t *testing.T) {
	_, err := Parse([]byte("name: x\nsections:\n  - ref: a\n  - ref: a\n"))
	assert.True(t, fault.IsClientError(err))
}

type memoryWriter struct {
	nextID    int64
	sections  []services.Section
	questions []services.Question
	configs   map[int64]services.BranchConfig
	rules     []services.BranchRule
	ruleErr   error
	deleted   []int64
}

func (w *memoryWriter) id() int64 {
	w.nextID++
	return 100 + w.nextID
}

func (w *memoryWriter) CreateSurvey(ctx context.Context, name, description string) (*services.Survey, error) {
	return &services.Survey{ID: w.id(), Name: name, Description: description}, nil
}

func (w *memoryWriter) InsertSection(ctx context.Context, surveyID int64, position int, name, description string) (*services.Section, error) {
	s := services.Section{ID: w.id(), SurveyID: surveyID, Ordering: len(w.sections), Name: name}
	w.sections = append(w.sections, s)
	return &s, nil
}

func (w *memoryWriter) CreateQuestion(ctx context.Context, q services.Question) (*services.Question, error) {
	q.ID = w.id()
	w.questions = append(w.questions, q)
	return &q, nil
}

func (w *memoryWriter) SaveBranchConfig(ctx context.Context, questionID int64, enable bool, cfg services.BranchConfig) (*services.Question, []services.Cycle, error) {
	if w.configs == nil {
		w.configs = map[int64]services.BranchConfig{}
	}
	w.configs[questionID] = cfg
	return &services.Question{ID: questionID, EnableBranching: enable, BranchConfig: cfg}, nil, nil
}

func (w *memoryWriter) SaveBranchRule(ctx context.Context, rule services.BranchRule) (*services.BranchRule, []services.Cycle, error) {
	if w.ruleErr != nil {
		return nil, nil, w.ruleErr
	}
	rule.ID = w.id()
	w.rules = append(w.rules, rule)
	return &rule, nil, nil
}

func (w *memoryWriter) DeleteSurvey(ctx context.Context, id int64) error {
	w.deleted = append(w.deleted, id)
	return nil
}

func TestImport(t *testing.T) {
	survey, err := LoadFile("testdata/onboarding.yaml")
	require.NoError(t, err)

	w := &memoryWriter{}
	surveyID, cycles, err := Import(context.Background(), w, survey)
	require.NoError(t, err)
	assert.Equal(t, int64(101), surveyID)
	assert.Empty(t, cycles)

	require.Len(t, w.sections, 4)
	sectionIDs := []int64{w.sections[0].ID, w.sections[1].ID, w.sections[2].ID, w.sections[3].ID}
	assert.Equal(t, []int64{102, 103, 104, 105}, sectionIDs)

	require.Len(t, w.questions, 4)
	for _, q := range w.questions {
		assert.Equal(t, surveyID, q.SurveyID)
		assert.False(t, q.EnableBranching)
	}
	assert.Equal(t, int64(102), *w.questions[0].SectionID)

	ageID := w.questions[0].ID
	assert.Equal(t, services.BranchConfig{
		choicekey.Normalize("18-25"): services.GoTo(103),
		choicekey.Normalize("26-35"): services.GoTo(104),
		choicekey.Normalize("36+"):   services.EndSurvey(),
	}, w.configs[ageID])

	require.Len(t, w.rules, 1)
	assert.Equal(t, int64(104), w.rules[0].SectionID)
	assert.Equal(t, w.questions[2].ID, w.rules[0].ConditionQuestionID)
	assert.Nil(t, w.rules[0].NextSectionID)
	assert.Empty(t, w.deleted)
}

func TestImport_DeletesPartialSurvey(t *testing.T) {
	survey, err := LoadFile("testdata/onboarding.yaml")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	w := &memoryWriter{ruleErr: boom}
	surveyID, _, err := Import(context.Background(), w, survey)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, surveyID)
	assert.Equal(t, []int64{101}, w.deleted)
}
