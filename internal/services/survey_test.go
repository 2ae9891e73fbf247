package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionType(t *testing.T) {
	for i, name := range questionTypeNames {
		got, err := ParseQuestionType(name)
		require.NoError(t, err)
		assert.Equal(t, QuestionType(i), got)
		assert.Equal(t, name, got.String())
	}

	got, err := ParseQuestionType(" Radio ")
	require.NoError(t, err)
	assert.Equal(t, Radio, got)

	_, err = ParseQuestionType("slider")
	assert.Error(t, err)

	assert.True(t, Radio.SupportsBranching())
	assert.False(t, Select.SupportsBranching())
	assert.Equal(t, "QuestionType(42)", QuestionType(42).String())
}

func TestQuestionType_JSON(t *testing.T) {
	out, err := json.Marshal(Question{ID: 1, Type: MultiSelect})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"multi_select"`)

	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"id": 2, "type": "date"}`), &q))
	assert.Equal(t, Date, q.Type)
}

func TestAnswersMerge(t *testing.T) {
	a := Answers{1: "x", 2: "old"}
	merged := a.Merge(Answers{2: "new", 3: true})

	assert.Equal(t, Answers{1: "x", 2: "new", 3: true}, merged)
	assert.Equal(t, "old", a[2])
}

func TestQuestion_Branches(t *testing.T) {
	q := ageSurvey().Questions[0]
	assert.True(t, q.Branches())

	q.BranchConfig = nil
	assert.False(t, q.Branches())
}

func TestSurvey_Lookups(t *testing.T) {
	s := ageSurvey()
	assert.True(t, s.IsSectioned())
	assert.Equal(t, "B", s.Section(11).Name)
	assert.Nil(t, s.Section(99))
	assert.Equal(t, "hobby", s.Question(102).Label)
	assert.Nil(t, s.Question(99))
	assert.False(t, (&Survey{}).IsSectioned())
}

func TestSurvey_QuestionsInOrder(t *testing.T) {
	s := &Survey{ID: 1, Questions: []Question{
		{ID: 3, SectionID: id(1), Ordering: 1},
		{ID: 2, SectionID: id(1), Ordering: 0},
		{ID: 1, SectionID: id(1), Ordering: 1},
		{ID: 4, SectionID: id(2)},
		{ID: 5},
	}}

	var ids []int64
	for _, q := range s.QuestionsIn(1) {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []int64{2, 1, 3}, ids)
}

func TestSurvey_Validate(t *testing.T) {
	assert.NoError(t, ageSurvey().Validate())

	s := ageSurvey()
	s.Sections[2].Ordering = 1
	assert.ErrorContains(t, s.Validate(), "share ordering 1")

	s = ageSurvey()
	s.Sections[0].Ordering = -1
	assert.ErrorContains(t, s.Validate(), "negative ordering")

	s = ageSurvey()
	s.Sections[1].SurveyID = 8
	assert.ErrorContains(t, s.Validate(), "belongs to survey 8")
}
