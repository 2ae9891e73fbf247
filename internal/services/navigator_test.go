package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigator_AgeGroupScenario(t *testing.T) {
	survey := ageSurvey()
	nav := NewSectionNavigator(survey, newEvaluator())
	a := nav.FirstSection()
	require.NotNil(t, a)
	assert.Equal(t, int64(10), a.ID)

	next := nav.NextSection(a, Answers{100: "18-25"})
	require.NotNil(t, next)
	assert.Equal(t, int64(12), next.ID)

	assert.Equal(t, EndOfSurvey, nav.Resolve(a, Answers{100: "36+"}).Kind)
	assert.Nil(t, nav.NextSection(a, Answers{100: "36+"}))
	assert.True(t, nav.IsLastSection(a, Answers{100: "36+"}))

	next = nav.NextSection(a, Answers{100: "26-35"})
	require.NotNil(t, next)
	assert.Equal(t, int64(11), next.ID)
}

func TestNavigator_SequentialFallback(t *testing.T) {
	survey := sequentialSurvey()
	nav := NewSectionNavigator(survey, newEvaluator())

	for i, sec := range survey.OrderedSections()[:2] {
		next := nav.NextSection(sec, Answers{201: "blue"})
		require.NotNil(t, next)
		assert.Equal(t, survey.OrderedSections()[i+1].ID, next.ID)
	}
}

func TestNavigator_SparseOrderingLastSection(t *testing.T) {
	survey := &Survey{
		ID: 4,
		Sections: []Section{
			{ID: 2, SurveyID: 4, Ordering: 5},
			{ID: 1, SurveyID: 4, Ordering: 0},
			{ID: 3, SurveyID: 4, Ordering: 3},
		},
	}
	nav := NewSectionNavigator(survey, newEvaluator())
	last := survey.Section(2)

	assert.True(t, nav.IsLastSection(last, Answers{}))
	assert.Nil(t, nav.NextSection(last, Answers{}))

	next := nav.NextSection(survey.Section(1), Answers{})
	require.NotNil(t, next)
	assert.Equal(t, int64(3), next.ID)
	assert.False(t, nav.IsLastSection(survey.Section(3), Answers{}))
}

func TestNavigator_PreviousIgnoresBranching(t *testing.T) {
	survey := ageSurvey()
	nav := NewSectionNavigator(survey, newEvaluator())

	// A branched straight to C, but going back from C still lands on B.
	prev := nav.PreviousSection(survey.Section(12))
	require.NotNil(t, prev)
	assert.Equal(t, int64(11), prev.ID)
	assert.Nil(t, nav.PreviousSection(survey.Section(10)))
}

func TestNavigator_FirstAndProgress(t *testing.T) {
	survey := ageSurvey()
	nav := NewSectionNavigator(survey, newEvaluator())

	assert.True(t, nav.IsFirstSection(survey.Section(10)))
	assert.False(t, nav.IsFirstSection(survey.Section(11)))

	p := nav.Progress(survey.Section(12))
	assert.Equal(t, Progress{Current: 3, Total: 3}, p)
	assert.Equal(t, 100, p.Percentage())
	assert.Equal(t, 33, nav.Progress(survey.Section(10)).Percentage())
}

func TestNavigator_UnsectionedSurvey(t *testing.T) {
	nav := NewSectionNavigator(&Survey{ID: 5, Questions: []Question{{ID: 1, SurveyID: 5}}}, newEvaluator())

	assert.Nil(t, nav.FirstSection())
	assert.True(t, nav.IsFirstSection(nil))
	assert.Equal(t, Decision{Kind: EndOfSurvey}, nav.Resolve(nil, Answers{1: "x"}))
	assert.Nil(t, nav.NextSection(nil, nil))
	assert.True(t, nav.IsLastSection(nil, nil))
	assert.Nil(t, nav.SequentialNext(nil))
	assert.Nil(t, nav.PreviousSection(nil))
	assert.Equal(t, Progress{Current: 1, Total: 1}, nav.Progress(nil))
	assert.Equal(t, 100, nav.Progress(nil).Percentage())
	assert.Equal(t, Decision{Kind: NoDecision}, newEvaluator().Evaluate(nav.survey, nil, nil))
}
