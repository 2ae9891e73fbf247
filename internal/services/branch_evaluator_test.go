package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_QuestionLevelBranching(t *testing.T) {
	survey := ageSurvey()
	a := survey.Section(10)
	ev := newEvaluator()

	d := ev.Evaluate(survey, a, Answers{100: "18-25"})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(12), d.Section.ID)

	d = ev.Evaluate(survey, a, Answers{100: "36+"})
	assert.Equal(t, EndOfSurvey, d.Kind)
	assert.Nil(t, d.Section)

	d = ev.Evaluate(survey, a, Answers{100: "26-35"})
	assert.Equal(t, NoDecision, d.Kind)

	d = ev.Evaluate(survey, a, Answers{})
	assert.Equal(t, NoDecision, d.Kind)
}

func TestEvaluate_QuestionLevelRawKeyFallback(t *testing.T) {
	survey := ageSurvey()
	survey.Questions[0].BranchConfig = BranchConfig{"Yes please": GoTo(12)}
	survey.Questions[0].Choices = []string{"Yes please"}

	d := newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: " Yes please "})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(12), d.Section.ID)
}

func TestEvaluate_QuestionLevelIgnoresNonRadioAndDisabled(t *testing.T) {
	survey := ageSurvey()
	survey.Questions[0].Type = Select
	d := newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: "18-25"})
	assert.Equal(t, NoDecision, d.Kind)

	survey = ageSurvey()
	survey.Questions[0].EnableBranching = false
	d = newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: "18-25"})
	assert.Equal(t, NoDecision, d.Kind)
}

func TestEvaluate_DanglingQuestionTargetFallsThroughToRules(t *testing.T) {
	survey := ageSurvey()
	survey.Questions[0].BranchConfig["1825"] = GoTo(999)
	survey.Sections[0].Rules = []BranchRule{
		{ID: 1, SectionID: 10, ConditionQuestionID: 100, Operator: OpEquals, ConditionValue: "18-25", NextSectionID: id(11)},
	}

	d := newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: "18-25"})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(11), d.Section.ID)
}

func TestEvaluate_DanglingTargetWithoutAlternativesIsNoDecision(t *testing.T) {
	survey := ageSurvey()
	survey.Questions[0].BranchConfig["1825"] = GoTo(999)

	d := newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: "18-25"})
	assert.Equal(t, NoDecision, d.Kind)
}

func TestEvaluate_QuestionLevelTakesPrecedenceOverRules(t *testing.T) {
	survey := ageSurvey()
	survey.Sections[0].Rules = []BranchRule{
		{ID: 1, SectionID: 10, ConditionQuestionID: 100, Operator: OpEquals, ConditionValue: "18-25", NextSectionID: id(11)},
	}

	d := newEvaluator().Evaluate(survey, survey.Section(10), Answers{100: "18-25"})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(12), d.Section.ID)
}

func TestEvaluate_RulePriority(t *testing.T) {
	survey := sequentialSurvey()
	b := survey.Section(21)
	b.Rules = []BranchRule{
		{ID: 1, SectionID: 21, ConditionQuestionID: 201, Operator: OpEquals, ConditionValue: "red", Priority: 5, NextSectionID: nil},
		{ID: 2, SectionID: 21, ConditionQuestionID: 201, Operator: OpEquals, ConditionValue: "red", Priority: 1, NextSectionID: id(20)},
	}

	d := newEvaluator().Evaluate(survey, b, Answers{201: "red"})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(20), d.Section.ID)

	b.Rules[1].Priority = 9
	d = newEvaluator().Evaluate(survey, b, Answers{201: "red"})
	assert.Equal(t, EndOfSurvey, d.Kind)
}

func TestEvaluate_RuleOperators(t *testing.T) {
	tests := []struct {
		name     string
		operator Operator
		value    string
		answer   any
		match    bool
	}{
		{"equals ignores case and spaces", OpEquals, " Red ", "red  ", true},
		{"equals mismatch", OpEquals, "red", "blue", false},
		{"not equals", OpNotEquals, "red", "Blue", true},
		{"not equals same value", OpNotEquals, "RED", " red", false},
		{"contains substring", OpContains, "LUE", "light blue", true},
		{"contains missing", OpContains, "green", "blue", false},
		{"in list", OpIn, "red, blue, green", "Blue", true},
		{"in list trims answer", OpIn, "red,blue", "  RED ", true},
		{"in list miss", OpIn, "red, blue", "purple", false},
		{"contains multi select", OpContains, "blue", []any{"red", "blue"}, true},
		{"equals number", OpEquals, "3", float64(3), true},
		{"expression", OpExpression, `answer == "blue" && answers.q200 == "Ann"`, "blue", true},
		{"expression false", OpExpression, `answer == "red"`, "blue", false},
		{"broken expression never matches", OpExpression, `answer ==`, "blue", false},
		{"unknown operator never matches", Operator("gt"), "1", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survey := sequentialSurvey()
			b := survey.Section(21)
			b.Rules = []BranchRule{
				{ID: 1, SectionID: 21, ConditionQuestionID: 201, Operator: tt.operator, ConditionValue: tt.value, NextSectionID: nil},
			}

			d := newEvaluator().Evaluate(survey, b, Answers{200: "Ann", 201: tt.answer})
			if tt.match {
				assert.Equal(t, EndOfSurvey, d.Kind)
			} else {
				assert.Equal(t, NoDecision, d.Kind)
			}
		})
	}
}

func TestEvaluate_RuleSkippedWhenQuestionUnanswered(t *testing.T) {
	survey := sequentialSurvey()
	b := survey.Section(21)
	b.Rules = []BranchRule{
		{ID: 1, SectionID: 21, ConditionQuestionID: 201, Operator: OpNotEquals, ConditionValue: "red", NextSectionID: nil},
	}

	d := newEvaluator().Evaluate(survey, b, Answers{200: "Ann"})
	assert.Equal(t, NoDecision, d.Kind)
}

func TestEvaluate_DanglingRuleTargetContinues(t *testing.T) {
	survey := sequentialSurvey()
	b := survey.Section(21)
	b.Rules = []BranchRule{
		{ID: 1, SectionID: 21, ConditionQuestionID: 201, Operator: OpEquals, ConditionValue: "red", Priority: 0, NextSectionID: id(404)},
		{ID: 2, SectionID: 21, ConditionQuestionID: 201, Operator: OpEquals, ConditionValue: "red", Priority: 1, NextSectionID: id(22)},
	}

	d := newEvaluator().Evaluate(survey, b, Answers{201: "red"})
	require.Equal(t, GoToSection, d.Kind)
	assert.Equal(t, int64(22), d.Section.ID)
}

func TestEvaluate_ExpressionProgramsAreCached(t *testing.T) {
	ev := newEvaluator()
	p1, err := ev.program(`answer != ""`)
	require.NoError(t, err)
	p2, err := ev.program(`answer != ""`)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestStringifyAnswer(t *testing.T) {
	assert.Equal(t, "", stringifyAnswer(nil))
	assert.Equal(t, "a, b", stringifyAnswer([]string{"a", "b"}))
	assert.Equal(t, "1.5", stringifyAnswer(1.5))
	assert.Equal(t, "true", stringifyAnswer(true))
}
