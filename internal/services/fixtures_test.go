package services

import (
	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/pkg/choicekey"
)

func id(v int64) *int64 { return &v }

func newEvaluator() *BranchEvaluator {
	return NewBranchEvaluator(logger.Nop())
}

// ageSurvey has sections A(0), B(1), C(2). Section A holds a radio question "age group" that
// sends 18-25 to C and 36+ to the end; 26-35 has no entry and falls through.
func ageSurvey() *Survey {
	choices := []string{"18-25", "26-35", "36+"}
	return &Survey{
		ID:   1,
		Name: "Age check",
		Sections: []Section{
			{ID: 10, SurveyID: 1, Ordering: 0, Name: "A"},
			{ID: 11, SurveyID: 1, Ordering: 1, Name: "B"},
			{ID: 12, SurveyID: 1, Ordering: 2, Name: "C"},
		},
		Questions: []Question{
			{
				ID:              100,
				SurveyID:        1,
				SectionID:       id(10),
				Type:            Radio,
				Label:           "age group",
				Choices:         choices,
				EnableBranching: true,
				BranchConfig: BranchConfig{
					choicekey.Normalize("18-25"): GoTo(12),
					choicekey.Normalize("36+"):   EndSurvey(),
				},
			},
			{ID: 101, SurveyID: 1, SectionID: id(11), Type: Text, Label: "occupation"},
			{ID: 102, SurveyID: 1, SectionID: id(12), Type: Text, Label: "hobby"},
		},
	}
}

// sequentialSurvey has sections A, B, C and no branching at all.
func sequentialSurvey() *Survey {
	return &Survey{
		ID: 2,
		Sections: []Section{
			{ID: 20, SurveyID: 2, Ordering: 0, Name: "A"},
			{ID: 21, SurveyID: 2, Ordering: 1, Name: "B"},
			{ID: 22, SurveyID: 2, Ordering: 2, Name: "C"},
		},
		Questions: []Question{
			{ID: 200, SurveyID: 2, SectionID: id(20), Type: Text, Label: "name"},
			{ID: 201, SurveyID: 2, SectionID: id(21), Type: Radio, Label: "colour", Choices: []string{"red", "blue", "green"}},
			{ID: 202, SurveyID: 2, SectionID: id(22), Type: Number, Label: "age"},
			{ID: 203, SurveyID: 2, SectionID: id(22), Type: File, Label: "photo"},
		},
	}
}
