package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulexconde/surveyflow/pkg/choicekey"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

// ValidateBranchRule rejects rule configurations that must never reach the evaluator.
// Problems are reported per field in a *fault.ValidationError.
func ValidateBranchRule(survey *Survey, rule BranchRule) error {
	v := &fault.ValidationError{}

	section := survey.Section(rule.SectionID)
	if section == nil {
		v.Add("section", "section is not part of the survey")
		return v
	}

	question := survey.Question(rule.ConditionQuestionID)
	switch {
	case question == nil:
		v.Add("condition_question", "question must be from the same survey")
	case question.SectionID != nil:
		qs := survey.Section(*question.SectionID)
		if qs == nil {
			v.Add("condition_question", "question must be from the same survey")
		} else if qs.Ordering > section.Ordering {
			v.Add("condition_question", "question must be from current or previous section")
		}
	}

	if rule.NextSectionID != nil {
		if *rule.NextSectionID == section.ID {
			v.Add("next_section", "cannot branch to same section")
		} else if survey.Section(*rule.NextSectionID) == nil {
			v.Add("next_section", "target section must be from the same survey")
		}
	}

	if !rule.Operator.Valid() {
		v.Add("operator", fmt.Sprintf("unknown operator %q", rule.Operator))
		return v.OrNil()
	}

	if strings.TrimSpace(rule.ConditionValue) == "" {
		v.Add("condition_value", "condition value is required")
		return v.OrNil()
	}

	if rule.Operator == OpExpression {
		if _, err := compileExpression(rule.ConditionValue); err != nil {
			v.Add("condition_value", fmt.Sprintf("expression does not compile: %v", err))
		}
		return v.OrNil()
	}

	if question != nil {
		switch rule.Operator {
		case OpEquals, OpNotEquals:
			if msg := checkValueForType(question, rule.ConditionValue); msg != "" {
				v.Add("condition_value", msg)
			}
		case OpIn:
			for _, token := range strings.Split(rule.ConditionValue, ",") {
				if msg := checkValueForType(question, token); msg != "" {
					v.Add("condition_value", msg)
					break
				}
			}
		}
	}

	return v.OrNil()
}

func checkValueForType(q *Question, value string) string {
	value = strings.TrimSpace(value)

	switch q.Type {
	case Number:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "value must be numeric for number field"
		}
	case Date:
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return "value must be valid date (YYYY-MM-DD)"
		}
	case Radio, Select:
		if len(q.Choices) == 0 {
			return ""
		}
		for _, c := range q.Choices {
			if normalizeValue(c) == normalizeValue(value) {
				return ""
			}
		}
		return fmt.Sprintf("value must be one of: %s", strings.Join(q.Choices, ", "))
	}
	return ""
}

// ValidateBranchConfig checks a question-level branch configuration: only sectioned radio
// questions may branch, keys must be normalized keys of the question's choices, and targets
// must be other sections of the same survey.
func ValidateBranchConfig(survey *Survey, q *Question) error {
	if !q.EnableBranching {
		return nil
	}

	v := &fault.ValidationError{}
	if !q.Type.SupportsBranching() {
		v.Add("enable_branching", "branching is only supported for radio questions")
	}
	if q.SectionID == nil {
		v.Add("section", "branching requires the question to belong to a section")
	}

	valid := make(map[choicekey.Key]bool, len(q.Choices))
	for _, k := range choicekey.Keys(q.Choices) {
		valid[k] = true
	}

	for key, target := range q.BranchConfig {
		if !valid[key] {
			v.Add("branch_config", fmt.Sprintf("key %q does not match any choice", key))
			continue
		}
		id, ok := target.SectionID()
		if !ok {
			continue
		}
		if survey.Section(id) == nil {
			v.Add("branch_config", fmt.Sprintf("target section %d is not part of the survey", id))
		} else if q.SectionID != nil && id == *q.SectionID {
			v.Add("branch_config", "cannot branch to the question's own section")
		}
	}

	return v.OrNil()
}
