package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulexconde/surveyflow/pkg/choicekey"
)

// Target is where a branch sends the respondent: either a section or the end of the survey.
type Target struct {
	end       bool
	sectionID int64
}

// EndSurvey is the target that terminates the survey.
func EndSurvey() Target { return Target{end: true} }

// GoTo targets a section by id.
func GoTo(sectionID int64) Target { return Target{sectionID: sectionID} }

// IsEnd reports whether the target ends the survey.
func (t Target) IsEnd() bool { return t.end }

// SectionID returns the target section id and false for the end-survey target.
func (t Target) SectionID() (int64, bool) {
	if t.end {
		return 0, false
	}
	return t.sectionID, true
}

func (t Target) String() string {
	if t.end {
		return "end"
	}
	return fmt.Sprintf("section:%d", t.sectionID)
}

// MarshalJSON encodes the end target as null and a section target as its id.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.end {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.sectionID, 10)), nil
}

// UnmarshalJSON accepts null, 0, "0" and "" as the end target, and numbers or numeric strings
// as section ids.
func (t *Target) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = EndSurvey()
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*t = EndSurvey()
			return nil
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid branch target %s", string(data))
	}
	if id == 0 {
		*t = EndSurvey()
		return nil
	}
	if id < 0 {
		return fmt.Errorf("invalid branch target %d", id)
	}
	*t = GoTo(id)
	return nil
}

// BranchConfig maps a normalized choice key to the branch target for that choice.
type BranchConfig map[choicekey.Key]Target

// Lookup finds the target configured for an answer. The normalized key is tried first, then
// the trimmed raw answer for configs written before keys were normalized.
func (c BranchConfig) Lookup(answer string) (Target, bool) {
	if len(c) == 0 {
		return Target{}, false
	}
	if t, ok := c[choicekey.Normalize(answer)]; ok {
		return t, true
	}
	t, ok := c[choicekey.Key(strings.TrimSpace(answer))]
	return t, ok
}

// Operator compares a rule's condition value with an answer.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpIn         Operator = "in"
	OpExpression Operator = "expression"
)

// Valid reports whether the operator is known.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpIn, OpExpression:
		return true
	}
	return false
}

// BranchRule is a section-scoped conditional edge evaluated after its section, lower
// priority first.
type BranchRule struct {
	ID                  int64
	SectionID           int64
	ConditionQuestionID int64
	Operator            Operator
	ConditionValue      string
	// NextSectionID nil ends the survey.
	NextSectionID *int64
	Priority      int
}

// Target returns the rule's destination as a Target.
func (r *BranchRule) Target() Target {
	if r.NextSectionID == nil {
		return EndSurvey()
	}
	return GoTo(*r.NextSectionID)
}

// DecisionKind tells the caller how to proceed after a section.
type DecisionKind int

const (
	// NoDecision means no branch applied; fall back to sequential order.
	NoDecision DecisionKind = iota
	GoToSection
	EndOfSurvey
)

func (k DecisionKind) String() string {
	switch k {
	case GoToSection:
		return "goto"
	case EndOfSurvey:
		return "end"
	default:
		return "none"
	}
}

// Decision is the outcome of evaluating branching for a section.
type Decision struct {
	Kind DecisionKind
	// Section is set only for GoToSection.
	Section *Section
}

// Ends reports whether the decision terminates the survey.
func (d Decision) Ends() bool { return d.Kind == EndOfSurvey }
