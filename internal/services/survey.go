package services

import (
	"fmt"
	"sort"
	"strings"
)

// The type of question being asked.
type QuestionType int

const (
	Text QuestionType = iota
	Number
	Radio
	Select
	MultiSelect
	TextArea
	URL
	Email
	Date
	Rating
	File
)

var questionTypeNames = [...]string{
	"text", "number", "radio", "select", "multi_select", "text_area",
	"url", "email", "date", "rating", "file",
}

func (t QuestionType) String() string {
	if t < 0 || int(t) >= len(questionTypeNames) {
		return fmt.Sprintf("QuestionType(%d)", int(t))
	}
	return questionTypeNames[t]
}

func (t QuestionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *QuestionType) UnmarshalText(b []byte) error {
	parsed, err := ParseQuestionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseQuestionType maps a type name such as "radio" to its QuestionType.
func ParseQuestionType(name string) (QuestionType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range questionTypeNames {
		if n == name {
			return QuestionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown question type %q", name)
}

// SupportsBranching reports whether a question of this type can carry a question-level
// branch configuration. Only single-choice radio questions do.
func (t QuestionType) SupportsBranching() bool {
	return t == Radio
}

// Answers maps a question id to the last submitted value for it.
type Answers map[int64]any

// Merge returns a new map holding a's entries overwritten by b's.
func (a Answers) Merge(b Answers) Answers {
	merged := make(Answers, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// The Question object.
type Question struct {
	ID       int64 `json:"id"`
	SurveyID int64 `json:"survey_id"`
	// SectionID is nil for questions of an unsectioned survey, or whose section was deleted.
	SectionID       *int64       `json:"section_id"`
	Type            QuestionType `json:"type"`
	Label           string       `json:"label"`
	Choices         []string     `json:"choices,omitempty"`
	Ordering        int          `json:"ordering"`
	EnableBranching bool         `json:"enable_branching"`
	BranchConfig    BranchConfig `json:"branch_config,omitempty"`
}

// Branches reports whether the question takes part in question-level branching.
func (q *Question) Branches() bool {
	return q.EnableBranching && q.Type.SupportsBranching() && len(q.BranchConfig) > 0
}

// Section is an ordered page of questions. Rules are evaluated after the section is completed.
type Section struct {
	ID          int64        `json:"id"`
	SurveyID    int64        `json:"survey_id"`
	Ordering    int          `json:"ordering"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Rules       []BranchRule `json:"-"`
}

// The Survey object.
type Survey struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Sections    []Section  `json:"sections"`
	Questions   []Question `json:"questions"`
}

// IsSectioned is false for legacy surveys where every question sits on one page.
func (s *Survey) IsSectioned() bool {
	return len(s.Sections) > 0
}

// Section returns the survey's section with the given id, or nil.
func (s *Survey) Section(id int64) *Section {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i]
		}
	}
	return nil
}

// Question returns the survey's question with the given id, or nil.
func (s *Survey) Question(id int64) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// OrderedSections returns the sections sorted by ordering.
func (s *Survey) OrderedSections() []*Section {
	out := make([]*Section, len(s.Sections))
	for i := range s.Sections {
		out[i] = &s.Sections[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordering < out[j].Ordering })
	return out
}

// QuestionsIn returns the questions of a section ordered by (ordering, id).
func (s *Survey) QuestionsIn(sectionID int64) []*Question {
	var out []*Question
	for i := range s.Questions {
		q := &s.Questions[i]
		if q.SectionID != nil && *q.SectionID == sectionID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ordering != out[j].Ordering {
			return out[i].Ordering < out[j].Ordering
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Validate checks the structural invariants a loaded survey must hold.
func (s *Survey) Validate() error {
	seen := make(map[int]int64, len(s.Sections))
	for _, sec := range s.Sections {
		if sec.SurveyID != s.ID {
			return fmt.Errorf("section %d belongs to survey %d, not %d", sec.ID, sec.SurveyID, s.ID)
		}
		if sec.Ordering < 0 {
			return fmt.Errorf("section %d has negative ordering %d", sec.ID, sec.Ordering)
		}
		if other, dup := seen[sec.Ordering]; dup {
			return fmt.Errorf("sections %d and %d share ordering %d", other, sec.ID, sec.Ordering)
		}
		seen[sec.Ordering] = sec.ID
	}
	return nil
}
