package services

// SectionNavigator answers the respondent-facing navigation questions for one survey.
//
// Moving forward honours branching. Moving back is always sequential: "previous" means the
// structurally prior section, never "undo the branch that was taken".
type SectionNavigator struct {
	survey    *Survey
	evaluator *BranchEvaluator
}

func NewSectionNavigator(survey *Survey, evaluator *BranchEvaluator) *SectionNavigator {
	return &SectionNavigator{survey: survey, evaluator: evaluator}
}

// Progress is a respondent's approximate position in the survey.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percentage returns Current/Total as a whole percentage, 0 for an empty survey.
func (p Progress) Percentage() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Current * 100 / p.Total
}

// FirstSection returns the lowest-ordering section, or nil for an unsectioned survey.
func (n *SectionNavigator) FirstSection() *Section {
	sections := n.survey.OrderedSections()
	if len(sections) == 0 {
		return nil
	}
	return sections[0]
}

// Resolve decides what follows current. Without an applicable branch it falls back to the
// next section by ordering, and to EndOfSurvey when current is the last one. A nil current is
// the implicit single section of an unsectioned survey and always ends it.
func (n *SectionNavigator) Resolve(current *Section, answers Answers) Decision {
	if current == nil {
		return Decision{Kind: EndOfSurvey}
	}
	if d := n.evaluator.Evaluate(n.survey, current, answers); d.Kind != NoDecision {
		return d
	}
	return n.sequentialDecision(current)
}

func (n *SectionNavigator) sequentialDecision(current *Section) Decision {
	if next := n.SequentialNext(current); next != nil {
		return Decision{Kind: GoToSection, Section: next}
	}
	return Decision{Kind: EndOfSurvey}
}

// NextSection returns the section to show after current, or nil when the survey ends.
func (n *SectionNavigator) NextSection(current *Section, answers Answers) *Section {
	return n.Resolve(current, answers).Section
}

// SequentialNext returns the section with the smallest ordering greater than current's.
func (n *SectionNavigator) SequentialNext(current *Section) *Section {
	if current == nil {
		return nil
	}
	for _, sec := range n.survey.OrderedSections() {
		if sec.Ordering > current.Ordering {
			return sec
		}
	}
	return nil
}

// PreviousSection returns the section with the largest ordering smaller than current's.
func (n *SectionNavigator) PreviousSection(current *Section) *Section {
	if current == nil {
		return nil
	}
	var prev *Section
	for _, sec := range n.survey.OrderedSections() {
		if sec.Ordering >= current.Ordering {
			break
		}
		prev = sec
	}
	return prev
}

// IsFirstSection is also true for nil in an unsectioned survey.
func (n *SectionNavigator) IsFirstSection(section *Section) bool {
	first := n.FirstSection()
	if first == nil || section == nil {
		return first == nil && section == nil
	}
	return first.ID == section.ID
}

// IsLastSection is true when nothing follows section for these answers, which can happen
// before the structurally last section if a branch ends the survey.
func (n *SectionNavigator) IsLastSection(section *Section, answers Answers) bool {
	return n.NextSection(section, answers) == nil
}

// Progress returns current's 1-based position among all sections. Sections skipped by
// branching are still counted, so the figure is an approximation. An unsectioned survey
// counts as one section.
func (n *SectionNavigator) Progress(current *Section) Progress {
	sections := n.survey.OrderedSections()
	if len(sections) == 0 {
		return Progress{Current: 1, Total: 1}
	}
	p := Progress{Current: 1, Total: len(sections)}
	for i, sec := range sections {
		if current != nil && sec.ID == current.ID {
			p.Current = i + 1
			break
		}
	}
	return p
}
