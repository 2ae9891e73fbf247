package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

// Action is what the respondent asked for when submitting a section.
type Action string

const (
	ActionSaveDraft Action = "save_draft"
	ActionPrevious  Action = "previous"
	ActionNext      Action = "next"
	ActionSubmit    Action = "submit"
)

// ParseAction maps a submitted action name to an Action. An empty name means next.
func ParseAction(name string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return ActionNext, nil
	case ActionSaveDraft, ActionPrevious, ActionNext, ActionSubmit:
		return a, nil
	default:
		return "", fault.NewClientError(fmt.Sprintf("unknown action %q", name), nil)
	}
}

// View is what the respondent should see: a section with its questions and navigation state.
type View struct {
	// Section is nil for unsectioned surveys, where every question is on one page.
	Section   *Section    `json:"section"`
	Questions []*Question `json:"questions"`
	IsFirst   bool        `json:"is_first"`
	IsLast    bool        `json:"is_last"`
	Progress  Progress    `json:"progress"`
	Answers   Answers     `json:"answers"`
	HasDraft  bool        `json:"has_draft"`
}

// StepRequest carries one section's worth of answers and the chosen action.
type StepRequest struct {
	Respondent Respondent
	// SectionID is the section the answers were given on. Nil resolves the current section.
	SectionID *int64
	Answers   Answers
	Action    Action
}

// StepResult is the outcome of a step: the next view, or completion with every answer given.
type StepResult struct {
	View      *View   `json:"view,omitempty"`
	Completed bool    `json:"completed"`
	Answers   Answers `json:"answers,omitempty"`
}

// FlowService drives a respondent through a survey, one section at a time.
type FlowService struct {
	drafts    *DraftService
	evaluator *BranchEvaluator
	// maxTransitions stops honouring branches once a draft has made this many forward moves,
	// so a respondent caught in a branch cycle still reaches the end. 0 disables the guard.
	maxTransitions int
	log            *logger.Logger
}

func NewFlowService(drafts *DraftService, evaluator *BranchEvaluator, maxTransitions int, log *logger.Logger) *FlowService {
	return &FlowService{
		drafts:         drafts,
		evaluator:      evaluator,
		maxTransitions: maxTransitions,
		log:            log.With("service", "FlowService"),
	}
}

// Current resolves the section to show: the requested one if it belongs to the survey, else
// the section saved in the respondent's draft, else the first section.
func (f *FlowService) Current(ctx context.Context, survey *Survey, who Respondent, requested *int64) (*View, error) {
	draft, err := f.drafts.LoadDraft(ctx, survey.ID, who)
	if err != nil {
		return nil, err
	}

	nav := NewSectionNavigator(survey, f.evaluator)
	return f.view(survey, nav, f.currentSection(survey, nav, draft, requested), draft), nil
}

// Step applies an action to the respondent's progress.
func (f *FlowService) Step(ctx context.Context, survey *Survey, req StepRequest) (*StepResult, error) {
	draft, err := f.drafts.LoadDraft(ctx, survey.ID, req.Respondent)
	if err != nil {
		return nil, err
	}

	nav := NewSectionNavigator(survey, f.evaluator)
	current := f.currentSection(survey, nav, draft, req.SectionID)
	answers := draftableAnswers(survey, req.Answers)

	switch req.Action {
	case ActionSaveDraft:
		saved, err := f.drafts.SaveDraft(ctx, survey.ID, answers, req.Respondent, sectionID(current))
		if err != nil {
			return nil, err
		}
		return &StepResult{View: f.view(survey, nav, current, saved)}, nil

	case ActionPrevious:
		target := current
		if prev := nav.PreviousSection(current); prev != nil {
			target = prev
		}
		return &StepResult{View: f.view(survey, nav, target, draft)}, nil

	case ActionNext, ActionSubmit:
		return f.advance(ctx, survey, nav, current, draft, answers, req)

	default:
		return nil, fault.NewClientError(fmt.Sprintf("unknown action %q", req.Action), nil)
	}
}

func (f *FlowService) advance(ctx context.Context, survey *Survey, nav *SectionNavigator, current *Section, draft *Draft, answers Answers, req StepRequest) (*StepResult, error) {
	merged := answers
	transitions := 0
	if draft != nil {
		merged = draft.Data.Merge(answers)
		transitions = draft.Transitions
	}

	var next *Section
	if current != nil && req.Action == ActionNext {
		next = f.decide(survey, nav, current, merged, transitions)
	}

	if next == nil {
		if _, err := f.drafts.DeleteDraft(ctx, survey.ID, req.Respondent); err != nil {
			return nil, err
		}
		f.log.Info("survey completed", "survey_id", survey.ID, "respondent", req.Respondent.Key(), "answers", len(merged))
		return &StepResult{Completed: true, Answers: merged}, nil
	}

	saved, err := f.drafts.save(ctx, survey.ID, answers, req.Respondent, &next.ID, true)
	if err != nil {
		return nil, err
	}
	return &StepResult{View: f.view(survey, nav, next, saved)}, nil
}

func (f *FlowService) decide(survey *Survey, nav *SectionNavigator, current *Section, answers Answers, transitions int) *Section {
	if f.maxTransitions > 0 && transitions >= f.maxTransitions {
		f.log.Warn("transition limit reached, ignoring branches",
			"survey_id", survey.ID, "section_id", current.ID, "transitions", transitions, "limit", f.maxTransitions)
		return nav.SequentialNext(current)
	}
	return nav.NextSection(current, answers)
}

func (f *FlowService) currentSection(survey *Survey, nav *SectionNavigator, draft *Draft, requested *int64) *Section {
	if requested != nil {
		if sec := survey.Section(*requested); sec != nil {
			return sec
		}
	}
	if draft != nil && draft.CurrentSectionID != nil {
		if sec := survey.Section(*draft.CurrentSectionID); sec != nil {
			return sec
		}
	}
	return nav.FirstSection()
}

func (f *FlowService) view(survey *Survey, nav *SectionNavigator, section *Section, draft *Draft) *View {
	v := &View{Section: section, Answers: Answers{}}
	if draft != nil {
		v.Answers = draft.Data
		v.HasDraft = true
	}

	if section == nil {
		for i := range survey.Questions {
			v.Questions = append(v.Questions, &survey.Questions[i])
		}
	} else {
		v.Questions = survey.QuestionsIn(section.ID)
	}
	v.IsFirst = nav.IsFirstSection(section)
	v.IsLast = nav.IsLastSection(section, v.Answers)
	v.Progress = nav.Progress(section)
	return v
}

// draftableAnswers drops answers to file questions and to questions outside the survey.
func draftableAnswers(survey *Survey, answers Answers) Answers {
	out := make(Answers, len(answers))
	for id, v := range answers {
		q := survey.Question(id)
		if q == nil || q.Type == File {
			continue
		}
		out[id] = v
	}
	return out
}

func sectionID(s *Section) *int64 {
	if s == nil {
		return nil
	}
	id := s.ID
	return &id
}
