// Package definition reads survey definitions written in YAML and turns them into surveys.
//
// Sections and questions are referred to by a short ref instead of a database id. A branch
// target is either a section ref or "end".
package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/choicekey"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

// EndTarget is the branch target that completes the survey.
const EndTarget = "end"

type File struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Sections    []Section  `yaml:"sections"`
	Questions   []Question `yaml:"questions"`
}

type Section struct {
	Ref         string `yaml:"ref"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

type Rule struct {
	Question string `yaml:"question"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
	Next     string `yaml:"next"`
	Priority int    `yaml:"priority"`
}

type Question struct {
	Ref     string   `yaml:"ref"`
	Section string   `yaml:"section"`
	Type    string   `yaml:"type"`
	Label   string   `yaml:"label"`
	Choices []string `yaml:"choices"`
	// Branch maps a choice's display text to a target.
	Branch map[string]string `yaml:"branch"`
}

// LoadFile reads and converts the definition at path.
func LoadFile(path string) (*services.Survey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a definition, rejecting unknown fields, and converts it.
func Parse(data []byte) (*services.Survey, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode survey definition: %w", err)
	}
	return f.Survey()
}

// Survey converts the definition. Sections and questions get ids in file order starting at
// 1, and sections are ordered as listed. Every rule and branch configuration is validated.
func (f *File) Survey() (*services.Survey, error) {
	v := &fault.ValidationError{}
	if strings.TrimSpace(f.Name) == "" {
		v.Add("name", "survey name is required")
	}

	survey := &services.Survey{Name: f.Name, Description: f.Description}

	sectionIDs := make(map[string]int64, len(f.Sections))
	for i, s := range f.Sections {
		if s.Ref == "" {
			v.Add(fmt.Sprintf("sections[%d].ref", i), "ref is required")
			continue
		}
		if _, dup := sectionIDs[s.Ref]; dup {
			v.Add(fmt.Sprintf("sections[%d].ref", i), fmt.Sprintf("duplicate section ref %q", s.Ref))
			continue
		}
		id := int64(len(survey.Sections) + 1)
		sectionIDs[s.Ref] = id
		survey.Sections = append(survey.Sections, services.Section{
			ID:          id,
			Ordering:    len(survey.Sections),
			Name:        s.Name,
			Description: s.Description,
		})
	}

	target := func(field, ref string) (services.Target, bool) {
		if ref == EndTarget {
			return services.EndSurvey(), true
		}
		id, ok := sectionIDs[ref]
		if !ok {
			v.Add(field, fmt.Sprintf("unknown section %q", ref))
			return services.Target{}, false
		}
		return services.GoTo(id), true
	}

	questionIDs := make(map[string]int64, len(f.Questions))
	for i, q := range f.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.Ref == "" {
			v.Add(field+".ref", "ref is required")
			continue
		}
		if _, dup := questionIDs[q.Ref]; dup {
			v.Add(field+".ref", fmt.Sprintf("duplicate question ref %q", q.Ref))
			continue
		}

		qt, err := services.ParseQuestionType(q.Type)
		if err != nil {
			v.Add(field+".type", err.Error())
			continue
		}

		question := services.Question{
			ID:       int64(len(survey.Questions) + 1),
			Type:     qt,
			Label:    q.Label,
			Choices:  q.Choices,
			Ordering: i,
		}
		if q.Section != "" {
			id, ok := sectionIDs[q.Section]
			if !ok {
				v.Add(field+".section", fmt.Sprintf("unknown section %q", q.Section))
				continue
			}
			question.SectionID = &id
		}

		if len(q.Branch) > 0 {
			question.EnableBranching = true
			question.BranchConfig = make(services.BranchConfig, len(q.Branch))
			for choice, ref := range q.Branch {
				if t, ok := target(field+".branch", ref); ok {
					question.BranchConfig[choicekey.Normalize(choice)] = t
				}
			}
		}

		questionIDs[q.Ref] = question.ID
		survey.Questions = append(survey.Questions, question)
	}

	var ruleID int64
	for i, s := range f.Sections {
		sec := survey.Section(sectionIDs[s.Ref])
		if sec == nil {
			continue
		}
		for j, r := range s.Rules {
			field := fmt.Sprintf("sections[%d].rules[%d]", i, j)
			qid, ok := questionIDs[r.Question]
			if !ok {
				v.Add(field+".question", fmt.Sprintf("unknown question %q", r.Question))
				continue
			}
			t, ok := target(field+".next", r.Next)
			if !ok {
				continue
			}

			ruleID++
			rule := services.BranchRule{
				ID:                  ruleID,
				SectionID:           sec.ID,
				ConditionQuestionID: qid,
				Operator:            services.Operator(r.Operator),
				ConditionValue:      r.Value,
				Priority:            r.Priority,
			}
			if id, ok := t.SectionID(); ok {
				rule.NextSectionID = &id
			}
			sec.Rules = append(sec.Rules, rule)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}

	for _, sec := range survey.Sections {
		for _, rule := range sec.Rules {
			if err := services.ValidateBranchRule(survey, rule); err != nil {
				return nil, fmt.Errorf("section %q rule %d: %w", sec.Name, rule.ID, err)
			}
		}
	}
	for i := range survey.Questions {
		if err := services.ValidateBranchConfig(survey, &survey.Questions[i]); err != nil {
			return nil, fmt.Errorf("question %q: %w", survey.Questions[i].Label, err)
		}
	}

	return survey, nil
}

// Writer stores surveys. SurveyRepository satisfies it.
type Writer interface {
	CreateSurvey(ctx context.Context, name, description string) (*services.Survey, error)
	InsertSection(ctx context.Context, surveyID int64, position int, name, description string) (*services.Section, error)
	CreateQuestion(ctx context.Context, q services.Question) (*services.Question, error)
	SaveBranchConfig(ctx context.Context, questionID int64, enable bool, cfg services.BranchConfig) (*services.Question, []services.Cycle, error)
	SaveBranchRule(ctx context.Context, rule services.BranchRule) (*services.BranchRule, []services.Cycle, error)
	DeleteSurvey(ctx context.Context, id int64) error
}

// Import stores a converted definition and returns the id of the new survey with the
// cycles it contains. Branching is written after every section and question exists, since
// it may point forward. If any write fails the partially stored survey is deleted.
func Import(ctx context.Context, w Writer, survey *services.Survey) (int64, []services.Cycle, error) {
	created, err := w.CreateSurvey(ctx, survey.Name, survey.Description)
	if err != nil {
		return 0, nil, err
	}

	cycles, err := importContent(ctx, w, created.ID, survey)
	if err != nil {
		if derr := w.DeleteSurvey(context.WithoutCancel(ctx), created.ID); derr != nil {
			err = errors.Join(err, fmt.Errorf("roll back survey %d: %w", created.ID, derr))
		}
		return 0, nil, err
	}
	return created.ID, cycles, nil
}

func importContent(ctx context.Context, w Writer, surveyID int64, survey *services.Survey) ([]services.Cycle, error) {

	sections := make(map[int64]int64, len(survey.Sections))
	for _, sec := range survey.OrderedSections() {
		saved, err := w.InsertSection(ctx, surveyID, -1, sec.Name, sec.Description)
		if err != nil {
			return nil, err
		}
		sections[sec.ID] = saved.ID
	}
	remap := func(t services.Target) services.Target {
		if id, ok := t.SectionID(); ok {
			return services.GoTo(sections[id])
		}
		return t
	}

	questions := make(map[int64]int64, len(survey.Questions))
	for _, q := range survey.Questions {
		stored := q
		stored.SurveyID = surveyID
		stored.EnableBranching = false
		stored.BranchConfig = nil
		if q.SectionID != nil {
			id := sections[*q.SectionID]
			stored.SectionID = &id
		}
		saved, err := w.CreateQuestion(ctx, stored)
		if err != nil {
			return nil, err
		}
		questions[q.ID] = saved.ID
	}

	var cycles []services.Cycle
	for _, q := range survey.Questions {
		if !q.EnableBranching {
			continue
		}
		cfg := make(services.BranchConfig, len(q.BranchConfig))
		for k, t := range q.BranchConfig {
			cfg[k] = remap(t)
		}
		_, found, err := w.SaveBranchConfig(ctx, questions[q.ID], true, cfg)
		if err != nil {
			return nil, err
		}
		cycles = found
	}

	for _, sec := range survey.OrderedSections() {
		for _, rule := range sec.Rules {
			stored := rule
			stored.ID = 0
			stored.SectionID = sections[rule.SectionID]
			stored.ConditionQuestionID = questions[rule.ConditionQuestionID]
			if rule.NextSectionID != nil {
				id := sections[*rule.NextSectionID]
				stored.NextSectionID = &id
			}
			_, found, err := w.SaveBranchRule(ctx, stored)
			if err != nil {
				return nil, err
			}
			cycles = found
		}
	}

	return cycles, nil
}
