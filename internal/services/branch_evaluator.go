package services

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/paulexconde/surveyflow/internal/logger"
)

// The environment an `expression` rule is evaluated against.
//
// `answer` is the stringified answer to the rule's condition question and `answers` holds
// every collected answer keyed "q<question id>", e.g. `answer == "yes" && answers.q4 > 3`.
type expressionEnv struct {
	Answer  string         `expr:"answer"`
	Answers map[string]any `expr:"answers"`
}

// BranchEvaluator decides where a respondent goes after completing a section.
//
// Question-level branch configurations win over section rules. A target that no longer
// resolves to a section of the survey is logged and skipped, never returned as an error.
type BranchEvaluator struct {
	log *logger.Logger

	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewBranchEvaluator(log *logger.Logger) *BranchEvaluator {
	return &BranchEvaluator{
		log:      log.With("service", "BranchEvaluator"),
		programs: make(map[string]*vm.Program),
	}
}

// Evaluate returns GoToSection, EndOfSurvey or NoDecision for the given section and answers.
func (e *BranchEvaluator) Evaluate(survey *Survey, section *Section, answers Answers) Decision {
	if section == nil {
		return Decision{Kind: NoDecision}
	}
	if d, ok := e.questionDecision(survey, section, answers); ok {
		return d
	}
	if d, ok := e.ruleDecision(survey, section, answers); ok {
		return d
	}
	return Decision{Kind: NoDecision}
}

func (e *BranchEvaluator) questionDecision(survey *Survey, section *Section, answers Answers) (Decision, bool) {
	for _, q := range survey.QuestionsIn(section.ID) {
		if !q.Branches() {
			continue
		}
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		target, ok := q.BranchConfig.Lookup(stringifyAnswer(answer))
		if !ok {
			continue
		}
		if d, ok := e.resolve(survey, target); ok {
			return d, true
		}
		e.log.Warn("branch target section not found, skipping question",
			"survey_id", survey.ID, "section_id", section.ID, "question_id", q.ID, "target", target.String())
	}
	return Decision{}, false
}

func (e *BranchEvaluator) ruleDecision(survey *Survey, section *Section, answers Answers) (Decision, bool) {
	for _, rule := range sortedRules(section.Rules) {
		answer, ok := answers[rule.ConditionQuestionID]
		if !ok {
			continue
		}
		if !e.matches(rule, answer, answers) {
			continue
		}
		if d, ok := e.resolve(survey, rule.Target()); ok {
			return d, true
		}
		e.log.Warn("branch rule target section not found, skipping rule",
			"survey_id", survey.ID, "section_id", section.ID, "rule_id", rule.ID, "target", rule.Target().String())
	}
	return Decision{}, false
}

func (e *BranchEvaluator) resolve(survey *Survey, target Target) (Decision, bool) {
	id, ok := target.SectionID()
	if !ok {
		return Decision{Kind: EndOfSurvey}, true
	}
	if sec := survey.Section(id); sec != nil {
		return Decision{Kind: GoToSection, Section: sec}, true
	}
	return Decision{}, false
}

func (e *BranchEvaluator) matches(rule BranchRule, answer any, answers Answers) bool {
	value := stringifyAnswer(answer)

	switch rule.Operator {
	case OpEquals:
		return normalizeValue(value) == normalizeValue(rule.ConditionValue)
	case OpNotEquals:
		return normalizeValue(value) != normalizeValue(rule.ConditionValue)
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(rule.ConditionValue))
	case OpIn:
		needle := normalizeValue(value)
		for _, token := range strings.Split(rule.ConditionValue, ",") {
			if normalizeValue(token) == needle {
				return true
			}
		}
		return false
	case OpExpression:
		program, err := e.program(rule.ConditionValue)
		if err != nil {
			e.log.Warn("branch rule expression does not compile", "rule_id", rule.ID, "error", err)
			return false
		}
		match, err := evaluateExpression(program, expressionEnv{Answer: value, Answers: expressionAnswers(answers)})
		if err != nil {
			e.log.Warn("branch rule expression failed", "rule_id", rule.ID, "error", err)
			return false
		}
		return match
	default:
		e.log.Warn("unknown branch rule operator", "rule_id", rule.ID, "operator", string(rule.Operator))
		return false
	}
}

func (e *BranchEvaluator) program(source string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[source]; ok {
		return p, nil
	}
	p, err := compileExpression(source)
	if err != nil {
		return nil, err
	}
	e.programs[source] = p
	return p, nil
}

func compileExpression(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.Env(expressionEnv{}), expr.AsBool())
}

func evaluateExpression(program *vm.Program, env expressionEnv) (bool, error) {
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, errors.New("expression did not return a boolean")
	}

	return result, nil
}

func expressionAnswers(answers Answers) map[string]any {
	out := make(map[string]any, len(answers))
	for id, v := range answers {
		out["q"+strconv.FormatInt(id, 10)] = v
	}
	return out
}

// sortedRules orders rules by ascending priority, ties broken by id.
func sortedRules(rules []BranchRule) []BranchRule {
	out := make([]BranchRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stringifyAnswer renders an answer the way rule operators compare it. Multi-value answers
// are joined with ", ".
func stringifyAnswer(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = stringifyAnswer(p)
		}
		return strings.Join(parts, ", ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
