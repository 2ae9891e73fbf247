package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/choicekey"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

const (
	headerUserID     = "X-User-ID"
	headerSessionKey = "X-Session-Key"
)

// SurveyLoader returns a survey with its sections, questions and branch rules.
type SurveyLoader interface {
	LoadSurvey(ctx context.Context, id int64) (*services.Survey, error)
}

type FlowHandler struct {
	surveys SurveyLoader
	flow    *services.FlowService
	drafts  *services.DraftService
	log     *logger.Logger
}

func NewFlowHandler(surveys SurveyLoader, flow *services.FlowService, drafts *services.DraftService, log *logger.Logger) *FlowHandler {
	return &FlowHandler{
		surveys: surveys,
		flow:    flow,
		drafts:  drafts,
		log:     log.With("handler", "FlowHandler"),
	}
}

func (h *FlowHandler) Register(r gin.IRouter) {
	r.GET("/surveys/:id/section", h.Current)
	r.POST("/surveys/:id/step", h.Step)
	r.DELETE("/surveys/:id/draft", h.DeleteDraft)
	r.GET("/surveys/:id/cycles", h.Cycles)
	r.POST("/choice-keys", h.ChoiceKeys)
}

// GET /api/v1/surveys/:id/section?section_id=
func (h *FlowHandler) Current(c *gin.Context) {
	survey, ok := h.loadSurvey(c)
	if !ok {
		return
	}
	who, err := respondent(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_respondent", err)
		return
	}

	var requested *int64
	if raw := c.Query("section_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_section_id", fmt.Errorf("section_id must be an integer"))
			return
		}
		requested = &id
	}

	view, err := h.flow.Current(c.Request.Context(), survey, who, requested)
	if err != nil {
		respondFault(c, h.log, "get_section_failed", err)
		return
	}
	RespondOK(c, view)
}

type stepRequest struct {
	SectionID *int64           `json:"section_id"`
	Action    string           `json:"action" binding:"omitempty,oneof=save_draft previous next submit"`
	Answers   services.Answers `json:"answers"`
}

// POST /api/v1/surveys/:id/step
func (h *FlowHandler) Step(c *gin.Context) {
	survey, ok := h.loadSurvey(c)
	if !ok {
		return
	}
	who, err := respondent(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_respondent", err)
		return
	}

	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := services.ParseAction(req.Action)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_action", err)
		return
	}

	result, err := h.flow.Step(c.Request.Context(), survey, services.StepRequest{
		Respondent: who,
		SectionID:  req.SectionID,
		Answers:    req.Answers,
		Action:     action,
	})
	if err != nil {
		respondFault(c, h.log, "step_failed", err)
		return
	}
	RespondOK(c, result)
}

// DELETE /api/v1/surveys/:id/draft
func (h *FlowHandler) DeleteDraft(c *gin.Context) {
	surveyID, ok := surveyIDParam(c)
	if !ok {
		return
	}
	who, err := respondent(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_respondent", err)
		return
	}

	deleted, err := h.drafts.DeleteDraft(c.Request.Context(), surveyID, who)
	if err != nil {
		respondFault(c, h.log, "delete_draft_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": deleted})
}

type cycleResponse struct {
	SectionID   int64   `json:"section_id"`
	SectionName string  `json:"section_name"`
	Path        []int64 `json:"path"`
}

// GET /api/v1/surveys/:id/cycles
func (h *FlowHandler) Cycles(c *gin.Context) {
	survey, ok := h.loadSurvey(c)
	if !ok {
		return
	}

	cycles := services.DetectCycles(survey)
	out := make([]cycleResponse, 0, len(cycles))
	for _, cy := range cycles {
		out = append(out, cycleResponse{SectionID: cy.Section.ID, SectionName: cy.Section.Name, Path: cy.Path})
	}
	RespondOK(c, gin.H{"cycles": out})
}

type choiceKeysRequest struct {
	Choices []string `json:"choices" binding:"required_without=Raw"`
	// Raw is a comma-separated choices field, e.g. "18-25, 26-35, 36+".
	Raw string `json:"raw"`
}

type choiceKey struct {
	Choice string        `json:"choice"`
	Key    choicekey.Key `json:"key"`
}

// POST /api/v1/choice-keys
func (h *FlowHandler) ChoiceKeys(c *gin.Context) {
	var req choiceKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	choices := req.Choices
	if len(choices) == 0 {
		choices = choicekey.Split(req.Raw)
	}
	out := make([]choiceKey, len(choices))
	for i, ch := range choices {
		out[i] = choiceKey{Choice: ch, Key: choicekey.Normalize(ch)}
	}
	RespondOK(c, gin.H{"keys": out})
}

func (h *FlowHandler) loadSurvey(c *gin.Context) (*services.Survey, bool) {
	id, ok := surveyIDParam(c)
	if !ok {
		return nil, false
	}
	survey, err := h.surveys.LoadSurvey(c.Request.Context(), id)
	if err != nil {
		respondFault(c, h.log, "load_survey_failed", err)
		return nil, false
	}
	return survey, true
}

func surveyIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_survey_id", fmt.Errorf("survey id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// respondent reads the respondent from X-User-ID or X-Session-Key. Sending neither or both
// is left to the draft service to reject.
func respondent(c *gin.Context) (services.Respondent, error) {
	var who services.Respondent
	if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return who, fault.NewClientError(headerUserID+" must be an integer", fault.ErrInvalidIdentity)
		}
		who.UserID = &id
	}
	who.SessionKey = strings.TrimSpace(c.GetHeader(headerSessionKey))
	return who, nil
}
