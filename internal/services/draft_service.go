package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

// DefaultDraftTTL is how long a draft lives after its last save.
const DefaultDraftTTL = 30 * 24 * time.Hour

// MaxSessionKeyLength is the longest anonymous session key a draft accepts, in characters.
const MaxSessionKeyLength = 40

// Respondent identifies who a draft belongs to: an authenticated user or an anonymous
// session, never both.
type Respondent struct {
	UserID     *int64 `json:"user_id,omitempty" validate:"required_without=SessionKey,excluded_with=SessionKey"`
	SessionKey string `json:"session_key,omitempty" validate:"required_without=UserID,excluded_with=UserID"`
}

// UserRespondent identifies an authenticated user.
func UserRespondent(id int64) Respondent { return Respondent{UserID: &id} }

// SessionRespondent identifies an anonymous session.
func SessionRespondent(key string) Respondent { return Respondent{SessionKey: key} }

// Key is the storage key for the respondent, e.g. "user:12" or "session:abc".
func (r Respondent) Key() string {
	if r.UserID != nil {
		return fmt.Sprintf("user:%d", *r.UserID)
	}
	return "session:" + r.SessionKey
}

// Draft is a respondent's saved, not yet submitted progress through a survey.
type Draft struct {
	ID               int64      `json:"id"`
	SurveyID         int64      `json:"survey_id"`
	Respondent       Respondent `json:"respondent"`
	Data             Answers    `json:"data"`
	CurrentSectionID *int64     `json:"current_section_id"`
	// Transitions counts forward section moves made since the draft was created.
	Transitions int       `json:"transitions"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Expired reports whether the draft is no longer visible at now.
func (d *Draft) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// DraftUpsert is one save of a draft. Stores must apply it atomically: create the draft or
// shallow-merge Data into the existing one, overwrite CurrentSectionID and ExpiresAt, and add
// one to Transitions when CountTransition is set. A draft that expired before Now is replaced
// rather than merged into.
type DraftUpsert struct {
	SurveyID         int64
	Respondent       Respondent
	Data             Answers
	CurrentSectionID *int64
	CountTransition  bool
	ExpiresAt        time.Time
	Now              time.Time
}

// DraftStore persists drafts. FindDraft returns fault.ErrNotFound for missing or expired drafts.
type DraftStore interface {
	UpsertDraft(ctx context.Context, in DraftUpsert) (*Draft, error)
	FindDraft(ctx context.Context, surveyID int64, who Respondent, now time.Time) (*Draft, error)
	DeleteDraft(ctx context.Context, surveyID int64, who Respondent) (bool, error)
	DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error)
}

// Handles saving and resuming survey progress.
type DraftService struct {
	store    DraftStore
	ttl      time.Duration
	now      func() time.Time
	validate *validator.Validate
	log      *logger.Logger
}

type DraftOption func(*DraftService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) DraftOption {
	return func(s *DraftService) { s.now = now }
}

// WithTTL sets the draft lifetime; non-positive values keep DefaultDraftTTL.
func WithTTL(ttl time.Duration) DraftOption {
	return func(s *DraftService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewDraftService(store DraftStore, log *logger.Logger, opts ...DraftOption) *DraftService {
	s := &DraftService{
		store:    store,
		ttl:      DefaultDraftTTL,
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With("service", "DraftService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveDraft creates the respondent's draft or merges answers into the existing one, and
// pushes its expiry TTL into the future.
func (s *DraftService) SaveDraft(ctx context.Context, surveyID int64, answers Answers, who Respondent, currentSectionID *int64) (*Draft, error) {
	return s.save(ctx, surveyID, answers, who, currentSectionID, false)
}

func (s *DraftService) save(ctx context.Context, surveyID int64, answers Answers, who Respondent, currentSectionID *int64, countTransition bool) (*Draft, error) {
	if err := s.checkRespondent(who); err != nil {
		return nil, err
	}
	if answers == nil {
		answers = Answers{}
	}

	now := s.now()
	draft, err := s.store.UpsertDraft(ctx, DraftUpsert{
		SurveyID:         surveyID,
		Respondent:       who,
		Data:             answers,
		CurrentSectionID: currentSectionID,
		CountTransition:  countTransition,
		ExpiresAt:        now.Add(s.ttl),
		Now:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}

	s.log.Debug("draft saved", "survey_id", surveyID, "respondent", who.Key(), "answers", len(draft.Data))
	return draft, nil
}

// LoadDraft returns the respondent's unexpired draft, or nil when there is none.
func (s *DraftService) LoadDraft(ctx context.Context, surveyID int64, who Respondent) (*Draft, error) {
	if err := s.checkRespondent(who); err != nil {
		return nil, err
	}

	draft, err := s.store.FindDraft(ctx, surveyID, who, s.now())
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return draft, nil
}

// DeleteDraft removes the respondent's draft. Deleting a missing draft is not an error.
func (s *DraftService) DeleteDraft(ctx context.Context, surveyID int64, who Respondent) (bool, error) {
	if err := s.checkRespondent(who); err != nil {
		return false, err
	}

	deleted, err := s.store.DeleteDraft(ctx, surveyID, who)
	if err != nil {
		return false, fmt.Errorf("delete draft: %w", err)
	}
	return deleted, nil
}

// CleanupExpiredDrafts deletes every draft whose expiry has passed and returns how many.
func (s *DraftService) CleanupExpiredDrafts(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredDrafts(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired drafts: %w", err)
	}
	s.log.Info("expired drafts cleaned up", "deleted", n)
	return n, nil
}

func (s *DraftService) checkRespondent(who Respondent) error {
	if err := s.validate.Struct(who); err != nil {
		return fault.NewClientError(err.Error(), fault.ErrInvalidIdentity)
	}
	if utf8.RuneCountInString(who.SessionKey) > MaxSessionKeyLength {
		return fault.NewClientError(fmt.Sprintf("session key exceeds %d characters", MaxSessionKeyLength), fault.ErrSessionKeyTooLong)
	}
	return nil
}
