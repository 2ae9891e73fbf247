package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulexconde/surveyflow/pkg/fault"
)

// MemoryDraftStore keeps drafts in process memory. It backs development servers and tests;
// drafts are lost on restart.
type MemoryDraftStore struct {
	mu     sync.Mutex
	nextID int64
	drafts map[string]*Draft
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[string]*Draft)}
}

func memoryKey(surveyID int64, who Respondent) string {
	return fmt.Sprintf("%d|%s", surveyID, who.Key())
}

func (m *MemoryDraftStore) UpsertDraft(ctx context.Context, in DraftUpsert) (*Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(in.SurveyID, in.Respondent)
	d, ok := m.drafts[key]
	if !ok || d.Expired(in.Now) {
		m.nextID++
		d = &Draft{
			ID:         m.nextID,
			SurveyID:   in.SurveyID,
			Respondent: in.Respondent,
			Data:       Answers{},
			CreatedAt:  in.Now,
		}
		m.drafts[key] = d
	}

	for k, v := range in.Data {
		d.Data[k] = v
	}
	d.CurrentSectionID = copyID(in.CurrentSectionID)
	d.ExpiresAt = in.ExpiresAt
	d.UpdatedAt = in.Now
	if in.CountTransition {
		d.Transitions++
	}

	return cloneDraft(d), nil
}

func (m *MemoryDraftStore) FindDraft(ctx context.Context, surveyID int64, who Respondent, now time.Time) (*Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[memoryKey(surveyID, who)]
	if !ok || d.Expired(now) {
		return nil, fault.ErrNotFound
	}
	return cloneDraft(d), nil
}

func (m *MemoryDraftStore) DeleteDraft(ctx context.Context, surveyID int64, who Respondent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(surveyID, who)
	_, ok := m.drafts[key]
	delete(m.drafts, key)
	return ok, nil
}

func (m *MemoryDraftStore) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, d := range m.drafts {
		if d.Expired(now) {
			delete(m.drafts, key)
			n++
		}
	}
	return n, nil
}

func cloneDraft(d *Draft) *Draft {
	c := *d
	c.Data = Answers{}.Merge(d.Data)
	c.CurrentSectionID = copyID(d.CurrentSectionID)
	if d.Respondent.UserID != nil {
		c.Respondent.UserID = copyID(d.Respondent.UserID)
	}
	return &c
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
