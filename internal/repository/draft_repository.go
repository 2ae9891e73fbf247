package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paulexconde/surveyflow/internal/models"
	"github.com/paulexconde/surveyflow/internal/pkg/paginator"
	"github.com/paulexconde/surveyflow/internal/pkg/store"
	"github.com/paulexconde/surveyflow/internal/services"
)

const draftColumns = "id, survey_id, user_id, session_key, respondent_key, data, current_section_id, transitions, expires_at, created_at, updated_at"

// upsertDraftQuery creates the draft or merges into it in one statement. A draft that expired
// before this save starts over instead of being merged into.
const upsertDraftQuery = `
INSERT INTO survey_drafts
	(survey_id, user_id, session_key, respondent_key, data, current_section_id, transitions, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $9)
ON CONFLICT (survey_id, respondent_key) DO UPDATE SET
	data = CASE WHEN survey_drafts.expires_at <= EXCLUDED.updated_at
		THEN EXCLUDED.data ELSE survey_drafts.data || EXCLUDED.data END,
	transitions = CASE WHEN survey_drafts.expires_at <= EXCLUDED.updated_at
		THEN EXCLUDED.transitions ELSE survey_drafts.transitions + EXCLUDED.transitions END,
	created_at = CASE WHEN survey_drafts.expires_at <= EXCLUDED.updated_at
		THEN EXCLUDED.created_at ELSE survey_drafts.created_at END,
	current_section_id = EXCLUDED.current_section_id,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at
RETURNING ` + draftColumns

// DraftRepository stores drafts in postgres.
type DraftRepository struct {
	drafts    store.Datastorer[models.Draft]
	paginator paginator.Paginator[models.Draft]
}

func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	ds := store.NewDataStore[models.Draft](db, "survey_drafts")
	return &DraftRepository{
		drafts:    ds,
		paginator: paginator.NewPaginator(ds),
	}
}

func (r *DraftRepository) UpsertDraft(ctx context.Context, in services.DraftUpsert) (*services.Draft, error) {
	data, err := json.Marshal(in.Data)
	if err != nil {
		return nil, fmt.Errorf("encode draft data: %w", err)
	}

	var sessionKey sql.NullString
	if in.Respondent.UserID == nil {
		sessionKey = sql.NullString{String: in.Respondent.SessionKey, Valid: true}
	}
	transitions := 0
	if in.CountTransition {
		transitions = 1
	}

	var row models.Draft
	if err := r.drafts.Base().GetContext(ctx, &row, upsertDraftQuery,
		in.SurveyID, in.Respondent.UserID, sessionKey, in.Respondent.Key(), string(data),
		in.CurrentSectionID, transitions, in.ExpiresAt, in.Now); err != nil {
		return nil, err
	}
	return row.ToDomain()
}

func (r *DraftRepository) FindDraft(ctx context.Context, surveyID int64, who services.Respondent, now time.Time) (*services.Draft, error) {
	row, err := r.drafts.Get(ctx,
		"SELECT "+draftColumns+" FROM survey_drafts WHERE survey_id = $1 AND respondent_key = $2 AND expires_at > $3",
		surveyID, who.Key(), now)
	if err != nil {
		return nil, err
	}
	return row.ToDomain()
}

func (r *DraftRepository) DeleteDraft(ctx context.Context, surveyID int64, who services.Respondent) (bool, error) {
	res, err := r.drafts.Base().ExecContext(ctx,
		"DELETE FROM survey_drafts WHERE survey_id = $1 AND respondent_key = $2", surveyID, who.Key())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DraftRepository) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.drafts.Base().ExecContext(ctx, "DELETE FROM survey_drafts WHERE expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListDrafts pages through a survey's drafts, most recently updated first. Expired drafts that
// were not swept yet are included.
func (r *DraftRepository) ListDrafts(ctx context.Context, surveyID int64, page, limit int) (*paginator.Page[models.Draft], error) {
	res, err := r.paginator.PaginateQuery(ctx,
		"SELECT "+draftColumns+" FROM survey_drafts WHERE survey_id = $1 ORDER BY updated_at DESC, id DESC",
		[]any{surveyID}, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list drafts of survey %d: %w", surveyID, err)
	}
	return res, nil
}
