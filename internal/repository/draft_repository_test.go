package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/internal/testutil"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

func TestDraftRepository(t *testing.T) {
	db := testutil.Postgres(t)
	surveys := NewSurveyRepository(db, logger.Nop())
	repo := NewDraftRepository(db)
	ctx := context.Background()

	survey, err := surveys.CreateSurvey(ctx, "Drafts", "")
	require.NoError(t, err)
	section, err := surveys.InsertSection(ctx, survey.ID, -1, "Only", "")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := services.UserRespondent(7)
	session := services.SessionRespondent("anon-1")

	t.Run("merges answers into the existing draft", func(t *testing.T) {
		first, err := repo.UpsertDraft(ctx, services.DraftUpsert{
			SurveyID:   survey.ID,
			Respondent: user,
			Data:       services.Answers{1: "a", 2: "b"},
			ExpiresAt:  now.Add(time.Hour),
			Now:        now,
		})
		require.NoError(t, err)
		assert.NotZero(t, first.ID)

		second, err := repo.UpsertDraft(ctx, services.DraftUpsert{
			SurveyID:         survey.ID,
			Respondent:       user,
			Data:             services.Answers{2: "c"},
			CurrentSectionID: &section.ID,
			CountTransition:  true,
			ExpiresAt:        now.Add(2 * time.Hour),
			Now:              now.Add(time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, services.Answers{1: "a", 2: "c"}, second.Data)
		assert.Equal(t, section.ID, *second.CurrentSectionID)
		assert.Equal(t, 1, second.Transitions)
		assert.True(t, second.ExpiresAt.Equal(now.Add(2*time.Hour)))
		assert.True(t, second.CreatedAt.Equal(now))
	})

	t.Run("keeps respondents apart", func(t *testing.T) {
		d, err := repo.UpsertDraft(ctx, services.DraftUpsert{
			SurveyID:   survey.ID,
			Respondent: session,
			Data:       services.Answers{1: "z"},
			ExpiresAt:  now.Add(time.Hour),
			Now:        now,
		})
		require.NoError(t, err)
		assert.Equal(t, session, d.Respondent)

		found, err := repo.FindDraft(ctx, survey.ID, user, now)
		require.NoError(t, err)
		assert.Equal(t, "a", found.Data[1])
	})

	t.Run("expired drafts are hidden and replaced", func(t *testing.T) {
		later := now.Add(3 * time.Hour)
		_, err := repo.FindDraft(ctx, survey.ID, user, later)
		assert.ErrorIs(t, err, fault.ErrNotFound)

		d, err := repo.UpsertDraft(ctx, services.DraftUpsert{
			SurveyID:   survey.ID,
			Respondent: user,
			Data:       services.Answers{3: "fresh"},
			ExpiresAt:  later.Add(time.Hour),
			Now:        later,
		})
		require.NoError(t, err)
		assert.Equal(t, services.Answers{3: "fresh"}, d.Data)
		assert.Zero(t, d.Transitions)
		assert.Nil(t, d.CurrentSectionID)
		assert.True(t, d.CreatedAt.Equal(later))
	})

	t.Run("lists drafts newest first", func(t *testing.T) {
		page, err := repo.ListDrafts(ctx, survey.ID, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, user.Key(), page.Items[0].RespondentKey)
		assert.Equal(t, 2, page.TotalItems)
	})

	t.Run("sweeps expired drafts", func(t *testing.T) {
		n, err := repo.DeleteExpiredDrafts(ctx, now.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindDraft(ctx, survey.ID, session, now)
		assert.ErrorIs(t, err, fault.ErrNotFound)
	})

	t.Run("delete reports whether a draft existed", func(t *testing.T) {
		deleted, err := repo.DeleteDraft(ctx, survey.ID, user)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteDraft(ctx, survey.ID, user)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("parallel saves share one draft", func(t *testing.T) {
		racer := services.SessionRespondent("racer")
		const saves = 10

		var wg sync.WaitGroup
		errs := make(chan error, saves)
		for i := 1; i <= saves; i++ {
			wg.Add(1)
			go func(qid int64) {
				defer wg.Done()
				_, err := repo.UpsertDraft(ctx, services.DraftUpsert{
					SurveyID:        survey.ID,
					Respondent:      racer,
					Data:            services.Answers{qid: "v"},
					CountTransition: true,
					ExpiresAt:       now.Add(time.Hour),
					Now:             now,
				})
				errs <- err
			}(int64(i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var rows int
		require.NoError(t, db.GetContext(ctx, &rows,
			"SELECT count(*) FROM survey_drafts WHERE survey_id = $1 AND respondent_key = $2", survey.ID, racer.Key()))
		assert.Equal(t, 1, rows)

		d, err := repo.FindDraft(ctx, survey.ID, racer, now)
		require.NoError(t, err)
		assert.Len(t, d.Data, saves)
		assert.Equal(t, saves, d.Transitions)
	})
}
