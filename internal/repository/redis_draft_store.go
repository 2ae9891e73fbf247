package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

// Hash fields of a draft. Answers are stored one field per question as "a:<question id>" with
// a JSON encoded value, so a save merges with a single HSET.
const (
	fieldUserID      = "user_id"
	fieldSessionKey  = "session_key"
	fieldSection     = "current_section_id"
	fieldTransitions = "transitions"
	fieldExpiresAt   = "expires_at"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	answerPrefix     = "a:"
)

// maxUpsertAttempts bounds the WATCH retries when concurrent saves touch the same draft.
const maxUpsertAttempts = 5

// RedisDraftStore keeps each draft in a hash that redis expires on its own. A save that finds
// a draft past its expires_at replaces it, whether or not redis has evicted it yet. Drafts
// stored here have no numeric id.
type RedisDraftStore struct {
	rdb    *redis.Client
	prefix string
	log    *logger.Logger
}

func NewRedisDraftStore(rdb *redis.Client, prefix string, log *logger.Logger) *RedisDraftStore {
	if prefix == "" {
		prefix = "surveyflow:draft"
	}
	return &RedisDraftStore{
		rdb:    rdb,
		prefix: prefix,
		log:    log.With("repository", "RedisDraftStore"),
	}
}

func (s *RedisDraftStore) key(surveyID int64, who services.Respondent) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, surveyID, who.Key())
}

func (s *RedisDraftStore) UpsertDraft(ctx context.Context, in services.DraftUpsert) (*services.Draft, error) {
	key := s.key(in.SurveyID, in.Respondent)

	values := map[string]any{
		fieldExpiresAt: in.ExpiresAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: in.Now.UTC().Format(time.RFC3339Nano),
	}
	if in.Respondent.UserID != nil {
		values[fieldUserID] = strconv.FormatInt(*in.Respondent.UserID, 10)
	} else {
		values[fieldSessionKey] = in.Respondent.SessionKey
	}
	if in.CurrentSectionID != nil {
		values[fieldSection] = strconv.FormatInt(*in.CurrentSectionID, 10)
	}
	for qid, v := range in.Data {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode answer to question %d: %w", qid, err)
		}
		values[answerPrefix+strconv.FormatInt(qid, 10)] = string(raw)
	}

	transitions := int64(0)
	if in.CountTransition {
		transitions = 1
	}

	var all *redis.MapStringStringCmd
	upsert := func(tx *redis.Tx) error {
		expired, err := storedDraftExpired(ctx, tx, key, in.Now)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if expired {
				pipe.Del(ctx, key)
			}
			pipe.HSet(ctx, key, values)
			if in.CurrentSectionID == nil {
				pipe.HDel(ctx, key, fieldSection)
			}
			pipe.HSetNX(ctx, key, fieldCreatedAt, in.Now.UTC().Format(time.RFC3339Nano))
			pipe.HIncrBy(ctx, key, fieldTransitions, transitions)
			pipe.PExpireAt(ctx, key, in.ExpiresAt)
			all = pipe.HGetAll(ctx, key)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err := s.rdb.Watch(ctx, upsert, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis upsert draft %s: %w", key, err)
		}
		return decodeDraft(in.SurveyID, all.Val())
	}
	return nil, fmt.Errorf("redis upsert draft %s: %w", key, redis.TxFailedErr)
}

// storedDraftExpired reports whether the draft under key has passed its expires_at as of now,
// even if redis has not evicted it yet.
func storedDraftExpired(ctx context.Context, tx *redis.Tx, key string, now time.Time) (bool, error) {
	raw, err := tx.HGet(ctx, key, fieldExpiresAt).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false, fmt.Errorf("decode draft field %q: %w", fieldExpiresAt, err)
	}
	return !expiresAt.After(now), nil
}

func (s *RedisDraftStore) FindDraft(ctx context.Context, surveyID int64, who services.Respondent, now time.Time) (*services.Draft, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(surveyID, who)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis find draft: %w", err)
	}
	if len(fields) == 0 {
		return nil, fault.ErrNotFound
	}

	d, err := decodeDraft(surveyID, fields)
	if err != nil {
		return nil, err
	}
	if d.Expired(now) {
		return nil, fault.ErrNotFound
	}
	return d, nil
}

func (s *RedisDraftStore) DeleteDraft(ctx context.Context, surveyID int64, who services.Respondent) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(surveyID, who)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete draft: %w", err)
	}
	return n > 0, nil
}

// DeleteExpiredDrafts is a no-op: redis removes expired drafts itself.
func (s *RedisDraftStore) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	s.log.Debug("expired drafts are evicted by redis, nothing to sweep")
	return 0, nil
}

func decodeDraft(surveyID int64, fields map[string]string) (*services.Draft, error) {
	d := &services.Draft{SurveyID: surveyID, Data: services.Answers{}}

	for field, value := range fields {
		var err error
		switch {
		case strings.HasPrefix(field, answerPrefix):
			var qid int64
			qid, err = strconv.ParseInt(strings.TrimPrefix(field, answerPrefix), 10, 64)
			if err == nil {
				var v any
				err = json.Unmarshal([]byte(value), &v)
				d.Data[qid] = v
			}
		case field == fieldUserID:
			var uid int64
			uid, err = strconv.ParseInt(value, 10, 64)
			d.Respondent.UserID = &uid
		case field == fieldSessionKey:
			d.Respondent.SessionKey = value
		case field == fieldSection:
			var sid int64
			sid, err = strconv.ParseInt(value, 10, 64)
			d.CurrentSectionID = &sid
		case field == fieldTransitions:
			d.Transitions, err = strconv.Atoi(value)
		case field == fieldExpiresAt:
			d.ExpiresAt, err = time.Parse(time.RFC3339Nano, value)
		case field == fieldCreatedAt:
			d.CreatedAt, err = time.Parse(time.RFC3339Nano, value)
		case field == fieldUpdatedAt:
			d.UpdatedAt, err = time.Parse(time.RFC3339Nano, value)
		}
		if err != nil {
			return nil, fmt.Errorf("decode draft field %q: %w", field, err)
		}
	}

	return d, nil
}
