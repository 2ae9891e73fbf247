package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/paulexconde/surveyflow/pkg/fault"
)

type dataStore[T any] struct {
	db         *sqlx.DB
	tablename  string
	hooks      Hooks
	mu         sync.RWMutex
	dtoFactory func() any
}

func NewDataStore[T any](db *sqlx.DB, tablename string, dtoFactory ...func() any) Datastorer[T] {
	var factory func() any

	if len(dtoFactory) > 0 {
		factory = dtoFactory[0]
	}

	return &dataStore[T]{
		db:         db,
		tablename:  tablename,
		dtoFactory: factory,
	}
}

func (s *dataStore[T]) Base() *sqlx.DB {
	return s.db
}

func (s *dataStore[T]) SetHooks(hooks Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks.PreSave = append(s.hooks.PreSave, hooks.PreSave...)
	s.hooks.PostSave = append(s.hooks.PostSave, hooks.PostSave...)
	s.hooks.PreDelete = append(s.hooks.PreDelete, hooks.PreDelete...)
	s.hooks.PostDelete = append(s.hooks.PostDelete, hooks.PostDelete...)
}

func (s *dataStore[T]) currentHooks() Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

func (s *dataStore[T]) QueryRow(ctx context.Context, query string, args ...any) (any, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var result any

	if err := row.Scan(&result); err != nil {
		return nil, mapError(err)
	}

	return result, nil
}

func (s *dataStore[T]) Get(ctx context.Context, query string, args ...any) (*T, error) {
	var result T

	if err := s.db.GetContext(ctx, &result, query, args...); err != nil {
		return nil, mapError(err)
	}

	return &result, nil
}

func (s *dataStore[T]) Select(ctx context.Context, query string, args ...any) ([]T, error) {
	results := []T{}

	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []T{}, nil
		}
		return nil, err
	}

	return results, nil
}

func (s *dataStore[T]) Create(ctx context.Context, data DTO) (any, error) {
	hooks := s.currentHooks()
	var model any

	err := s.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, hook := range hooks.PreSave {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := hook(ctx, tx, data, true); err != nil {
				return err
			}
		}

		// Columns are read after the hooks since they may fill in the DTO.
		columns, placeholders := getStructFieldsFromDTO(data)
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", s.tablename, columns, placeholders)

		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		var id int64
		if err := stmt.QueryRowContext(ctx, data).Scan(&id); err != nil {
			return mapError(err)
		}

		model = data.ToModel(id)

		for _, hook := range hooks.PostSave {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := hook(ctx, tx, data, model, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return model, nil
}

func (s *dataStore[T]) Update(ctx context.Context, id int64, data DTO) (any, error) {
	hooks := s.currentHooks()
	var updated any

	err := s.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, hook := range hooks.PreSave {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := hook(ctx, tx, data, false); err != nil {
				return err
			}
		}

		params := map[string]any{"id": id}
		setClause := getNonEmptyFieldsFromDTO(data, params)
		if setClause == "" {
			return fmt.Errorf("no fields to update")
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", s.tablename, setClause)

		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		res, err := stmt.ExecContext(ctx, params)
		if err != nil {
			return mapError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fault.ErrNotFound
		}

		updated, err = s.getByIDBase(ctx, tx, id)
		if err != nil {
			return err
		}

		for _, hook := range hooks.PostSave {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := hook(ctx, tx, data, updated, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *dataStore[T]) DeleteWhere(ctx context.Context, column string, value any) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.tablename, column)

	res, err := s.db.ExecContext(ctx, query, value)
	if err != nil {
		return 0, mapError(err)
	}

	return res.RowsAffected()
}

func (s *dataStore[T]) Delete(ctx context.Context, id int64) error {
	hooks := s.currentHooks()

	return s.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, hook := range hooks.PreDelete {
			if err := hook(ctx, tx, id); err != nil {
				return err
			}
		}

		query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tablename)

		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return mapError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fault.ErrNotFound
		}

		for _, hook := range hooks.PostDelete {
			if err := hook(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *dataStore[T]) BulkUpdate(ctx context.Context, query string, args ...any) error {
	return s.InTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return mapError(err)
	})
}

func (s *dataStore[T]) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return fn(tx)
}

func (s *dataStore[T]) getByIDBase(ctx context.Context, tx *sqlx.Tx, id int64) (any, error) {
	var instance any
	if s.dtoFactory != nil {
		instance = s.dtoFactory()
	} else {
		instance = new(T)
	}

	fields := strings.Join(getStructFieldNamesFromInstance(instance), ", ")
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", fields, s.tablename)

	if err := tx.GetContext(ctx, instance, query, id); err != nil {
		return nil, mapError(err)
	}

	return instance, nil
}

// mapError translates driver errors into fault sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fault.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", fault.ErrUniqueViolation, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", fault.ErrForeignKeyViolation, pqErr.Constraint)
		}
	}
	return err
}
