package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
)

// DTO is the write shape of a row. Only fields with a `db` tag are persisted.
type DTO interface {
	// ToModel builds the domain value for the row that was stored under id.
	ToModel(id int64) any
}

// Hooks for database operations. They run inside the transaction of the write.
type Hooks struct {
	PreSave    []func(ctx context.Context, tx *sqlx.Tx, data DTO, isNew bool) error
	PostSave   []func(ctx context.Context, tx *sqlx.Tx, data DTO, model any, isNew bool) error
	PreDelete  []func(ctx context.Context, tx *sqlx.Tx, id int64) error
	PostDelete []func(ctx context.Context, tx *sqlx.Tx, id int64) error
}

type Datastorer[T any] interface {
	Create(ctx context.Context, data DTO) (any, error)
	Update(ctx context.Context, id int64, data DTO) (any, error)
	Delete(ctx context.Context, id int64) error
	QueryRow(ctx context.Context, query string, args ...any) (any, error)
	Get(ctx context.Context, query string, args ...any) (*T, error)
	Select(ctx context.Context, query string, args ...any) ([]T, error)

	// WARN: DeleteWhere does not run hooks.
	DeleteWhere(ctx context.Context, column string, value any) (int64, error)

	// WARN: BulkUpdate does not run hooks.
	BulkUpdate(ctx context.Context, query string, args ...any) error
	// InTx runs fn in a transaction that is committed when fn returns nil.
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	SetHooks(hooks Hooks)

	// useful for complex operations wherein store interface does not supported.
	Base() *sqlx.DB
}

func getStructFieldNamesFromInstance(instance any) []string {
	typ := reflect.TypeOf(instance)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	var fields []string

	for i := 0; i < typ.NumField(); i++ {
		dbTag := typ.Field(i).Tag.Get("db")
		if dbTag != "" && dbTag != "-" {
			fields = append(fields, dbTag)
		}
	}

	return fields
}

// getStructFieldsFromDTO extracts column names and named placeholders from a DTO struct.
// The `id` column is skipped since it is generated on insert.
func getStructFieldsFromDTO(dto DTO) (columns string, placeholders string) {
	t := reflect.TypeOf(dto)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var columnNames []string
	var placeholderNames []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		dbTag := field.Tag.Get("db")
		if dbTag == "" || dbTag == "-" || dbTag == "id" {
			continue
		}

		columnNames = append(columnNames, dbTag)
		placeholderNames = append(placeholderNames, placeholder(field, dbTag))
	}

	return strings.Join(columnNames, ", "), strings.Join(placeholderNames, ", ")
}

// getNonEmptyFieldsFromDTO builds the SET clause of a partial update. Nil pointers and empty
// strings are left untouched.
func getNonEmptyFieldsFromDTO(dto DTO, params map[string]any) string {
	v := reflect.ValueOf(dto)
	t := reflect.TypeOf(dto)

	if v.Kind() == reflect.Ptr {
		v = v.Elem()
		t = t.Elem()
	}

	var fields []string

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		columnName := field.Tag.Get("db")
		if columnName == "-" || columnName == "id" {
			continue
		}
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		if value.Kind() == reflect.Ptr && value.IsNil() || value.Kind() == reflect.String && value.String() == "" {
			continue
		}

		fields = append(fields, fmt.Sprintf("%s = %s", columnName, placeholder(field, columnName)))
		params[columnName] = value.Interface()
	}

	return strings.Join(fields, ", ")
}

// placeholder casts slices to the matching postgres array type. []byte and driver.Valuer
// slices such as types.JSONText are passed through as-is.
func placeholder(field reflect.StructField, column string) string {
	if field.Type.Kind() != reflect.Slice || field.Type.Elem().Kind() == reflect.Uint8 {
		return ":" + column
	}

	var pgArrayType string
	switch field.Type.Elem().Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		pgArrayType = "bigint[]"
	case reflect.Float32, reflect.Float64:
		pgArrayType = "float[]"
	case reflect.Bool:
		pgArrayType = "boolean[]"
	default:
		pgArrayType = "text[]"
	}
	return fmt.Sprintf("CAST(:%s AS %s)", column, pgArrayType)
}
