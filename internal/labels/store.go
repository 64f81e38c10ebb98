package labels

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"graphql-admin/internal/sqlutil"
)

// Store fetches the static label table for one locale.
// A locale without labels yields an empty map, not an error.
type Store interface {
	Load(ctx context.Context, locale string) (map[string]string, error)
}

// LocaleLister is implemented by stores that can enumerate the locales they hold.
type LocaleLister interface {
	Locales(ctx context.Context) ([]string, error)
}

// FileStore reads <locale>.json files from a directory.
type FileStore struct {
	fsys fs.FS
}

// NewFileStore serves label files from fsys (typically os.DirFS(dir)).
func NewFileStore(fsys fs.FS) *FileStore {
	return &FileStore{fsys: fsys}
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, locale string) (map[string]string, error) {
	if s == nil || s.fsys == nil || !validLocaleName(locale) {
		return map[string]string{}, nil
	}

	data, err := fs.ReadFile(s.fsys, locale+".json")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read labels for %q: %w", locale, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse labels for %q: %w", locale, err)
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		// Only string entries are labels; anything else in the file is ignored.
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	return out, nil
}

// Locales implements LocaleLister.
func (s *FileStore) Locales(context.Context) ([]string, error) {
	if s == nil || s.fsys == nil {
		return nil, nil
	}
	matches, err := fs.Glob(s.fsys, "*.json")
	if err != nil {
		return nil, err
	}
	locales := make([]string, 0, len(matches))
	for _, name := range matches {
		locales = append(locales, strings.TrimSuffix(name, ".json"))
	}
	return locales, nil
}

func validLocaleName(locale string) bool {
	if locale == "" || locale == "." || locale == ".." {
		return false
	}
	return !strings.ContainsAny(locale, `/\`)
}

// SQLStore reads labels from a table with (locale, label_key, label_value) columns.
type SQLStore struct {
	db    *sql.DB
	table string
}

// NewSQLStore returns a store reading from table.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if strings.TrimSpace(table) == "" {
		table = "ui_labels"
	}
	return &SQLStore{db: db, table: table}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, locale string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, sql.ErrConnDone
	}

	query, args, err := sq.Select("label_key", "label_value").
		From(sqlutil.QuoteQualifiedIdentifier(s.table)).
		Where(sq.Eq{"locale": locale}).
		OrderBy("label_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build label query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels for %q: %w", locale, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan label row: %w", err)
		}
		if value.Valid {
			out[key] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels for %q: %w", locale, err)
	}
	return out, nil
}

// Locales implements LocaleLister.
func (s *SQLStore) Locales(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, sql.ErrConnDone
	}

	query, args, err := sq.Select("locale").
		Distinct().
		From(sqlutil.QuoteQualifiedIdentifier(s.table)).
		OrderBy("locale").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build locale query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query label locales: %w", err)
	}
	defer rows.Close()

	var locales []string
	for rows.Next() {
		var locale string
		if err := rows.Scan(&locale); err != nil {
			return nil, fmt.Errorf("failed to scan label locale: %w", err)
		}
		locales = append(locales, locale)
	}
	return locales, rows.Err()
}
