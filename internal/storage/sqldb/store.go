package sqldb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUnknownTable      = errors.New("unknown table")
	ErrMissingPrimaryKey = errors.New("row has no primary key value")
	ErrInvalidColumnName = errors.New("invalid column name")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row maps column names to values.
type Row map[string]any

// Store is the upsert-only access layer over the pipeline tables.
type Store struct {
	db      *sqlx.DB
	tx      *TransactionManager
	builder sq.StatementBuilderType
}

func NewStore(db *sqlx.DB) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if db.DriverName() == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:      db,
		tx:      NewTransactionManager(db),
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Upsert inserts each row into table, overwriting every non-key column of an
// existing row with the same primary key.
func (s *Store) Upsert(ctx context.Context, table string, rows []Row) error {
	pk, ok := primaryKeys[table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	exec := GetExecutor(ctx, s.db)
	for i, row := range rows {
		query, args, err := s.upsertQuery(table, pk, row)
		if err != nil {
			return fmt.Errorf("upsert %s row %d: %w", table, i, err)
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s row %d: %w", table, i, err)
		}
	}
	return nil
}

func (s *Store) upsertQuery(table, pk string, row Row) (string, []any, error) {
	key, ok := row[pk]
	if !ok || key == nil || key == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingPrimaryKey, pk)
	}

	rest := make([]string, 0, len(row)-1)
	for col := range row {
		if !identPattern.MatchString(col) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidColumnName, col)
		}
		if col != pk {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)

	columns := []string{quoteIdent(pk)}
	values := []any{key}
	for _, col := range rest {
		columns = append(columns, quoteIdent(col))
		values = append(values, row[col])
	}

	return s.builder.
		Insert(quoteIdent(table)).
		Columns(columns...).
		Values(values...).
		Suffix(conflictClause(pk, rest)).
		ToSql()
}

func conflictClause(pk string, rest []string) string {
	if len(rest) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", quoteIdent(pk))
	}
	sets := make([]string, 0, len(rest))
	for _, col := range rest {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(col), quoteIdent(col)))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteIdent(pk), strings.Join(sets, ", "))
}

// Read runs a query written with ? placeholders and returns every row.
func (s *Store) Read(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		result = append(result, Row(m))
	}
	return result, rows.Err()
}

// ReadTable returns up to limit rows of one of the pipeline tables ordered by
// its primary key. A non-positive limit returns every row.
func (s *Store) ReadTable(ctx context.Context, table string, limit int) ([]Row, error) {
	pk, ok := primaryKeys[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	q := sq.Select("*").From(quoteIdent(table)).OrderBy(quoteIdent(pk))
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, query, args...)
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithTransaction(ctx, fn)
}

// Tables lists the tables Upsert and ReadTable accept.
func Tables() []string {
	tables := make([]string, 0, len(primaryKeys))
	for t := range primaryKeys {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
