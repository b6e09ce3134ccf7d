package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"salesbot/pkg"

	"github.com/bytedance/sonic"
)

// FilterOp is a comparison applied to one record field
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpLt       FilterOp = "lt"
	OpLte      FilterOp = "lte"
	OpGt       FilterOp = "gt"
	OpGte      FilterOp = "gte"
	OpNotIn    FilterOp = "not_in"
	OpNotNull  FilterOp = "not_null"
	OpContains FilterOp = "contains" // case-insensitive substring
	OpIEq      FilterOp = "ieq"      // case-insensitive equality, surrounding spaces ignored
)

// Filter restricts a query to records whose field satisfies Op against Value
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query describes a filtered, searched, sorted and paginated read of one table
type Query struct {
	Table        string
	Filters      []Filter
	Search       string
	SearchFields []string
	SortField    string
	SortDesc     bool
	Limit        int
	Offset       int
}

// QueryResult is one page of records plus the unpaginated total
type QueryResult struct {
	Records []pkg.Record
	Total   int
}

// CRMStore is the keyed-record store behind the CRM tables
type CRMStore interface {
	Query(ctx context.Context, q Query) (*QueryResult, error)
	Get(ctx context.Context, table string, id int64) (pkg.Record, error)
	Create(ctx context.Context, table string, fields pkg.Record) (pkg.Record, error)
	Update(ctx context.Context, table string, id int64, fields pkg.Record) (pkg.Record, error)
	Delete(ctx context.Context, table string, id int64) error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteCRMStore stores every CRM table as JSON documents in crm_records
type SQLiteCRMStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCRMStore creates a CRM store on an open database
func NewSQLiteCRMStore(db *sql.DB) *SQLiteCRMStore {
	return &SQLiteCRMStore{db: db, now: time.Now}
}

func jsonPath(field string) (string, error) {
	if !identifier.MatchString(field) {
		return "", pkg.NewValidationError(fmt.Sprintf("invalid field name %q", field))
	}
	return "$." + field, nil
}

func (s *SQLiteCRMStore) where(q Query) (string, []any, error) {
	if !identifier.MatchString(q.Table) {
		return "", nil, pkg.NewValidationError(fmt.Sprintf("invalid table name %q", q.Table))
	}

	clauses := []string{"table_name = ?"}
	args := []any{q.Table}

	for _, f := range q.Filters {
		path, err := jsonPath(f.Field)
		if err != nil {
			return "", nil, err
		}
		switch f.Op {
		case OpEq:
			clauses = append(clauses, "json_extract(data, ?) = ?")
			args = append(args, path, f.Value)
		case OpLt, OpLte, OpGt, OpGte:
			// range filters are timestamps; julianday folds offsets and separators to one instant
			op := map[FilterOp]string{OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">="}[f.Op]
			clauses = append(clauses, "julianday(json_extract(data, ?)) "+op+" julianday(?)")
			args = append(args, path, f.Value)
		case OpNotNull:
			clauses = append(clauses, "json_extract(data, ?) IS NOT NULL")
			args = append(args, path)
		case OpContains:
			clauses = append(clauses, "LOWER(CAST(json_extract(data, ?) AS TEXT)) LIKE ?")
			args = append(args, path, "%"+strings.ToLower(fmt.Sprint(f.Value))+"%")
		case OpIEq:
			clauses = append(clauses, "LOWER(TRIM(CAST(json_extract(data, ?) AS TEXT))) = ?")
			args = append(args, path, strings.ToLower(strings.TrimSpace(fmt.Sprint(f.Value))))
		case OpNotIn:
			values, ok := f.Value.([]string)
			if !ok || len(values) == 0 {
				continue
			}
			marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
			clauses = append(clauses, "COALESCE(json_extract(data, ?), '') NOT IN ("+marks+")")
			args = append(args, path)
			for _, v := range values {
				args = append(args, v)
			}
		default:
			return "", nil, pkg.NewValidationError(fmt.Sprintf("unsupported filter op %q", f.Op))
		}
	}

	if term := strings.TrimSpace(q.Search); term != "" && len(q.SearchFields) > 0 {
		var ors []string
		for _, field := range q.SearchFields {
			path, err := jsonPath(field)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, "LOWER(CAST(COALESCE(json_extract(data, ?), '') AS TEXT)) LIKE ?")
			args = append(args, path, "%"+strings.ToLower(term)+"%")
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Query implements CRMStore
func (s *SQLiteCRMStore) Query(ctx context.Context, q Query) (*QueryResult, error) {
	where, args, err := s.where(q)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crm_records"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", q.Table, err)
	}

	order := " ORDER BY id ASC"
	if q.SortField != "" {
		path, err := jsonPath(q.SortField)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.SortDesc {
			dir = "DESC"
		}
		order = " ORDER BY COALESCE(julianday(json_extract(data, ?)), json_extract(data, ?)) " + dir + ", id ASC"
		args = append(args, path, path)
	}

	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM crm_records"+where+order+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer rows.Close()

	result := &QueryResult{Total: total, Records: []pkg.Record{}}
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Table, err)
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, rec)
	}
	return result, rows.Err()
}

// Get implements CRMStore
func (s *SQLiteCRMStore) Get(ctx context.Context, table string, id int64) (pkg.Record, error) {
	return getRecord(ctx, s.db, table, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, table string, id int64) (pkg.Record, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM crm_records WHERE table_name = ? AND id = ?`, table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.NewNotFoundError(fmt.Sprintf("%s record %d", table, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s record: %w", table, err)
	}
	return decodeRecord(id, data)
}

// Create implements CRMStore; the store assigns the id
func (s *SQLiteCRMStore) Create(ctx context.Context, table string, fields pkg.Record) (pkg.Record, error) {
	if !identifier.MatchString(table) {
		return nil, pkg.NewValidationError(fmt.Sprintf("invalid table name %q", table))
	}

	var created pkg.Record
	err := Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var id int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(id), 0) + 1 FROM crm_records WHERE table_name = ?`, table).Scan(&id); err != nil {
			return err
		}

		now := s.now().UTC()
		rec := pkg.Record{}
		for k, v := range fields {
			rec[k] = v
		}
		rec["id"] = id
		if _, ok := rec["created_at"]; !ok {
			rec["created_at"] = now.Format(time.RFC3339)
		}
		rec["updated_at"] = now.Format(time.RFC3339)

		if err := putRecord(ctx, tx, table, id, rec, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", table, err)
	}
	return created, nil
}

// Update implements CRMStore by merging fields into the stored record
func (s *SQLiteCRMStore) Update(ctx context.Context, table string, id int64, fields pkg.Record) (pkg.Record, error) {
	var updated pkg.Record
	err := Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		rec, err := getRecord(ctx, tx, table, id)
		if err != nil {
			return err
		}
		for k, v := range fields {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		now := s.now().UTC()
		rec["updated_at"] = now.Format(time.RFC3339)

		if err := putRecord(ctx, tx, table, id, rec, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		if pkg.IsKind(err, pkg.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update %s record: %w", table, err)
	}
	return updated, nil
}

// Delete implements CRMStore
func (s *SQLiteCRMStore) Delete(ctx context.Context, table string, id int64) error {
	var affected int64
	err := Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM crm_records WHERE table_name = ? AND id = ?`, table, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", table, err)
	}
	if affected == 0 {
		return pkg.NewNotFoundError(fmt.Sprintf("%s record %d", table, id))
	}
	return nil
}

// Put writes a record under an explicit id, replacing any existing one
func (s *SQLiteCRMStore) Put(ctx context.Context, table string, id int64, rec pkg.Record) error {
	if !identifier.MatchString(table) {
		return pkg.NewValidationError(fmt.Sprintf("invalid table name %q", table))
	}
	doc := pkg.Record{}
	for k, v := range rec {
		doc[k] = v
	}
	doc["id"] = id
	return Retry(ctx, func() error {
		return putRecord(ctx, s.db, table, id, doc, s.now().UTC())
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRecord(ctx context.Context, ex execer, table string, id int64, rec pkg.Record, now time.Time) error {
	data, err := sonic.MarshalString(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO crm_records (table_name, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(table_name, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		table, id, data, toMillis(now), toMillis(now))
	return err
}

func decodeRecord(id int64, data string) (pkg.Record, error) {
	rec := pkg.Record{}
	if err := sonic.UnmarshalString(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %d: %w", id, err)
	}
	rec["id"] = id
	return rec, nil
}
