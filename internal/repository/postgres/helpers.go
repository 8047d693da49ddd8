package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

// dbError marks a driver error so the API layer can map it
func dbError(err error, entity string, op string) error {
	if isUniqueViolation(err) {
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			Mark(ierr.ErrAlreadyExists)
	}
	if ierr.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHintf("Failed to %s %s", op, strings.ToLower(entity)).
		Mark(ierr.ErrDatabase)
}

func notFound(entity, id string) error {
	return ierr.NewErrorf("%s %s not found", strings.ToLower(entity), id).
		WithHintf("%s not found", entity).
		WithReportableDetails(map[string]any{
			"id": id,
		}).
		Mark(ierr.ErrNotFound)
}

func versionConflict(entity, id string, version int) error {
	return ierr.NewErrorf("%s %s was modified concurrently", strings.ToLower(entity), id).
		WithHintf("%s was modified by another request, please retry", entity).
		WithReportableDetails(map[string]any{
			"id":      id,
			"version": version,
		}).
		Mark(ierr.ErrVersionConflict)
}

// lockClause row-locks reads made inside a transaction so read-modify-write
// sequences are serialized per row
func lockClause(ctx context.Context) string {
	if postgres.InTx(ctx) {
		return " FOR UPDATE"
	}
	return ""
}

// queryBuilder collects WHERE clauses and named parameters for list queries
type queryBuilder struct {
	clauses []string
	params  map[string]interface{}
}

// newQueryBuilder scopes every query to the tenant and to published rows
func newQueryBuilder(ctx context.Context) *queryBuilder {
	return &queryBuilder{
		clauses: []string{"tenant_id = :tenant_id", "status = :status"},
		params: map[string]interface{}{
			"tenant_id": types.GetTenantID(ctx),
			"status":    types.StatusPublished,
		},
	}
}

func (b *queryBuilder) eq(column string, value string) *queryBuilder {
	if value == "" {
		return b
	}
	b.clauses = append(b.clauses, fmt.Sprintf("%s = :%s", column, column))
	b.params[column] = value
	return b
}

func (b *queryBuilder) in(column string, values []string) *queryBuilder {
	if len(values) == 0 {
		return b
	}
	key := column + "_list"
	b.clauses = append(b.clauses, fmt.Sprintf("%s = ANY(:%s)", column, key))
	b.params[key] = pq.Array(values)
	return b
}

func (b *queryBuilder) timeRange(column string, r *types.TimeRangeFilter) *queryBuilder {
	if r == nil {
		return b
	}
	if r.StartTime != nil {
		b.clauses = append(b.clauses, fmt.Sprintf("%s >= :%s_start", column, column))
		b.params[column+"_start"] = *r.StartTime
	}
	if r.EndTime != nil {
		b.clauses = append(b.clauses, fmt.Sprintf("%s <= :%s_end", column, column))
		b.params[column+"_end"] = *r.EndTime
	}
	return b
}

func (b *queryBuilder) where() string {
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// page renders ORDER BY and, for limited filters, LIMIT/OFFSET
func (b *queryBuilder) page(orderColumn string, filter types.BaseFilter) string {
	order := "DESC"
	if filter != nil && filter.GetOrder() == types.OrderAsc {
		order = "ASC"
	}
	clause := fmt.Sprintf(" ORDER BY %s %s, id %s", orderColumn, order, order)
	if filter == nil || filter.IsUnlimited() {
		return clause
	}
	b.params["limit"] = filter.GetLimit()
	b.params["offset"] = filter.GetOffset()
	return clause + " LIMIT :limit OFFSET :offset"
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// scanAll drains rows into a slice of T
func scanAll[T any](rows *sqlx.Rows) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		var item T
		if err := rows.StructScan(&item); err != nil {
			return nil, err
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// scanOne returns the first row or sql.ErrNoRows
func scanOne[T any](rows *sqlx.Rows) (*T, error) {
	items, err := scanAll[T](rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, sql.ErrNoRows
	}
	return items[0], nil
}

func count(ctx context.Context, db *postgres.DB, table string, b *queryBuilder) (int, error) {
	rows, err := db.NamedQueryContext(ctx, "SELECT COUNT(*) FROM "+table+b.where(), b.params)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

func isNoRows(err error) bool {
	return ierr.Is(err, sql.ErrNoRows)
}
