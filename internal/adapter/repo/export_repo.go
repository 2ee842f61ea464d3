package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mapengrave/internal/domain"
	"mapengrave/internal/infra"
	"mapengrave/internal/sqlinline"
)

// ErrExportNotFound is returned by Get for unknown ids.
var ErrExportNotFound = fmt.Errorf("repo: export %w", domain.ErrNotFound)

// ExportLogPG implements domain.ExportLog on PostgreSQL.
type ExportLogPG struct {
	sql infra.SQLExecutor
}

// NewExportLog creates an export log backed by sql.
func NewExportLog(sql infra.SQLExecutor) *ExportLogPG {
	return &ExportLogPG{sql: sql}
}

// Record inserts rec and fills its timestamps.
func (r *ExportLogPG) Record(ctx context.Context, rec *domain.ExportRecord) error {
	if rec == nil {
		return errors.New("repo: export record is required")
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertExport,
		rec.ID,
		rec.OrderNumber,
		rec.Filename,
		rec.StorageKey,
		rec.Bytes,
		rec.Width,
		rec.Height,
		rec.DPI,
		rec.Quality,
		string(rec.Size),
		rec.Material,
		string(rec.Shape),
		rec.Label,
		rec.Price,
		rec.Currency,
		rec.CartID,
		string(rec.Status),
		rec.Error,
	)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("repo: record export: %w", err)
	}
	return nil
}

// MarkCarted records the cart an export was added to.
func (r *ExportLogPG) MarkCarted(ctx context.Context, id, cartID string) error {
	return r.updateStatus(ctx, id, domain.ExportStatusCarted, cartID, "")
}

// MarkFailed records why the order step after the export failed.
func (r *ExportLogPG) MarkFailed(ctx context.Context, id, reason string) error {
	return r.updateStatus(ctx, id, domain.ExportStatusFailed, "", reason)
}

func (r *ExportLogPG) updateStatus(ctx context.Context, id string, status domain.ExportStatus, cartID, reason string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateExportStatus, id, string(status), cartID, reason)
	if err != nil {
		return fmt.Errorf("repo: update export %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportNotFound
	}
	return nil
}

// Get fetches an export by id.
func (r *ExportLogPG) Get(ctx context.Context, id string) (*domain.ExportRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectExportByID, id)
	rec, err := scanExport(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrExportNotFound
		}
		return nil, fmt.Errorf("repo: get export %s: %w", id, err)
	}
	return rec, nil
}

// ListByOrder returns the newest exports of an order first.
func (r *ExportLogPG) ListByOrder(ctx context.Context, orderNumber string) ([]domain.ExportRecord, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectExportsByOrder, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("repo: list exports: %w", err)
	}
	defer rows.Close()

	var out []domain.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanExport(row pgx.Row) (*domain.ExportRecord, error) {
	var (
		rec                 domain.ExportRecord
		size, shape, status string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.OrderNumber,
		&rec.Filename,
		&rec.StorageKey,
		&rec.Bytes,
		&rec.Width,
		&rec.Height,
		&rec.DPI,
		&rec.Quality,
		&size,
		&rec.Material,
		&shape,
		&rec.Label,
		&rec.Price,
		&rec.Currency,
		&rec.CartID,
		&status,
		&rec.Error,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Size = domain.Size(size)
	rec.Shape = domain.Shape(shape)
	rec.Status = domain.ExportStatus(status)
	return &rec, nil
}

var _ domain.ExportLog = (*ExportLogPG)(nil)
