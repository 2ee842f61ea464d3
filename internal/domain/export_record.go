package domain

import (
	"context"
	"time"
)

// ExportStatus tracks an order submission in the export log.
type ExportStatus string

const (
	ExportStatusExported ExportStatus = "exported"
	ExportStatusCarted   ExportStatus = "carted"
	ExportStatusFailed   ExportStatus = "failed"
)

// ExportRecord is one row of the export log.
type ExportRecord struct {
	ID          string       `json:"id"`
	OrderNumber string       `json:"order_number"`
	Filename    string       `json:"filename"`
	StorageKey  string       `json:"storage_key,omitempty"`
	Bytes       int          `json:"bytes"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	DPI         int          `json:"dpi"`
	Quality     int          `json:"quality"`
	Size        Size         `json:"size"`
	Material    string       `json:"material"`
	Shape       Shape        `json:"shape"`
	Label       string       `json:"label,omitempty"`
	Price       string       `json:"price"`
	Currency    string       `json:"currency"`
	CartID      string       `json:"cart_id,omitempty"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ExportLog persists export records.
type ExportLog interface {
	Record(ctx context.Context, rec *ExportRecord) error
	MarkCarted(ctx context.Context, id, cartID string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (*ExportRecord, error)
	ListByOrder(ctx context.Context, orderNumber string) ([]ExportRecord, error)
}
