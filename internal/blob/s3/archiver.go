package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// OrderArchiveStore is the narrow read contract the archiver needs for
// completed orders. The Postgres order store satisfies it.
type OrderArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// FillArchiveStore is the narrow read contract for historical fills.
type FillArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
}

// Archiver serializes completed trading history to JSONL and uploads it,
// partitioned by the year-month of the cutoff. Deleting archived rows from
// the primary store is a separate, explicit step after the archive is
// verified.
type Archiver struct {
	writer BlobWriter
	orders OrderArchiveStore
	fills  FillArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, orders OrderArchiveStore, fills FillArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		orders: orders,
		fills:  fills,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders uploads all orders closed before the cutoff to
// archive/orders/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	a.logger.Info("orders archived",
		slog.String("path", path),
		slog.Int("count", len(orders)),
	)
	return int64(len(orders)), nil
}

// ArchiveFills uploads all fills recorded before the cutoff to
// archive/fills/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	path := archivePath("fills", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	a.logger.Info("fills archived",
		slog.String("path", path),
		slog.Int("count", len(fills)),
	)
	return int64(len(fills)), nil
}

// archivePath builds the object key, partitioned by year-month.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
