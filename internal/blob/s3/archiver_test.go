package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func (w *memWriter) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[key] = data
	return nil
}

type stubOrderStore struct{ orders []domain.Order }

func (s stubOrderStore) ListClosedBefore(_ context.Context, _ time.Time) ([]domain.Order, error) {
	return s.orders, nil
}

type stubFillStore struct{ fills []domain.Fill }

func (s stubFillStore) ListBefore(_ context.Context, _ time.Time) ([]domain.Fill, error) {
	return s.fills, nil
}

func TestArchiveOrdersWritesJSONL(t *testing.T) {
	w := &memWriter{}
	orders := []domain.Order{
		{ID: "o-1", OutcomeID: "OUT-1", State: domain.OrderStateFilled},
		{ID: "o-2", OutcomeID: "OUT-2", State: domain.OrderStateCancelled},
	}
	a := NewArchiver(w, stubOrderStore{orders: orders}, stubFillStore{}, slog.Default())

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data, ok := w.objects["archive/orders/2026-08.jsonl"]
	require.True(t, ok, "expected year-month partitioned key, got %v", w.objects)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var first domain.Order
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "o-1", first.ID)
}

func TestArchiveFillsEmptyIsNoop(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, stubOrderStore{}, stubFillStore{}, slog.Default())

	n, err := a.ArchiveFills(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestMarshalJSONLCompactLines(t *testing.T) {
	buf, err := marshalJSONL([]domain.Fill{
		{ID: "f-1", Size: 10},
		{ID: "f-2", Size: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(buf, []byte("\n")))
}
