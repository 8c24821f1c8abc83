// internal/notify/analytics/export.go
package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"pulss-notifications/internal/models"
)

// StatSource answers range queries over the daily aggregates.
type StatSource interface {
	Query(ctx context.Context, q models.StatsQuery) ([]*models.StatRow, error)
}

// exportColumns is the stable export header; consumers pin their parsers to
// this order.
var exportColumns = []string{"day", "channel", "type_code", "outcome", "count"}

// Exporter serves the analytics read side: aggregates plus CSV/JSON export.
type Exporter struct {
	stats StatSource
}

func NewExporter(stats StatSource) *Exporter {
	return &Exporter{stats: stats}
}

// Query returns the matching daily buckets.
func (e *Exporter) Query(ctx context.Context, q models.StatsQuery) ([]*models.StatRow, error) {
	return e.stats.Query(ctx, q)
}

// WriteCSV streams the matching buckets as CSV.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, q models.StatsQuery) error {
	rows, err := e.stats.Query(ctx, q)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Day, string(row.Channel), row.TypeCode, string(row.Outcome), strconv.FormatInt(row.Count, 10)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON streams the matching buckets as a JSON array.
func (e *Exporter) WriteJSON(ctx context.Context, w io.Writer, q models.StatsQuery) error {
	rows, err := e.stats.Query(ctx, q)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []*models.StatRow{}
	}
	return json.NewEncoder(w).Encode(rows)
}
