package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"collections/internal/collections"
)

// SchemaVersion identifies the CSV export format version.
// Increment it when adding columns or changing the format.
const SchemaVersion = "1"

// csvColumns defines the column order for export. Each row is one item;
// collection fields repeat so a file can be split or merged without context.
var csvColumns = []string{
	"schemaVersion",
	"collectionId",
	"collectionTitle",
	"collectionDescription",
	"rank",
	"itemType",
	"content",
	"itemCreatedAt",
}

// CSVExporter exports collections to CSV format.
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export writes the collection's items to w in rank order. A collection
// without items produces a header and a single row without item fields.
func (e *CSVExporter) Export(w io.Writer, collection collections.Collection) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if len(collection.Items) == 0 {
		if err := writer.Write(e.row(collection, nil)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	for i := range collection.Items {
		if err := writer.Write(e.row(collection, &collection.Items[i])); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *CSVExporter) row(collection collections.Collection, item *collections.Item) []string {
	row := make([]string, len(csvColumns))

	row[0] = SchemaVersion
	row[1] = collection.ID.String()
	row[2] = collection.Title
	if collection.Description != nil {
		row[3] = *collection.Description
	}
	if item != nil {
		row[4] = strconv.Itoa(item.Rank)
		row[5] = string(item.Type)
		row[6] = item.Content
		row[7] = formatTime(item.CreatedAt)
	}

	return row
}

// formatTime formats a time to RFC3339 string.
func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
