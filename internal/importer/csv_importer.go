package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"collections/internal/collections"
)

// ItemStore is the part of the collection service an import writes through.
type ItemStore interface {
	Get(ctx context.Context, id uuid.UUID, userID string) (collections.Collection, error)
	AddItem(ctx context.Context, collectionID uuid.UUID, userID string, input collections.AddItemInput) (collections.Item, error)
}

type Summary struct {
	TotalRows         int             `json:"totalRows"`
	Imported          int             `json:"imported"`
	SkippedDuplicates []SkippedRecord `json:"skippedDuplicates"`
	Failed            []FailedRecord  `json:"failed"`
	TruncatedRecords  bool            `json:"truncatedRecords,omitempty"`
}

type SkippedRecord struct {
	Row     int    `json:"row"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason"`
}

type FailedRecord struct {
	Row     int    `json:"row"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error"`
}

var ErrInvalidCSV = errors.New("invalid csv upload")

// MaxImportRows limits the number of data rows processed per CSV import to
// prevent excessive memory usage and long-running requests.
const MaxImportRows = 1000

// MaxFailedRecords caps the number of failed/skipped records stored in the
// summary to avoid unbounded memory growth from malformed uploads.
const MaxFailedRecords = 100

// requiredColumns is the subset of the export format an import needs. Other
// export columns are accepted and ignored.
var requiredColumns = []string{
	"itemtype",
	"content",
}

// CSVImporter appends items from a CSV file to an existing collection.
type CSVImporter struct {
	store ItemStore
}

func NewCSVImporter(store ItemStore) *CSVImporter {
	return &CSVImporter{store: store}
}

type parsedRow struct {
	number int
	rank   int
	input  collections.AddItemInput
}

// Import reads rows from reader and appends them to the collection. Rows are
// added in rank order when every row carries a rank, else in file order.
// Items whose type and content already exist in the collection are skipped.
func (i *CSVImporter) Import(ctx context.Context, reader io.Reader, collectionID uuid.UUID, userID string) (Summary, error) {
	if i.store == nil {
		return Summary{}, fmt.Errorf("%w: item store is not configured", ErrInvalidCSV)
	}

	existing, err := i.store.Get(ctx, collectionID, userID)
	if err != nil {
		return Summary{}, err
	}
	tracker := newDuplicateTracker(existing.Items)

	rows, err := readRows(reader)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{TotalRows: len(rows)}
	for _, row := range rows {
		if reason, ok := tracker.Check(row.input); ok {
			if len(summary.SkippedDuplicates) < MaxFailedRecords {
				summary.SkippedDuplicates = append(summary.SkippedDuplicates, SkippedRecord{
					Row:     row.number,
					Content: row.input.Content,
					Reason:  reason,
				})
			} else {
				summary.TruncatedRecords = true
			}
			continue
		}

		if _, err := i.store.AddItem(ctx, collectionID, userID, row.input); err != nil {
			if len(summary.Failed) < MaxFailedRecords {
				summary.Failed = append(summary.Failed, FailedRecord{
					Row:     row.number,
					Content: row.input.Content,
					Error:   err.Error(),
				})
			} else {
				summary.TruncatedRecords = true
			}
			continue
		}

		tracker.Add(row.input)
		summary.Imported++
	}

	return summary, nil
}

func readRows(reader io.Reader) ([]parsedRow, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: failed to read header", ErrInvalidCSV)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	var rows []parsedRow
	rowNumber := 1
	allRanked := true

	for {
		record, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: failed to read row %d", ErrInvalidCSV, rowNumber+1)
		}
		rowNumber++

		values := mapRecord(columns, record)
		// Exports of empty collections carry a row without item fields.
		if values["itemtype"] == "" && values["content"] == "" {
			continue
		}

		if len(rows) >= MaxImportRows {
			return nil, fmt.Errorf("%w: CSV exceeds maximum of %d rows", ErrInvalidCSV, MaxImportRows)
		}

		rank, ok := parseRank(values["rank"])
		if !ok {
			allRanked = false
		}
		rows = append(rows, parsedRow{
			number: rowNumber,
			rank:   rank,
			input: collections.AddItemInput{
				Type:    collections.ItemType(strings.ToLower(values["itemtype"])),
				Content: values["content"],
			},
		})
	}

	if allRanked {
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].rank < rows[b].rank })
	}
	return rows, nil
}

func normalizeHeader(header []string) (map[int]string, error) {
	columns := make(map[int]string, len(header))
	seen := map[string]bool{}
	for idx, raw := range header {
		cleaned := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		if cleaned == "" {
			continue
		}
		columns[idx] = cleaned
		seen[cleaned] = true
	}

	missing := make([]string, 0)
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}
	return columns, nil
}

func mapRecord(columns map[int]string, record []string) map[string]string {
	values := make(map[string]string, len(columns))
	for idx, column := range columns {
		if idx >= len(record) {
			values[column] = ""
			continue
		}
		values[column] = strings.TrimSpace(record[idx])
	}
	return values
}

func parseRank(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	rank, err := strconv.Atoi(value)
	if err != nil || rank <= 0 {
		return 0, false
	}
	return rank, true
}

type duplicateTracker struct {
	seen map[string]struct{}
}

func newDuplicateTracker(existing []collections.Item) *duplicateTracker {
	tracker := &duplicateTracker{seen: make(map[string]struct{}, len(existing))}
	for _, item := range existing {
		tracker.seen[duplicateKey(item.Type, item.Content)] = struct{}{}
	}
	return tracker
}

func (t *duplicateTracker) Check(input collections.AddItemInput) (string, bool) {
	if _, ok := t.seen[duplicateKey(input.Type, input.Content)]; ok {
		return fmt.Sprintf("%s already in collection", input.Type), true
	}
	return "", false
}

func (t *duplicateTracker) Add(input collections.AddItemInput) {
	t.seen[duplicateKey(input.Type, input.Content)] = struct{}{}
}

func duplicateKey(itemType collections.ItemType, content string) string {
	return string(itemType) + "|" + strings.TrimSpace(content)
}
