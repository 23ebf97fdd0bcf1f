// Package export renders ledger history for people outside the ledger.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fundledger/internal/core"
)

// TimeLayout is how created_at appears in exports and the mirror sheet.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column layout shared by CSV exports and the mirror sheet.
var Header = []string{"id", "type", "amount", "category", "comment", "created_at", "created_by"}

// Record lays out one operation in Header order. Times are shown in loc.
func Record(op core.Operation, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	category := ""
	if op.Category != nil {
		category = op.Category.Name
	}
	return []string{
		strconv.FormatInt(op.ID, 10),
		string(op.Type),
		strconv.FormatInt(op.Amount, 10),
		category,
		op.Comment,
		op.CreatedAt.In(loc).Format(TimeLayout),
		strconv.FormatInt(op.CreatedByID, 10),
	}
}

// WriteCSV writes the header and one row per operation, in the given order.
func WriteCSV(w io.Writer, ops []core.Operation, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, op := range ops {
		if err := cw.Write(Record(op, loc)); err != nil {
			return fmt.Errorf("write operation %d: %w", op.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes ops to path, creating parent directories.
func WriteCSVFile(path string, ops []core.Operation, loc *time.Location) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := WriteCSV(f, ops, loc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
