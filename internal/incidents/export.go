package incidents

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// csvColumns is the fixed export column order.
var csvColumns = []string{
	"ID",
	"Reported By",
	"Assigned To",
	"Date & Time",
	"Description",
	"Status",
	"Closed On",
	"Total Time",
}

// WriteCSV writes incidents as CSV, header row first, one row per incident.
// Every field is double-quoted with embedded quotes doubled; rows are joined
// by a single newline with no trailing newline, so an empty collection
// produces exactly the header row. encoding/csv only quotes when it has to,
// hence the hand-rolled writer.
func WriteCSV(w io.Writer, incidents []domain.Incident) error {
	rows := make([]string, 0, len(incidents)+1)
	rows = append(rows, formatCSVRow(csvColumns))

	for _, incident := range incidents {
		rows = append(rows, formatCSVRow([]string{
			strconv.FormatInt(incident.ID, 10),
			incident.ReportedBy,
			incident.AssignedTo,
			formatTimestamp(&incident.DateTime),
			incident.Description,
			string(incident.Status),
			formatTimestamp(incident.ClosedOn),
			stringOrEmpty(incident.TotalTime),
		}))
	}

	if _, err := io.WriteString(w, strings.Join(rows, "\n")); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ExportFilename returns the download filename for an export taken at t.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("incidents_%s.csv", t.Format("2006-01-02"))
}

func formatCSVRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
