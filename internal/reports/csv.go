// Package reports builds attendance exports for a slot.
package reports

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/creative-contact/backend/internal/auditlog"
	"github.com/creative-contact/backend/internal/models"
)

var header = []string{"registration_id", "name", "email", "phone", "status", "checked_in_at", "checked_in_by"}

// WriteAttendanceCSV writes one row per registration. Check-in columns are empty
// for registrations without a check-in log entry.
func WriteAttendanceCSV(w io.Writer, regs []models.EventRegistration, checkins map[uuid.UUID]auditlog.CheckinRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range regs {
		var at, by string
		if rec, ok := checkins[r.ID]; ok {
			at = rec.CheckedAt.UTC().Format(time.RFC3339)
			by = rec.StaffID.String()
		}
		if err := cw.Write([]string{
			r.ID.String(), sanitize(r.Name), sanitize(r.Email), sanitize(r.Phone), string(r.Status), at, by,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// sanitize keeps spreadsheet apps from evaluating attendee input as a formula.
func sanitize(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
