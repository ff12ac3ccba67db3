package incidents

import (
	"fmt"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// StatusUpdate describes a partial change to an incident's lifecycle fields.
// Nil fields leave the corresponding record fields untouched.
type StatusUpdate struct {
	Status   *domain.Status
	ClosedOn *time.Time
}

// Apply applies the update to the incident in place.
//
// A supplied status replaces the current one unconditionally; reopening a
// closed incident is allowed. A supplied closed-on timestamp sets ClosedOn
// and derives TotalTime from the span since DateTime. Without a closed-on
// timestamp both closure fields keep their previous values, whatever the
// new status is.
func Apply(incident *domain.Incident, update StatusUpdate) {
	if update.Status != nil {
		incident.Status = *update.Status
	}

	if update.ClosedOn != nil {
		closedOn := *update.ClosedOn
		total := FormatTotalTime(incident.DateTime, closedOn)
		incident.ClosedOn = &closedOn
		incident.TotalTime = &total
	}
}

// FormatTotalTime renders the span between two timestamps as a coarse
// human-readable duration: whole hours under a day, whole days from a day
// up. Partial units are truncated, so a 29 hour span comes out as "1 days".
func FormatTotalTime(from, to time.Time) string {
	hours := int(to.Sub(from).Hours())
	if hours >= 24 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%d hours", hours)
}
