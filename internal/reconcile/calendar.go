package reconcile

import (
	"log"
	"time"
)

// calendarDateLayout is the wire format for plan dates.
const calendarDateLayout = "2006-01-02"

// resolveLocation maps a named time zone to a *time.Location. An empty name
// means the process-local zone; an unrecognised name degrades to the
// process-local zone with a diagnostic log rather than failing the run.
func resolveLocation(name string, logger *log.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Printf("unknown time zone %q, falling back to local: %v", name, err)
		return time.Local
	}
	return loc
}

// calendarDate renders the instant as a calendar date in the given location.
func calendarDate(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format(calendarDateLayout)
}
