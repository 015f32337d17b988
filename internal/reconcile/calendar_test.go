package reconcile

import (
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalendarDateUTC(t *testing.T) {
	loc := resolveLocation("UTC", discardLogger())
	require.Equal(t, "2024-01-20", calendarDate(time.Unix(1705708800, 0), loc))
}

func TestCalendarDateCrossesMidnightWestward(t *testing.T) {
	loc := resolveLocation("America/Los_Angeles", discardLogger())
	// 06:00Z is 22:00 the previous day in Los Angeles.
	require.Equal(t, "2024-01-19", calendarDate(time.Unix(1705730400, 0), loc))
}

func TestCalendarDateDeterministic(t *testing.T) {
	loc := resolveLocation("Europe/Berlin", discardLogger())
	instant := time.Unix(1705730400, 0)
	first := calendarDate(instant, loc)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, calendarDate(instant, loc))
	}
}

func TestResolveLocationEmptyUsesLocal(t *testing.T) {
	var buf strings.Builder
	loc := resolveLocation("", log.New(&buf, "", 0))
	require.Equal(t, time.Local, loc)
	require.Empty(t, buf.String(), "absent zone is the default, not an anomaly")
}

func TestResolveLocationInvalidFallsBackAndLogs(t *testing.T) {
	var buf strings.Builder
	loc := resolveLocation("Not/AZone", log.New(&buf, "", 0))
	require.Equal(t, time.Local, loc)
	require.Contains(t, buf.String(), "Not/AZone")
}

func discardLogger() *log.Logger {
	return log.New(&strings.Builder{}, "", 0)
}
