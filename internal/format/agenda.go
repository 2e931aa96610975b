package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/Timeline/internal/models"
)

// ShortRefLen is how many characters of an event reference chat messages show.
const ShortRefLen = 8

var markers = strings.NewReplacer("*", "", "`", "")

func ShortRef(e models.Event) string {
	ref := e.Ref()
	if len(ref) > ShortRefLen {
		return ref[:ShortRefLen]
	}
	return ref
}

// Span renders the schedule of e in loc, e.g. "05/01 17:00-18:30".
func Span(e models.Event, loc *time.Location) string {
	start := e.Start.In(loc)
	end := e.End.In(loc)

	switch {
	case end.IsZero() || end.Equal(start):
		return start.Format("01/02 15:04")
	case sameDay(start, end):
		return start.Format("01/02 15:04") + "-" + end.Format("15:04")
	default:
		return start.Format("01/02 15:04") + " - " + end.Format("01/02 15:04")
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EventLine renders one event as a single markdown line.
func EventLine(e models.Event, loc *time.Location) string {
	var sb strings.Builder
	if e.ExtendedProps.Completion {
		sb.WriteString("✅ ")
	}
	fmt.Fprintf(&sb, "`%s` **%s** %s", ShortRef(e), markers.Replace(e.Title), Span(e, loc))

	var tags []string
	if e.ExtendedProps.Category != "" {
		tags = append(tags, e.ExtendedProps.Category)
	}
	if e.ExtendedProps.Priority != "" {
		tags = append(tags, e.ExtendedProps.Priority)
	}
	if e.IsRecommend {
		tags = append(tags, "recommended")
	}
	if !e.IsSynced() {
		tags = append(tags, "local only")
	}
	if len(tags) > 0 {
		sb.WriteString(" · " + strings.Join(tags, " · "))
	}
	return sb.String()
}

// Agenda renders a heading and one line per event.
func Agenda(heading string, events []models.Event, loc *time.Location) string {
	if len(events) == 0 {
		return "📅 " + heading + "\n\nNo events."
	}

	var sb strings.Builder
	sb.WriteString("📅 **" + heading + "**\n\n")
	for _, e := range events {
		sb.WriteString(EventLine(e, loc))
		sb.WriteString("\n")
		if desc := e.ExtendedProps.Description; desc != "" {
			sb.WriteString("   " + truncate(markers.Replace(desc), 60) + "\n")
		}
	}
	return sb.String()
}

// Reminder renders the notification for an upcoming event.
func Reminder(e models.Event, now time.Time, loc *time.Location) string {
	in := e.Start.Sub(now).Round(time.Minute)
	text := fmt.Sprintf("⏰ **%s** starts in %s\n%s", markers.Replace(e.Title), in, Span(e, loc))
	if desc := e.ExtendedProps.Description; desc != "" {
		text += "\n\n" + markers.Replace(desc)
	}
	return text
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
