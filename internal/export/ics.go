// Package export renders the event list as an iCalendar feed.
package export

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/hray3182/Timeline/internal/models"
)

const (
	productID         = "-//Timeline//Timeline Calendar//EN"
	propertyPriority  = ical.ComponentProperty("X-TIMELINE-PRIORITY")
	propertyRecommend = ical.ComponentProperty("X-TIMELINE-RECOMMENDED")
	propertyCompleted = ical.ComponentProperty("X-TIMELINE-COMPLETED")
)

// ICS serializes events into one VCALENDAR. stamp is written as DTSTAMP.
func ICS(events []models.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		ve := cal.AddEvent(uid(e))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(e.Start.UTC())
		end := e.End
		if end.IsZero() {
			end = e.Start
		}
		ve.SetEndAt(end.UTC())
		ve.SetSummary(e.Title)

		if e.ExtendedProps.Description != "" {
			ve.SetDescription(e.ExtendedProps.Description)
		}
		if e.ExtendedProps.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, e.ExtendedProps.Category)
		}
		if e.ExtendedProps.Priority != "" {
			ve.SetProperty(propertyPriority, e.ExtendedProps.Priority)
		}
		if e.ExtendedProps.Completion {
			ve.SetProperty(propertyCompleted, "TRUE")
		}
		if e.IsRecommend {
			ve.SetProperty(propertyRecommend, "TRUE")
		}
	}

	return cal.Serialize()
}

func uid(e models.Event) string {
	return e.Ref() + "@timeline"
}
