package manager

import (
	"slices"
	"strings"
	"time"

	"github.com/hray3182/Timeline/internal/models"
)

// Today returns the events starting on the current day in loc, by start time.
func (m *Manager) Today(loc *time.Location) []models.Event {
	now := m.opts.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	return m.filter(func(e models.Event) bool {
		return !e.Start.Before(dayStart) && e.Start.Before(dayEnd)
	})
}

// Upcoming returns the events starting at or after now, soonest first. A
// positive within bounds the window.
func (m *Manager) Upcoming(within time.Duration) []models.Event {
	now := m.opts.Now()
	return m.filter(func(e models.Event) bool {
		if e.Start.Before(now) {
			return false
		}
		return within <= 0 || e.Start.Before(now.Add(within))
	})
}

// Search returns the events whose title contains query, ignoring case.
func (m *Manager) Search(query string) []models.Event {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return m.sorted()
	}
	return m.filter(func(e models.Event) bool {
		return strings.Contains(strings.ToLower(e.Title), query)
	})
}

func (m *Manager) sorted() []models.Event {
	return m.filter(func(models.Event) bool { return true })
}

func (m *Manager) filter(keep func(models.Event) bool) []models.Event {
	m.mu.Lock()
	out := []models.Event{}
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	m.mu.Unlock()

	SortByStart(out)
	return out
}

// SortByStart orders events by start time, then title.
func SortByStart(events []models.Event) {
	slices.SortStableFunc(events, func(a, b models.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	})
}
