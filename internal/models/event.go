package models

import (
	"strings"
	"time"
)

// Categories offered by the calendar UI. An empty category is allowed.
var Categories = []string{
	"Work",
	"Personal",
	"Meeting",
	"Social",
	"Health",
	"Errands",
	"Study",
	"Exercise",
	"Entertainment",
	"Other",
}

// NormalizeCategory maps a case-insensitive category name onto its canonical
// spelling. Unknown names are returned unchanged.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	for _, c := range Categories {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return name
}

type ExtendedProps struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Completion  bool   `json:"completion"`
	Priority    string `json:"priority"`
}

type Event struct {
	ID            string        `json:"id,omitempty"`      // Remote task_id, empty until first insert
	LocalID       string        `json:"localId,omitempty"` // Device-local key, assigned at creation
	Title         string        `json:"title"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	ExtendedProps ExtendedProps `json:"extendedProps"`
	IsRecommend   bool          `json:"isRecommend"`
}

// Ref returns the identifier used to address the event: the remote id once
// assigned, the local id before that.
func (e *Event) Ref() string {
	if e.ID != "" {
		return e.ID
	}
	return e.LocalID
}

// Matches reports whether ref addresses this event.
func (e *Event) Matches(ref string) bool {
	if ref == "" {
		return false
	}
	return e.ID == ref || e.LocalID == ref
}

// IsSynced returns true if the event has been persisted remotely
func (e *Event) IsSynced() bool {
	return e.ID != ""
}

// NormalizeEnd defaults a missing end to the start time
func (e *Event) NormalizeEnd() {
	if e.End.IsZero() {
		e.End = e.Start
	}
}

// EventPatch carries the fields of an edit. Nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Start       *time.Time
	End         *time.Time
	Description *string
	Category    *string
	Completion  *bool
	Priority    *string
	IsRecommend *bool
}

// Apply merges the present fields of p over e and reports whether any of the
// fields feeding the embedding text changed.
func (p EventPatch) Apply(e *Event) (textChanged bool) {
	if p.Title != nil && *p.Title != e.Title {
		e.Title = *p.Title
		textChanged = true
	}
	if p.Start != nil {
		e.Start = *p.Start
		if p.End == nil && e.End.Before(e.Start) {
			e.End = e.Start
		}
	}
	if p.End != nil {
		e.End = *p.End
	}
	if p.Description != nil && *p.Description != e.ExtendedProps.Description {
		e.ExtendedProps.Description = *p.Description
		textChanged = true
	}
	if p.Category != nil && *p.Category != e.ExtendedProps.Category {
		e.ExtendedProps.Category = *p.Category
		textChanged = true
	}
	if p.Completion != nil {
		e.ExtendedProps.Completion = *p.Completion
	}
	if p.Priority != nil {
		e.ExtendedProps.Priority = *p.Priority
	}
	if p.IsRecommend != nil {
		e.IsRecommend = *p.IsRecommend
	}
	e.NormalizeEnd()
	return textChanged
}

// IsEmpty returns true if the patch carries no field
func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Start == nil && p.End == nil && p.Description == nil &&
		p.Category == nil && p.Completion == nil && p.Priority == nil && p.IsRecommend == nil
}
