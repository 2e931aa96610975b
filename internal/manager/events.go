package manager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

// Create adds event to the local list and, with a session, inserts it
// remotely. Remote failures leave the event local and unsynced.
func (m *Manager) Create(ctx context.Context, event models.Event) (models.Event, error) {
	event.ID = ""
	event.LocalID = uuid.NewString()
	event.ExtendedProps.Category = models.NormalizeCategory(event.ExtendedProps.Category)
	event.NormalizeEnd()

	m.mu.Lock()
	err := m.saveLocally(ctx, append(slices.Clone(m.events), event))
	m.mu.Unlock()
	if err != nil {
		return models.Event{}, err
	}
	m.publish(ctx, models.ChangeCreated, &event)

	session := m.Session(ctx)
	if session == nil {
		return event, nil
	}

	m.mu.Lock()
	reserved := m.indexOf(event.LocalID) >= 0 && m.reserve(event.LocalID)
	m.mu.Unlock()
	if !reserved {
		return event, nil
	}

	id, ok := m.insertRemote(ctx, session, &event)
	if !ok {
		m.release(event.LocalID)
		return event, nil
	}
	current, ok := m.assignID(ctx, session, event, id)
	if !ok {
		return event, nil
	}

	m.embedAsync(current)
	return current, nil
}

// reserve marks localID as being inserted. It fails when another insert of
// the same event is in progress. Callers hold mu.
func (m *Manager) reserve(localID string) bool {
	if m.inflight[localID] {
		return false
	}
	m.inflight[localID] = true
	return true
}

func (m *Manager) release(localIDs ...string) {
	m.mu.Lock()
	for _, id := range localIDs {
		delete(m.inflight, id)
		delete(m.deleted, id)
	}
	m.mu.Unlock()
}

func (m *Manager) insertRemote(ctx context.Context, session *models.Session, event *models.Event) (string, bool) {
	rctx, cancel := m.remoteContext(ctx)
	defer cancel()

	id, err := m.store.Insert(rctx, session.UserID, event)
	if err != nil {
		m.logger.Warn("Remote insert failed, event kept locally",
			zap.String("local_id", event.LocalID), zap.Error(err))
		return "", false
	}
	return id, true
}

// assignID records the remote id of inserted on the cached copy and releases
// its reservation. An id is never replaced once set: a surplus row is removed
// again, as is the row of an event deleted while the insert was in flight.
// An event cleared by logout or a replace refresh keeps its row. Edits made
// during the insert are pushed to the new row.
func (m *Manager) assignID(ctx context.Context, session *models.Session, inserted models.Event, id string) (models.Event, bool) {
	localID := inserted.LocalID

	m.mu.Lock()
	wasDeleted := m.deleted[localID]
	delete(m.inflight, localID)
	delete(m.deleted, localID)

	i := slices.IndexFunc(m.events, func(e models.Event) bool { return e.LocalID == localID })
	var (
		current models.Event
		err     error
	)
	switch {
	case wasDeleted, i < 0:
	case m.events[i].IsSynced():
		current = m.events[i]
	default:
		events := slices.Clone(m.events)
		events[i].ID = id
		current = events[i]
		err = m.saveLocally(ctx, events)
	}
	m.mu.Unlock()

	switch {
	case wasDeleted:
		m.logger.Info("Event deleted during insert, removing remote row", zap.String("task_id", id))
		m.deleteRemote(ctx, session, id)
		return models.Event{}, false
	case i < 0:
		m.logger.Info("Event cleared during insert, keeping remote row", zap.String("task_id", id))
		return models.Event{}, false
	case current.ID != id:
		m.logger.Warn("Event already has a remote id, removing surplus row",
			zap.String("task_id", current.ID), zap.String("surplus_id", id))
		m.deleteRemote(ctx, session, id)
		return models.Event{}, false
	case err != nil:
		m.logger.Error("Failed to record remote id", zap.String("task_id", id), zap.Error(err))
		return models.Event{}, false
	}

	if !sameContent(inserted, current) {
		rctx, cancel := m.remoteContext(ctx)
		err := m.store.Update(rctx, id, session.UserID, fullPatch(current))
		cancel()
		if err != nil {
			m.logger.Warn("Remote update failed, edit kept locally", zap.String("task_id", id), zap.Error(err))
		}
	}
	return current, true
}

func sameContent(a, b models.Event) bool {
	return a.Title == b.Title &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End) &&
		a.ExtendedProps == b.ExtendedProps &&
		a.IsRecommend == b.IsRecommend
}

// embedAsync generates and stores the embedding of a persisted event without
// blocking the caller. Failures only cost recommendation quality.
func (m *Manager) embedAsync(event models.Event) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.embed(m.bg, event); err != nil {
			m.logger.Warn("Embedding generation failed", zap.String("task_id", event.ID), zap.Error(err))
		}
	}()
}

func (m *Manager) embed(ctx context.Context, event models.Event) error {
	ectx, cancel := m.embedContext(ctx)
	vec, err := m.generator.Generate(ectx, &event)
	cancel()
	if err != nil {
		return err
	}

	rctx, cancel := m.remoteContext(ctx)
	defer cancel()
	return m.store.SetEmbedding(rctx, event.ID, vec)
}

// CreateRecommended reserves a draft row for seed, finds the most similar
// past event and schedules a copy of it one week later in place of the draft.
func (m *Manager) CreateRecommended(ctx context.Context, seed models.Event) (models.Event, error) {
	session := m.Session(ctx)
	if session == nil {
		return models.Event{}, models.ErrNoSession
	}

	now := m.opts.Now().UTC()
	draft := models.Event{
		Title: seed.Title,
		Start: now,
		End:   now,
		ExtendedProps: models.ExtendedProps{
			Description: seed.ExtendedProps.Description,
			Category:    models.NormalizeCategory(seed.ExtendedProps.Category),
		},
		IsRecommend: true,
	}

	rctx, cancel := m.remoteContext(ctx)
	id, err := m.store.Insert(rctx, session.UserID, &draft)
	cancel()
	if err != nil {
		m.logger.Warn("Failed to reserve recommendation draft", zap.Error(err))
		return models.Event{}, fmt.Errorf("failed to reserve draft: %w", err)
	}
	draft.ID = id

	if err := m.embed(ctx, draft); err != nil {
		m.logger.Warn("Failed to embed recommendation draft", zap.String("task_id", id), zap.Error(err))
		m.deleteRemote(ctx, session, id)
		return models.Event{}, fmt.Errorf("failed to embed draft: %w", err)
	}

	rctx, cancel = m.remoteContext(ctx)
	match, err := m.store.SimilaritySearch(rctx, id, session.UserID)
	cancel()
	if err != nil {
		m.logger.Warn("Similarity search failed", zap.String("task_id", id), zap.Error(err))
		m.deleteRemote(ctx, session, id)
		return models.Event{}, fmt.Errorf("failed to search similar events: %w", err)
	}
	if match == nil {
		m.logger.Info("No similar event, removing draft", zap.String("task_id", id))
		m.deleteRemote(ctx, session, id)
		return models.Event{}, ErrNoSimilarEvent
	}

	rec := models.Event{
		ID:      id,
		LocalID: uuid.NewString(),
		Title:   match.Title,
		Start:   match.Start.Add(RecommendOffset),
		End:     match.End.Add(RecommendOffset),
		ExtendedProps: models.ExtendedProps{
			Description: match.ExtendedProps.Description,
			Category:    match.ExtendedProps.Category,
			Priority:    match.ExtendedProps.Priority,
		},
		IsRecommend: true,
	}

	rctx, cancel = m.remoteContext(ctx)
	err = m.store.Update(rctx, id, session.UserID, fullPatch(rec))
	cancel()
	if err != nil {
		// Keep the recommendation as an unsynced local event; Sync will insert it.
		m.logger.Warn("Failed to update recommendation draft", zap.String("task_id", id), zap.Error(err))
		m.deleteRemote(ctx, session, id)
		rec.ID = ""
	}

	m.mu.Lock()
	err = m.saveLocally(ctx, append(slices.Clone(m.events), rec))
	m.mu.Unlock()
	if err != nil {
		return models.Event{}, err
	}
	m.publish(ctx, models.ChangeCreated, &rec)

	// The row now holds the match's text, so its embedding must follow
	if rec.IsSynced() {
		m.embedAsync(rec)
	}
	return rec, nil
}

func fullPatch(e models.Event) models.EventPatch {
	return models.EventPatch{
		Title:       &e.Title,
		Start:       &e.Start,
		End:         &e.End,
		Description: &e.ExtendedProps.Description,
		Category:    &e.ExtendedProps.Category,
		Completion:  &e.ExtendedProps.Completion,
		Priority:    &e.ExtendedProps.Priority,
		IsRecommend: &e.IsRecommend,
	}
}

// Edit merges the present fields of patch over the event addressed by ref.
// Synced events are patched remotely on a best-effort basis.
func (m *Manager) Edit(ctx context.Context, ref string, patch models.EventPatch) (models.Event, error) {
	if patch.Category != nil {
		category := models.NormalizeCategory(*patch.Category)
		patch.Category = &category
	}

	m.mu.Lock()
	i := m.indexOf(ref)
	if i < 0 {
		m.mu.Unlock()
		return models.Event{}, ErrNotFound
	}
	if patch.IsEmpty() {
		event := m.events[i]
		m.mu.Unlock()
		return event, nil
	}

	events := slices.Clone(m.events)
	textChanged := patch.Apply(&events[i])
	updated := events[i]
	err := m.saveLocally(ctx, events)
	m.mu.Unlock()
	if err != nil {
		return models.Event{}, err
	}
	m.publish(ctx, models.ChangeUpdated, &updated)

	if !updated.IsSynced() {
		return updated, nil
	}
	session := m.Session(ctx)
	if session == nil {
		return updated, nil
	}

	// date_interval holds both bounds, so send them together
	if patch.Start != nil || patch.End != nil {
		patch.Start, patch.End = &updated.Start, &updated.End
	}

	rctx, cancel := m.remoteContext(ctx)
	err = m.store.Update(rctx, updated.ID, session.UserID, patch)
	cancel()
	if err != nil {
		m.logger.Warn("Remote update failed, edit kept locally", zap.String("task_id", updated.ID), zap.Error(err))
		return updated, nil
	}

	if textChanged {
		m.embedAsync(updated)
	}
	return updated, nil
}

// Move reschedules the event addressed by ref. A zero end means end = start.
func (m *Manager) Move(ctx context.Context, ref string, start, end time.Time) (models.Event, error) {
	if end.IsZero() {
		end = start
	}
	return m.Edit(ctx, ref, models.EventPatch{Start: &start, End: &end})
}

// Delete removes the event locally and then remotely. A remote failure does
// not bring the event back.
func (m *Manager) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	i := m.indexOf(ref)
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	removed := m.events[i]
	err := m.saveLocally(ctx, slices.Delete(slices.Clone(m.events), i, i+1))
	if err == nil && m.inflight[removed.LocalID] {
		m.deleted[removed.LocalID] = true
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publish(ctx, models.ChangeDeleted, &removed)

	if !removed.IsSynced() {
		return nil
	}
	if session := m.Session(ctx); session != nil {
		m.deleteRemote(ctx, session, removed.ID)
	}
	return nil
}

func (m *Manager) deleteRemote(ctx context.Context, session *models.Session, id string) {
	rctx, cancel := m.remoteContext(ctx)
	defer cancel()

	if err := m.store.Delete(rctx, id, session.UserID); err != nil {
		m.logger.Warn("Remote delete failed", zap.String("task_id", id), zap.Error(err))
	}
}
