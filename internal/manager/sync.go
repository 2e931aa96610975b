package manager

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

// Refresh fetches the remote rows of the session user and reconciles them
// with the local list. Without a session, or when the fetch fails, the local
// list stays as it is.
func (m *Manager) Refresh(ctx context.Context) error {
	session := m.Session(ctx)
	if session == nil {
		return nil
	}

	rctx, cancel := m.remoteContext(ctx)
	remote, err := m.store.FetchForUser(rctx, session.UserID)
	cancel()
	if err != nil {
		m.logger.Warn("Remote fetch failed, keeping local events", zap.Error(err))
		return nil
	}

	m.mu.Lock()
	var events []models.Event
	if m.opts.BootstrapMode == BootstrapReplace {
		events = remote
	} else {
		events = merge(m.events, remote)
	}
	if events == nil {
		events = []models.Event{}
	}
	err = m.saveLocally(ctx, events)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info("Reconciled with remote",
		zap.String("mode", m.opts.BootstrapMode),
		zap.Int("remote", len(remote)),
		zap.Int("total", len(events)))
	m.publish(ctx, models.ChangeReplaced, nil)

	if m.opts.SyncOnLogin && m.opts.BootstrapMode == BootstrapMerge {
		if _, err := m.Sync(ctx); err != nil {
			m.logger.Warn("Sync after refresh failed", zap.Error(err))
		}
	}
	return nil
}

// merge takes the remote rows as truth for synced events and keeps local
// events that were never synced. Local ids are carried over by remote id.
func merge(local, remote []models.Event) []models.Event {
	localIDs := make(map[string]string, len(local))
	for _, e := range local {
		if e.IsSynced() {
			localIDs[e.ID] = e.LocalID
		}
	}

	out := make([]models.Event, 0, len(remote)+len(local))
	for _, e := range remote {
		e.LocalID = localIDs[e.ID]
		out = append(out, e)
	}
	for _, e := range local {
		if !e.IsSynced() {
			out = append(out, e)
		}
	}
	return out
}

// SignIn stores the session of token and reconciles with the remote store.
func (m *Manager) SignIn(ctx context.Context, token string) (*models.Session, error) {
	session, err := m.sessions.SignIn(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := m.Refresh(ctx); err != nil {
		return session, err
	}
	return session, nil
}

// Logout ends the session and clears the local list and snapshot.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.sessions.SignOut(ctx); err != nil {
		m.logger.Warn("Sign out failed", zap.Error(err))
	}

	m.mu.Lock()
	err := m.cache.Clear(ctx)
	if err == nil {
		m.events = []models.Event{}
	}
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear local events: %w", err)
	}

	m.logger.Info("Logged out, local events cleared")
	m.publish(ctx, models.ChangeReplaced, nil)
	return nil
}

// Sync inserts every unsynced local event and records the assigned ids.
// It returns how many events were synced.
func (m *Manager) Sync(ctx context.Context) (int, error) {
	session := m.Session(ctx)
	if session == nil {
		return 0, models.ErrNoSession
	}

	m.mu.Lock()
	var pending []models.Event
	for _, e := range m.events {
		if !e.IsSynced() && m.reserve(e.LocalID) {
			pending = append(pending, e)
		}
	}
	m.mu.Unlock()

	synced := 0
	for i, e := range pending {
		if ctx.Err() != nil {
			for _, rest := range pending[i:] {
				m.release(rest.LocalID)
			}
			return synced, ctx.Err()
		}
		id, ok := m.insertRemote(ctx, session, &e)
		if !ok {
			m.release(e.LocalID)
			continue
		}
		current, ok := m.assignID(ctx, session, e, id)
		if !ok {
			continue
		}
		m.embedAsync(current)
		synced++
	}

	if len(pending) > 0 {
		m.logger.Info("Synced local events", zap.Int("pending", len(pending)), zap.Int("synced", synced))
	}
	return synced, nil
}

// Backfill embeds up to limit remote events that have no embedding yet.
func (m *Manager) Backfill(ctx context.Context, limit int) (int, error) {
	session := m.Session(ctx)
	if session == nil {
		return 0, models.ErrNoSession
	}

	rctx, cancel := m.remoteContext(ctx)
	missing, err := m.store.MissingEmbeddings(rctx, session.UserID, limit)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to list events without embedding: %w", err)
	}

	done := 0
	for _, e := range missing {
		if err := m.embed(ctx, e); err != nil {
			m.logger.Warn("Backfill embedding failed", zap.String("task_id", e.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

// Import replaces the local list with events. Events keep their remote ids;
// missing local ids are assigned.
func (m *Manager) Import(ctx context.Context, events []models.Event) error {
	events = slices.Clone(events)
	if events == nil {
		events = []models.Event{}
	}
	for i := range events {
		if events[i].LocalID == "" {
			events[i].LocalID = uuid.NewString()
		}
		events[i].NormalizeEnd()
	}

	m.mu.Lock()
	err := m.saveLocally(ctx, events)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info("Imported events", zap.Int("count", len(events)))
	m.publish(ctx, models.ChangeReplaced, nil)
	return nil
}
