package engine

import (
	"context"
	"fmt"
	"time"

	"jobform/internal/form"
	"jobform/internal/model"

	"go.uber.org/zap"
)

// SnapshotStore keeps session checkpoints. LoadSnapshot returns nil when
// there is none.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key string) (*model.SessionSnapshot, error)
	SaveSnapshot(ctx context.Context, key string, snap model.SessionSnapshot) error
	DeleteSnapshot(ctx context.Context, key string) error
}

// SnapshotKey identifies the checkpoint of one job's form.
func SnapshotKey(mode Mode, jobID, templateID string) string {
	return fmt.Sprintf("%s:%s:%s", mode, jobID, templateID)
}

// Checkpoint stores the session position and answers so an interrupted
// session can resume. It is a no-op without a snapshot store.
func (s *Session) Checkpoint(ctx context.Context) error {
	schema, nav, err := s.current()
	if err != nil {
		return err
	}
	if s.cfg.Snapshots == nil || s.Submitted() {
		return nil
	}
	snap := model.SessionSnapshot{
		TemplateID: schema.TemplateID(),
		GroupIndex: nav.Index(),
		Visited:    nav.VisitedGroups(),
		Answers:    s.store.Answers(),
		Dirty:      s.store.Dirty(),
		SavedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.cfg.Snapshots.SaveSnapshot(ctx, s.snapshotKey(schema), snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Session) restoreSnapshot(ctx context.Context) {
	schema, _, err := s.current()
	if err != nil || s.cfg.Snapshots == nil || s.Submitted() {
		return
	}
	snap, err := s.cfg.Snapshots.LoadSnapshot(ctx, s.snapshotKey(schema))
	if err != nil {
		s.log.Warn("Snapshot load failed", zap.Error(err))
		return
	}
	if snap == nil || snap.TemplateID != schema.TemplateID() {
		return
	}
	// Saved answers from the backend win unless the checkpoint holds edits
	// that never reached it.
	if snap.Dirty {
		s.store.Restore(schema.Normalize(snap.Answers))
	}
	s.mu.Lock()
	s.nav = form.NavigatorAt(schema.GroupCount(), snap.GroupIndex, snap.Visited)
	s.mu.Unlock()
	s.store.Validate(schema)
	s.log.Debug("Session restored from snapshot",
		zap.Int("group_index", snap.GroupIndex),
		zap.Bool("unsaved_edits", snap.Dirty))
}

func (s *Session) dropSnapshot(ctx context.Context) {
	schema := s.Schema()
	if s.cfg.Snapshots == nil || schema == nil {
		return
	}
	if err := s.cfg.Snapshots.DeleteSnapshot(ctx, s.snapshotKey(schema)); err != nil {
		s.log.Warn("Snapshot delete failed", zap.Error(err))
	}
}

func (s *Session) snapshotKey(schema *form.Schema) string {
	return SnapshotKey(s.mode, s.cfg.JobID, schema.TemplateID())
}
