package commands

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// StateManager is the thin reconciliation layer between the orchestrator and
// a Project's cached state. It is the only thing that mutates Project.State.
type StateManager struct {
	Log     *logrus.Entry
	Compose *Compose
}

// NewStateManager state manager
func NewStateManager(log *logrus.Entry, compose *Compose) *StateManager {
	return &StateManager{Log: log, Compose: compose}
}

// Start brings the project's stack up. On failure the state becomes Unknown
// rather than Stopped, forcing a re-query instead of a guess.
func (m *StateManager) Start(ctx context.Context, project *Project) error {
	if err := m.Compose.Up(ctx, project); err != nil {
		project.State = StateUnknown
		project.LastUpdated = time.Now()
		return err
	}

	project.State = StateRunning
	project.LastUpdated = time.Now()
	return nil
}

// Stop tears the project's stack down. When the cached state already shows
// nothing running we skip the runtime call entirely; `down` is idempotent
// anyway, this just avoids a pointless subprocess.
func (m *StateManager) Stop(ctx context.Context, project *Project) error {
	if project.State == StateStopped {
		m.Log.WithField("project", project.Config.Name).Debug("stop skipped, nothing running")
		return nil
	}

	if err := m.Compose.Down(ctx, project); err != nil {
		project.State = StateUnknown
		project.LastUpdated = time.Now()
		return err
	}

	project.State = StateStopped
	project.LastUpdated = time.Now()
	return nil
}

// SyncState re-queries the runtime and overwrites the cached state with
// observed truth: Running iff at least one service reports running.
func (m *StateManager) SyncState(ctx context.Context, project *Project) error {
	statuses, err := m.Compose.Status(ctx, project)
	if err != nil {
		project.State = StateUnknown
		project.LastUpdated = time.Now()
		return err
	}

	if lo.SomeBy(statuses, ServiceStatus.Running) {
		project.State = StateRunning
	} else {
		project.State = StateStopped
	}
	project.LastUpdated = time.Now()
	return nil
}
