package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
)

// SnapshotLoader reads every stored snapshot.
type SnapshotLoader interface {
	Snapshots(ctx context.Context) ([]database.Snapshot, error)
}

// Seeder accepts a bulk load of states without publishing.
type Seeder interface {
	Seed(states []*entity.State)
}

// Restore seeds the cache from stored snapshots so the last known states
// are readable before the hub answers. Undecodable rows are skipped.
//
// Returns the number of states seeded.
func Restore(ctx context.Context, loader SnapshotLoader, seeder Seeder, logger Logger) (int, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	snapshots, err := loader.Snapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading snapshots: %w", err)
	}

	states := make([]*entity.State, 0, len(snapshots))
	for _, s := range snapshots {
		var st entity.State
		if err := json.Unmarshal(s.Current, &st); err != nil || st.EntityID == "" {
			logger.Warn("skipping unreadable snapshot", "entity_id", s.EntityID, "error", err)
			continue
		}
		states = append(states, &st)
	}
	if len(states) > 0 {
		seeder.Seed(states)
	}
	return len(states), nil
}
