package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/warrenhq/warren/pkg/fleet"
)

// snapshotVersion is bumped on incompatible snapshot layout changes.
const snapshotVersion = 1

// snapshot is the on-disk rendering of the full registry state. yaml.v3
// marshals map keys in sorted order, so the same state always produces the
// same bytes and any commit is byte-reproducible on rollback.
type snapshot struct {
	Version int                           `yaml:"version"`
	Agents  map[string]*fleet.AgentRecord `yaml:"agents"`
}

// encodeSnapshot renders the agent map to snapshot bytes.
func encodeSnapshot(agents map[string]*fleet.AgentRecord) ([]byte, error) {
	data, err := yaml.Marshal(snapshot{Version: snapshotVersion, Agents: agents})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// decodeSnapshot parses snapshot bytes back into an agent map.
func decodeSnapshot(data []byte) (map[string]*fleet.AgentRecord, error) {
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d (expected %d)", snap.Version, snapshotVersion)
	}
	if snap.Agents == nil {
		snap.Agents = make(map[string]*fleet.AgentRecord)
	}
	for id, rec := range snap.Agents {
		if rec == nil {
			return nil, fmt.Errorf("snapshot has empty record for agent %q", id)
		}
		if rec.ID == "" {
			rec.ID = id
		}
		if rec.ID != id {
			return nil, fmt.Errorf("snapshot key %q does not match record id %q", id, rec.ID)
		}
	}
	return snap.Agents, nil
}
