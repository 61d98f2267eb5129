package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Trigger is the optional run-time override payload supplied per execution
// by the invoking context. It is read-only to the tasks.
type Trigger struct {
	// FullRefresh forces --full-refresh on the run. Defaults to false.
	FullRefresh bool `json:"full_refresh,omitempty"`
	// Models restricts execution to the listed model selectors. When present
	// and the configured selector is not a member, the run is skipped. A nil
	// slice means no restriction; an empty one skips everything.
	Models []string `json:"models,omitempty"`
	// WarehouseName and WarehouseSize select and resize the warehouse before
	// the run. Both must be present for the override to apply; partial
	// overrides are ignored.
	WarehouseName string `json:"warehouse_name,omitempty"`
	WarehouseSize string `json:"warehouse_size,omitempty"`
}

// ParseTrigger decodes a trigger payload from JSON. Empty input yields the
// zero trigger.
func ParseTrigger(data []byte) (Trigger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Trigger{}, nil
	}

	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return Trigger{}, fmt.Errorf("parsing trigger payload: %w", err)
	}

	return t, nil
}

// HasWarehouseOverride reports whether both the warehouse name and size are
// explicitly present.
func (t Trigger) HasWarehouseOverride() bool {
	return t.WarehouseName != "" && t.WarehouseSize != ""
}

// restrictsModel reports whether a model restriction is present that
// excludes the given selector.
func (t Trigger) restrictsModel(selector string) bool {
	if t.Models == nil {
		return false
	}
	for _, m := range t.Models {
		if m == selector {
			return false
		}
	}

	return true
}
