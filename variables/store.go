// Package variables reads persisted runtime variables, most importantly the
// essential-models list that exempts models from automatic full-refresh
// recovery.
package variables

import (
	"context"
	"errors"
)

// EssentialModelsKey is the variable holding the JSON list of model
// selectors that must never be full-refreshed automatically.
const EssentialModelsKey = "dbt_essential_models"

// ErrNotFound is returned when a variable does not exist in the store.
var ErrNotFound = errors.New("variable not found")

// Store reads variables persisted outside this process. Values are JSON
// documents; implementations are read-only from this component's view.
type Store interface {
	// GetJSON fetches the variable by key and unmarshals its value into out.
	// Returns ErrNotFound when the key does not exist.
	GetJSON(ctx context.Context, key string, out any) error
}

// EssentialModels fetches the essential-models list, defaulting to empty
// when the variable is not set. The list is fetched fresh on every call so
// operator-made changes apply to the next error-handling decision.
func EssentialModels(ctx context.Context, store Store) ([]string, error) {
	var models []string
	err := store.GetJSON(ctx, EssentialModelsKey, &models)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return models, nil
}
