package operations

import "errors"

// Registry stores untyped operations for retrieval by ID. It backs the CLI
// task listing and any host that dispatches operations by name.
type Registry struct {
	ops []*Operation[any, any, any]
}

// NewRegistry creates a new Registry with the provided untyped operations.
func NewRegistry(ops ...*Operation[any, any, any]) *Registry {
	return &Registry{
		ops: ops,
	}
}

// Retrieve returns the operation registered under the given ID.
// It returns an error if the operation is not found.
func (r *Registry) Retrieve(id string) (*Operation[any, any, any], error) {
	for _, op := range r.ops {
		if op.ID() == id {
			return op, nil
		}
	}

	return nil, errors.New("operation not found in registry")
}

// IDs returns the IDs of all registered operations, in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.ops))
	for _, op := range r.ops {
		ids = append(ids, op.ID())
	}

	return ids
}

// Register registers new operations in the registry. To register operations
// with different input, output, and dependency types, call Register multiple
// times with different type parameters.
func Register[IN, OUT, DEP any](r *Registry, ops ...*Operation[IN, OUT, DEP]) {
	for _, o := range ops {
		r.ops = append(r.ops, o.AsUntyped())
	}
}
