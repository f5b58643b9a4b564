package etl

import "fmt"

// DefinitionError reports a field definition entry that is neither a bare
// name nor a record carrying a name. It is raised while a source is being
// configured, never during iteration.
type DefinitionError struct {
	Index  int
	Value  any
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("field definition %d (%T): %s: each entry must be a name or a record with a name", e.Index, e.Value, e.Reason)
}
