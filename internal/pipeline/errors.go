package pipeline

import (
	"errors"
	"fmt"
)

// ErrMissingArtifact marks a stage invoked without the upstream artifact it
// consumes. Checked with errors.Is; the wrap carries run and artifact
// context.
var ErrMissingArtifact = errors.New("missing upstream artifact")

func missingArtifact(runID, artifact string) error {
	return fmt.Errorf("run %s has no %s: %w", runID, artifact, ErrMissingArtifact)
}

// DimensionMismatchError reports data whose width disagrees with the
// architecture or column manifest consuming it. Raised before training or
// inference proceeds.
type DimensionMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s is %d wide, expected %d", e.What, e.Got, e.Want)
}

// ConfigError reports a configuration the affected stage cannot run with.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
