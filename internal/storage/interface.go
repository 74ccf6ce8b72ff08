// Package storage defines interfaces and implementations for pipeline artifact sinks.
package storage

import (
	"context"
	"sync"

	"github.com/hidrodata/aquarisk/internal/types"
)

// ArtifactEngineInterface is an interface that provides a few standardized
// methods for various artifact storage backends
type ArtifactEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- *types.RunArtifacts
}
