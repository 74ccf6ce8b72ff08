package storage

import (
	"context"
	"sync"

	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/types"
)

// ProcessArtifacts provides a standard pattern for consuming artifact bundles
// from a channel. The loop ends when the channel closes; on cancellation it
// flushes whatever is already queued so a finished run is not dropped.
func ProcessArtifacts(ctx context.Context, wg *sync.WaitGroup, artifactChan <-chan *types.RunArtifacts, processor func(*types.RunArtifacts) error, name string) {
	defer wg.Done()

	for {
		select {
		case a, ok := <-artifactChan:
			if !ok {
				return
			}
			if err := processor(a); err != nil {
				log.Errorf("%s artifact writer error: %v", name, err)
			}
		case <-ctx.Done():
			log.Infof("cancellation request received. Flushing %s artifact writer", name)
			for {
				select {
				case a, ok := <-artifactChan:
					if !ok {
						return
					}
					if err := processor(a); err != nil {
						log.Errorf("%s artifact writer error: %v", name, err)
					}
				default:
					return
				}
			}
		}
	}
}
