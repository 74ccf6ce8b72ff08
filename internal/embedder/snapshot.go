package embedder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hidrodata/aquarisk/internal/features"
)

// Snapshot bundles everything a later stage needs to reproduce a run's
// latent space: the fitted normalizers, the column manifest, the Stage I
// centroids and the encoder weights. The pieces are versioned together
// because none of them is valid against another run's population.
type Snapshot struct {
	RunID             string              `msgpack:"run_id"`
	CreatedAt         time.Time           `msgpack:"created_at"`
	Columns           []string            `msgpack:"columns"`
	Assembler         *features.Assembler `msgpack:"assembler"`
	StageOneK         int                 `msgpack:"stage_one_k"`
	StageOneCentroids [][]float64         `msgpack:"stage_one_centroids"`
	Encoder           *Autoencoder        `msgpack:"encoder"`
}

// Save writes the snapshot to path, creating parent directories as
// needed.
func (s *Snapshot) Save(path string) error {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if s.Encoder != nil && s.Encoder.Net != nil {
		s.Encoder.Net.initState()
	}
	return &s, nil
}
