package managers

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/hidrodata/aquarisk/pkg/config"
)

// captureEngine records the run ids it receives, in arrival order.
type captureEngine struct {
	mu  sync.Mutex
	got []string
}

func (f *captureEngine) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.RunArtifacts {
	c := make(chan *types.RunArtifacts, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for a := range c {
			f.mu.Lock()
			f.got = append(f.got, a.Run.RunID)
			f.mu.Unlock()
		}
	}()
	return c
}

func (f *captureEngine) runs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestStorageManagerFansOutToAllEngines(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup

	s, err := NewStorageManager(ctx, &wg, &config.ConfigData{})
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	if len(s.Engines) != 0 {
		t.Fatalf("expected no engines from an empty config, got %d", len(s.Engines))
	}

	first := &captureEngine{}
	second := &captureEngine{}
	for _, e := range []*captureEngine{first, second} {
		s.Engines = append(s.Engines, StorageEngine{Engine: e, C: e.StartStorageEngine(ctx, &wg)})
	}

	s.Publish(&types.RunArtifacts{Run: types.PipelineRun{RunID: "run-1"}})
	s.Publish(&types.RunArtifacts{Run: types.PipelineRun{RunID: "run-2"}})
	s.Close()
	wg.Wait()

	for i, e := range []*captureEngine{first, second} {
		got := e.runs()
		if len(got) != 2 || got[0] != "run-1" || got[1] != "run-2" {
			t.Fatalf("engine %d saw runs %v, want [run-1 run-2]", i, got)
		}
	}
}

func TestStorageManagerStartsConfiguredCSVEngine(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup

	cfg := &config.ConfigData{}
	cfg.Artifacts.CSVDir = t.TempDir()

	s, err := NewStorageManager(ctx, &wg, cfg)
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	if len(s.Engines) != 1 {
		t.Fatalf("expected 1 engine, got %d", len(s.Engines))
	}

	s.Publish(&types.RunArtifacts{Run: types.PipelineRun{RunID: "run-9", Status: types.RunStatusFeatures}})
	s.Close()
	wg.Wait()

	if _, err := os.Stat(filepath.Join(cfg.Artifacts.CSVDir, "run-9", "run.csv")); err != nil {
		t.Fatalf("expected run.csv from CSV engine: %v", err)
	}
}

func TestAddEngineRejectsUnknownBackend(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup

	s, err := NewStorageManager(ctx, &wg, &config.ConfigData{})
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	if err := s.AddEngine(ctx, &wg, "influxdb", &config.ConfigData{}); err == nil {
		t.Fatal("expected error for unknown backend name")
	}
	s.Close()
	wg.Wait()
}
