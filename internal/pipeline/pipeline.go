// Package pipeline orchestrates the four-stage failure-risk scoring run:
// physical features with pseudo-labels, autoencoder embedding, latent cohort
// clustering, and risk scoring. A run executes all stages chained in one
// process, or a single stage resumed against the persisted artifacts of an
// earlier run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/hidrodata/aquarisk/internal/database"
	"github.com/hidrodata/aquarisk/internal/embedder"
	"github.com/hidrodata/aquarisk/internal/features"
	"github.com/hidrodata/aquarisk/internal/managers"
	"github.com/hidrodata/aquarisk/internal/metrics"
	"github.com/hidrodata/aquarisk/internal/risk"
	"github.com/hidrodata/aquarisk/internal/types"
	"github.com/hidrodata/aquarisk/pkg/config"
)

// Stage names accepted by Run.
const (
	StageAll      = "all"
	StageFeatures = "features"
	StageEmbed    = "embed"
	StageScore    = "score"
)

// Options selects what to run. An empty Stage runs everything; an empty
// RunID resumes the most recent run when a single later stage is requested.
type Options struct {
	Stage string
	RunID string
}

// Pipeline executes scoring runs against one source database, publishing
// stage artifacts to the storage manager as they complete.
type Pipeline struct {
	cfg    *config.ConfigData
	db     *database.Client
	store  *managers.StorageManager
	logger *zap.SugaredLogger
}

// New returns a Pipeline. store may be nil when no artifact sink is wanted.
func New(cfg *config.ConfigData, db *database.Client, store *managers.StorageManager, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, store: store, logger: logger}
}

// Run executes the requested stage. Configuration problems surface before
// any stage starts; a resumed stage fails with ErrMissingArtifact when the
// upstream artifacts it consumes were never persisted.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	if err := p.cfg.Validate(); err != nil {
		return &ConfigError{Field: "pipeline", Reason: err.Error()}
	}

	stage := opts.Stage
	if stage == "" {
		stage = StageAll
	}

	start := time.Now()
	var err error
	switch stage {
	case StageAll:
		err = p.runAll(ctx)
	case StageFeatures:
		err = p.runFeatures(ctx)
	case StageEmbed:
		err = p.runEmbed(ctx, opts.RunID)
	case StageScore:
		err = p.runScore(ctx, opts.RunID)
	default:
		return &ConfigError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	metrics.RecordRun(stage, time.Since(start), err)
	return err
}

func (p *Pipeline) runAll(ctx context.Context) error {
	st, err := p.newState()
	if err != nil {
		return err
	}
	p.logger.Infof("starting run %s over %s..%s", st.run.RunID, p.cfg.Window.StartMonth, p.cfg.Window.EndMonth)

	if err := p.loadSource(st); err != nil {
		return err
	}
	if err := p.stageFeatures(st); err != nil {
		return err
	}
	p.publish(featureArtifacts(st))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stageEmbed(st); err != nil {
		return err
	}
	p.publish(embedArtifacts(st))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stageScore(st); err != nil {
		return err
	}
	p.publish(scoreArtifacts(st))

	p.logger.Infof("run %s scored %d meters across %d cohorts", st.run.RunID, len(st.meterIDs), st.run.CohortCount)
	return nil
}

func (p *Pipeline) runFeatures(ctx context.Context) error {
	st, err := p.newState()
	if err != nil {
		return err
	}
	p.logger.Infof("starting run %s, features stage only", st.run.RunID)

	if err := p.loadSource(st); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stageFeatures(st); err != nil {
		return err
	}
	p.publish(featureArtifacts(st))

	p.logger.Infof("run %s assembled %d feature vectors of width %d", st.run.RunID, len(st.vectors), st.run.FeatureWidth)
	return nil
}

func (p *Pipeline) runEmbed(ctx context.Context, runID string) error {
	st, err := p.resumeState(runID)
	if err != nil {
		return err
	}
	p.logger.Infof("resuming run %s at the embed stage", st.run.RunID)

	if err := p.loadVectors(st); err != nil {
		return err
	}
	if err := p.loadSnapshot(st); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stageEmbed(st); err != nil {
		return err
	}
	p.publish(embedArtifacts(st))

	p.logger.Infof("run %s embedded %d meters into %d dimensions", st.run.RunID, len(st.meterIDs), st.run.LatentDim)
	return nil
}

func (p *Pipeline) runScore(ctx context.Context, runID string) error {
	st, err := p.resumeState(runID)
	if err != nil {
		return err
	}
	p.logger.Infof("resuming run %s at the score stage", st.run.RunID)

	if err := p.loadLatents(st); err != nil {
		return err
	}
	if err := p.loadPhysical(st); err != nil {
		return err
	}
	if p.cfg.Subcounting.Enabled {
		readings, err := p.db.FetchReadings(p.cfg.Window.UsageClass)
		if err != nil {
			return err
		}
		st.readings = readings
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stageScore(st); err != nil {
		return err
	}
	p.publish(scoreArtifacts(st))

	p.logger.Infof("run %s scored %d meters across %d cohorts", st.run.RunID, len(st.meterIDs), st.run.CohortCount)
	return nil
}

// newState builds the consumption window and a fresh run record.
func (p *Pipeline) newState() (*state, error) {
	months, err := p.cfg.Window.Months()
	if err != nil {
		return nil, &ConfigError{Field: "window", Reason: err.Error()}
	}
	reference, err := p.cfg.Window.Reference()
	if err != nil {
		return nil, &ConfigError{Field: "window.reference_date", Reason: err.Error()}
	}
	return &state{
		run: types.PipelineRun{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
		},
		months:    months,
		reference: reference,
	}, nil
}

// resumeState rebuilds state around a persisted run record, keeping the
// window from the current configuration.
func (p *Pipeline) resumeState(runID string) (*state, error) {
	st, err := p.newState()
	if err != nil {
		return nil, err
	}

	var run *types.PipelineRun
	if runID == "" {
		run, err = p.db.GetLatestRun("")
		if err != nil {
			if database.IsNotFound(err) {
				return nil, fmt.Errorf("no pipeline runs recorded yet: %w", ErrMissingArtifact)
			}
			return nil, fmt.Errorf("error querying latest run: %w", err)
		}
	} else {
		run, err = p.db.GetRun(runID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, missingArtifact(runID, "run record")
			}
			return nil, fmt.Errorf("error querying run %s: %w", runID, err)
		}
	}
	st.run = *run
	return st, nil
}

func (p *Pipeline) loadSource(st *state) error {
	meters, err := p.db.FetchMeters(p.cfg.Window.UsageClass)
	if err != nil {
		return err
	}
	if len(meters) == 0 {
		return fmt.Errorf("no meters found for usage class %q", p.cfg.Window.UsageClass)
	}
	readings, err := p.db.FetchReadings(p.cfg.Window.UsageClass)
	if err != nil {
		return err
	}
	st.meters = meters
	st.readings = readings
	p.logger.Infof("loaded %d meters and %d readings", len(meters), len(readings))
	return nil
}

func (p *Pipeline) loadVectors(st *state) error {
	rows, err := p.db.GetFeatureVectors(st.run.RunID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return missingArtifact(st.run.RunID, "feature vectors")
	}
	if len(st.run.FeatureColumns) > 0 {
		if err := msgpack.Unmarshal(st.run.FeatureColumns, &st.columns); err != nil {
			return fmt.Errorf("decoding column manifest: %w", err)
		}
	}
	st.meterIDs = make([]string, len(rows))
	st.vectors = make([][]float64, len(rows))
	for i, r := range rows {
		st.meterIDs[i] = r.MeterID
		var v []float64
		if err := msgpack.Unmarshal(r.Vector, &v); err != nil {
			return fmt.Errorf("decoding feature vector for %s: %w", r.MeterID, err)
		}
		st.vectors[i] = v
	}
	return nil
}

// loadSnapshot restores the fitted normalizers saved with the run. The
// snapshot is required: artifacts are only valid against the exact
// normalizer state that produced them.
func (p *Pipeline) loadSnapshot(st *state) error {
	if st.run.SnapshotPath == "" {
		return missingArtifact(st.run.RunID, "model snapshot")
	}
	snap, err := embedder.LoadSnapshot(st.run.SnapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return missingArtifact(st.run.RunID, "model snapshot")
		}
		return err
	}
	if snap.RunID != st.run.RunID {
		return fmt.Errorf("snapshot %s belongs to run %s, not %s", st.run.SnapshotPath, snap.RunID, st.run.RunID)
	}
	st.assembler = snap.Assembler
	st.centroids = snap.StageOneCentroids
	if len(snap.Columns) > 0 {
		st.columns = snap.Columns
	}
	return nil
}

func (p *Pipeline) loadLatents(st *state) error {
	rows, err := p.db.GetLatentVectors(st.run.RunID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return missingArtifact(st.run.RunID, "latent vectors")
	}
	st.meterIDs = make([]string, len(rows))
	st.latents = make([][]float64, len(rows))
	for i, r := range rows {
		st.meterIDs[i] = r.MeterID
		var z []float64
		if err := msgpack.Unmarshal(r.Vector, &z); err != nil {
			return fmt.Errorf("decoding latent vector for %s: %w", r.MeterID, err)
		}
		if st.run.LatentDim > 0 && len(z) != st.run.LatentDim {
			return &DimensionMismatchError{
				What: fmt.Sprintf("latent vector for meter %s", r.MeterID),
				Want: st.run.LatentDim,
				Got:  len(z),
			}
		}
		st.latents[i] = z
	}
	return nil
}

// loadPhysical recovers age and usage for the resumed population, aligned
// with the meter order loadLatents established.
func (p *Pipeline) loadPhysical(st *state) error {
	rows, err := p.db.GetFeatureRows(st.run.RunID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return missingArtifact(st.run.RunID, "physical features")
	}
	byMeter := make(map[string]types.PhysicalFeatureRow, len(rows))
	for _, r := range rows {
		byMeter[r.MeterID] = r
	}
	st.ages = make([]float64, len(st.meterIDs))
	st.usages = make([]float64, len(st.meterIDs))
	for i, id := range st.meterIDs {
		r, ok := byMeter[id]
		if !ok {
			return missingArtifact(st.run.RunID, fmt.Sprintf("physical features for meter %s", id))
		}
		st.ages[i] = r.AgeYears
		st.usages[i] = r.AccumulatedUsage
	}
	return nil
}

func (p *Pipeline) publish(a *types.RunArtifacts) {
	if p.store != nil {
		p.store.Publish(a)
	}
}

// snapshotPath places a run's snapshot under the configured artifact
// directory.
func (p *Pipeline) snapshotPath(runID string) string {
	return filepath.Join(p.cfg.Artifacts.SnapshotDir, "snapshot-"+runID+".msgpack")
}

// state carries one run's data between stages. A chained run fills it
// stage by stage; a resumed run reconstructs the prefix from persisted
// artifacts.
type state struct {
	run       types.PipelineRun
	months    []time.Time
	reference time.Time

	meters   []types.Meter
	readings []types.ConsumptionReading

	physical     []features.Physical
	assembler    *features.Assembler
	columns      []string
	pseudoLabels []int
	centroids    [][]float64

	meterIDs []string
	ages     []float64
	usages   []float64

	vectors [][]float64
	latents [][]float64

	labels      []int
	cohortStats []risk.CohortDegradation
	scores      []risk.Score
}
