package pipeline

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hidrodata/aquarisk/internal/cluster"
	"github.com/hidrodata/aquarisk/internal/embedder"
	"github.com/hidrodata/aquarisk/internal/features"
	"github.com/hidrodata/aquarisk/internal/risk"
	"github.com/hidrodata/aquarisk/internal/subcount"
	"github.com/hidrodata/aquarisk/internal/types"
)

// stageFeatures derives physical features, assigns pseudo-labels and
// assembles the feature matrix. The fitted normalizers are persisted as a
// snapshot immediately so later stages can be resumed against them.
func (p *Pipeline) stageFeatures(st *state) error {
	st.physical = features.BuildPhysical(st.meters, st.readings, st.reference)
	if len(st.physical) == 0 {
		return fmt.Errorf("no meters to score for usage class %q", p.cfg.Window.UsageClass)
	}

	st.meterIDs = make([]string, len(st.physical))
	st.ages = make([]float64, len(st.physical))
	st.usages = make([]float64, len(st.physical))
	for i, f := range st.physical {
		st.meterIDs[i] = f.MeterID
		st.ages[i] = f.AgeYears
		st.usages[i] = f.AccumulatedUsage
	}

	st.assembler = features.NewAssembler(st.months)
	st.assembler.Fit(st.physical)

	matrix := st.assembler.StageOneMatrix(st.physical)
	var sel *cluster.Selection
	var err error
	if p.cfg.StageOne.FixedK > 0 {
		sel, err = cluster.FitFixed(matrix, p.cfg.StageOne.FixedK, p.scan(p.cfg.StageOne.KMin, p.cfg.StageOne.KMax))
	} else {
		sel, err = cluster.SelectK(matrix, p.scan(p.cfg.StageOne.KMin, p.cfg.StageOne.KMax))
	}
	if err != nil {
		return fmt.Errorf("physical clustering: %w", err)
	}
	st.pseudoLabels = sel.Result.Labels
	st.centroids = sel.Result.Centroids
	p.logger.Infof("physical pseudo-labels: k=%d, silhouette %.3f", sel.K, sel.Silhouette)

	monthly := features.MonthlyMeans(st.readings, st.months)
	st.vectors, err = st.assembler.Assemble(st.physical, st.pseudoLabels, monthly)
	if err != nil {
		return fmt.Errorf("assembling feature vectors: %w", err)
	}
	st.columns = st.assembler.Columns()

	manifest, err := msgpack.Marshal(st.columns)
	if err != nil {
		return fmt.Errorf("encoding column manifest: %w", err)
	}

	st.run.Status = types.RunStatusFeatures
	st.run.Population = len(st.physical)
	st.run.FeatureWidth = st.assembler.Width()
	st.run.FeatureColumns = manifest
	st.run.StageOneK = sel.K

	snap := &embedder.Snapshot{
		RunID:             st.run.RunID,
		CreatedAt:         time.Now().UTC(),
		Columns:           st.columns,
		Assembler:         st.assembler,
		StageOneK:         sel.K,
		StageOneCentroids: st.centroids,
	}
	path := p.snapshotPath(st.run.RunID)
	if err := snap.Save(path); err != nil {
		return err
	}
	st.run.SnapshotPath = path
	return nil
}

// stageEmbed trains the autoencoder over the feature matrix and encodes
// the population. The snapshot is rewritten with the trained encoder so
// the scoring stage and any later inference share the exact model.
func (p *Pipeline) stageEmbed(st *state) error {
	width := len(st.columns)
	if width == 0 {
		width = st.run.FeatureWidth
	}
	if width == 0 && len(st.vectors) > 0 {
		width = len(st.vectors[0])
	}
	for i, v := range st.vectors {
		if len(v) != width {
			return &DimensionMismatchError{
				What: fmt.Sprintf("feature vector for meter %s", st.meterIDs[i]),
				Want: width,
				Got:  len(v),
			}
		}
	}

	enc, err := embedder.NewAutoencoder(width, p.embedderConfig())
	if err != nil {
		return &ConfigError{Field: "embedder", Reason: err.Error()}
	}

	before := enc.ReconstructionLoss(st.vectors)
	res, err := enc.Train(st.vectors)
	if err != nil {
		return fmt.Errorf("training autoencoder: %w", err)
	}
	p.logger.Infof("autoencoder trained %d epochs (best %d), reconstruction %.6f -> %.6f",
		res.Epochs, res.BestEpoch, before, enc.ReconstructionLoss(st.vectors))

	st.latents, err = enc.EncodeAll(st.vectors)
	if err != nil {
		return fmt.Errorf("encoding population: %w", err)
	}

	st.run.Status = types.RunStatusEmbedded
	st.run.LatentDim = enc.LatentDim

	snap := &embedder.Snapshot{
		RunID:             st.run.RunID,
		CreatedAt:         time.Now().UTC(),
		Columns:           st.columns,
		Assembler:         st.assembler,
		StageOneK:         st.run.StageOneK,
		StageOneCentroids: st.centroids,
		Encoder:           enc,
	}
	path := st.run.SnapshotPath
	if path == "" {
		path = p.snapshotPath(st.run.RunID)
	}
	if err := snap.Save(path); err != nil {
		return err
	}
	st.run.SnapshotPath = path
	return nil
}

// stageScore clusters the latent space into cohorts, scores anomaly and
// degradation, folds in subcounting evidence when enabled, and ranks the
// population by final risk.
func (p *Pipeline) stageScore(st *state) error {
	labels, silhouette, err := p.clusterLatents(st.latents)
	if err != nil {
		return err
	}
	st.labels = labels

	distinct := make(map[int]struct{})
	for _, l := range labels {
		if l != cluster.Noise {
			distinct[l] = struct{}{}
		}
	}
	st.run.CohortMethod = p.cfg.Cohort.Method
	st.run.CohortCount = len(distinct)
	st.run.Silhouette = silhouette
	p.logger.Infof("latent cohorts: %d by %s, silhouette %.3f", len(distinct), p.cfg.Cohort.Method, silhouette)

	anomaly, err := risk.AnomalyScores(st.latents, labels, p.cfg.Cohort.Mahalanobis)
	if err != nil {
		return fmt.Errorf("anomaly scoring: %w", err)
	}

	st.cohortStats, err = risk.Degradation(st.ages, st.usages, labels, p.cfg.Risk.AgeWeight, p.cfg.Risk.UsageWeight)
	if err != nil {
		return fmt.Errorf("degradation scoring: %w", err)
	}

	var subcounts map[string]float64
	if p.cfg.Subcounting.Enabled {
		cohorts := make(map[string]int, len(st.meterIDs))
		for i, id := range st.meterIDs {
			cohorts[id] = labels[i]
		}
		metrics := subcount.Detect(st.readings, cohorts, p.subcountConfig())
		subcounts = make(map[string]float64, len(metrics))
		for _, m := range metrics {
			subcounts[m.MeterID] = m.Score
		}
	}

	scores, err := risk.Combine(st.meterIDs, labels, anomaly, risk.DegradationByLabel(st.cohortStats), subcounts, risk.CombineConfig{
		AnomalyWeight:     p.cfg.Risk.AnomalyWeight,
		DegradationWeight: p.cfg.Risk.DegradationWeight,
		SubcountCap:       p.cfg.Risk.SubcountCap,
		Subcounting:       p.cfg.Subcounting.Enabled,
	})
	if err != nil {
		return fmt.Errorf("combining risk: %w", err)
	}
	st.scores = scores

	st.run.Status = types.RunStatusScored
	st.run.FinishedAt = time.Now().UTC()
	return nil
}

func (p *Pipeline) clusterLatents(latents [][]float64) ([]int, float64, error) {
	switch p.cfg.Cohort.Method {
	case "kmeans":
		var sel *cluster.Selection
		var err error
		if p.cfg.Cohort.FixedK > 0 {
			sel, err = cluster.FitFixed(latents, p.cfg.Cohort.FixedK, p.scan(p.cfg.Cohort.KMin, p.cfg.Cohort.KMax))
		} else {
			sel, err = cluster.SelectK(latents, p.scan(p.cfg.Cohort.KMin, p.cfg.Cohort.KMax))
		}
		if err != nil {
			return nil, 0, fmt.Errorf("latent clustering: %w", err)
		}
		return sel.Result.Labels, sel.Silhouette, nil
	case "dbscan":
		labels, err := cluster.DBSCAN(latents, p.cfg.Cohort.Eps, p.cfg.Cohort.MinPoints)
		if err != nil {
			return nil, 0, &ConfigError{Field: "cohort", Reason: err.Error()}
		}
		return labels, cluster.Evaluate(latents, labels).Silhouette, nil
	default:
		return nil, 0, &ConfigError{Field: "cohort.method", Reason: fmt.Sprintf("unknown clustering method %q", p.cfg.Cohort.Method)}
	}
}

// scan carries the k-means mechanics shared by both clustering stages;
// only the k bounds differ per stage.
func (p *Pipeline) scan(kmin, kmax int) cluster.Scan {
	return cluster.Scan{
		KMin:    kmin,
		KMax:    kmax,
		NInit:   p.cfg.StageOne.NInit,
		MaxIter: p.cfg.StageOne.MaxIter,
		Seed:    p.cfg.StageOne.Seed,
	}
}

func (p *Pipeline) embedderConfig() embedder.Config {
	e := p.cfg.Embedder
	return embedder.Config{
		HiddenDims:      e.HiddenDims,
		LatentDim:       e.LatentDim,
		Dropout:         e.Dropout,
		LearningRate:    e.LearningRate,
		WeightDecay:     e.WeightDecay,
		Epochs:          e.Epochs,
		BatchSize:       e.BatchSize,
		Patience:        e.Patience,
		MinDelta:        e.MinDelta,
		ValidationSplit: e.ValidationSplit,
		Seed:            e.Seed,
	}
}

func (p *Pipeline) subcountConfig() subcount.Config {
	s := p.cfg.Subcounting
	return subcount.Config{
		CohortMedians:      s.CohortMedians,
		RecentWindow:       s.RecentWindow,
		BaselineWindow:     s.BaselineWindow,
		MinHistory:         s.MinHistory,
		RatioFloor:         s.RatioFloor,
		RatioCeil:          s.RatioCeil,
		SlopeFloor:         s.SlopeFloor,
		WeightRatio:        s.WeightRatio,
		WeightSlope:        s.WeightSlope,
		WeightChange:       s.WeightChange,
		ReinforceThreshold: s.ReinforceThreshold,
		ReinforceCount:     s.ReinforceCount,
	}
}

func featureArtifacts(st *state) *types.RunArtifacts {
	rows := make([]types.PhysicalFeatureRow, len(st.physical))
	for i, f := range st.physical {
		rows[i] = types.PhysicalFeatureRow{
			RunID:            st.run.RunID,
			MeterID:          f.MeterID,
			AgeYears:         f.AgeYears,
			DiameterMM:       f.DiameterMM,
			AccumulatedUsage: f.AccumulatedUsage,
			BrandModel:       f.BrandModel,
			ClusterLabel:     st.pseudoLabels[i],
		}
	}
	return &types.RunArtifacts{
		Run:         st.run,
		MeterIDs:    st.meterIDs,
		FeatureCols: st.columns,
		Vectors:     st.vectors,
		Features:    rows,
	}
}

func embedArtifacts(st *state) *types.RunArtifacts {
	return &types.RunArtifacts{
		Run:      st.run,
		MeterIDs: st.meterIDs,
		Latents:  st.latents,
	}
}

func scoreArtifacts(st *state) *types.RunArtifacts {
	cohorts := make([]types.CohortAssignment, len(st.meterIDs))
	for i, id := range st.meterIDs {
		cohorts[i] = types.CohortAssignment{
			RunID:       st.run.RunID,
			MeterID:     id,
			CohortLabel: st.labels[i],
		}
	}
	stats := make([]types.CohortStat, len(st.cohortStats))
	for i, c := range st.cohortStats {
		stats[i] = types.CohortStat{
			RunID:          st.run.RunID,
			CohortLabel:    c.Label,
			Size:           c.Size,
			MeanAge:        c.MeanAge,
			MeanUsage:      c.MeanUsage,
			DegradationRaw: c.Raw,
			Degradation:    c.Index,
		}
	}
	scores := make([]types.MeterScore, len(st.scores))
	for i, s := range st.scores {
		scores[i] = types.MeterScore{
			RunID:           st.run.RunID,
			Rank:            i + 1,
			MeterID:         s.MeterID,
			CohortLabel:     s.Cohort,
			AnomalyScore:    s.Anomaly,
			Degradation:     s.Degradation,
			RiskPercentBase: s.RiskPercentBase,
			SubcountScore:   s.SubcountScore,
			SubcountPercent: s.SubcountPercent,
			RiskPercent:     s.RiskPercent,
		}
	}
	return &types.RunArtifacts{
		Run:         st.run,
		Cohorts:     cohorts,
		CohortStats: stats,
		Scores:      scores,
	}
}
