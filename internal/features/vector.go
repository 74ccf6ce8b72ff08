package features

import (
	"fmt"
	"time"
)

// Assembler fits the population normalizers and produces both the Stage I
// clustering matrix and the full feature vectors. The assembled column
// order is a contract: monthly means, scaled age, one-hot diameter, scaled
// accumulated usage, the Stage I pseudo-label as a raw value, one-hot
// brand/model. The embedder's weights are fit to that exact layout.
type Assembler struct {
	Months          []time.Time
	AgeScaler       MinMaxScaler
	DiameterScaler  MinMaxScaler
	UsageScaler     StandardScaler
	DiameterEncoder IntOneHotEncoder
	BrandEncoder    OneHotEncoder
}

// NewAssembler creates an Assembler for the configured monthly window.
func NewAssembler(months []time.Time) *Assembler {
	return &Assembler{Months: months}
}

// Fit fits every normalizer over the full population. Call once per run,
// before StageOneMatrix or Assemble.
func (a *Assembler) Fit(feats []Physical) {
	ages := make([]float64, len(feats))
	diams := make([]float64, len(feats))
	usages := make([]float64, len(feats))
	diamCats := make([]int, len(feats))
	brands := make([]string, len(feats))
	for i, f := range feats {
		ages[i] = f.AgeYears
		diams[i] = float64(f.DiameterMM)
		usages[i] = f.AccumulatedUsage
		diamCats[i] = f.DiameterMM
		brands[i] = f.BrandModel
	}
	a.AgeScaler.Fit(ages)
	a.DiameterScaler.Fit(diams)
	a.UsageScaler.Fit(usages)
	a.DiameterEncoder.Fit(diamCats)
	a.BrandEncoder.Fit(brands)
}

// StageOneMatrix builds the physical-feature matrix for Stage I clustering:
// scaled age, scaled diameter, standardized usage, one-hot brand/model.
// Diameter enters Stage I as a scaled numeric; it only becomes one-hot in
// the assembled feature vector.
func (a *Assembler) StageOneMatrix(feats []Physical) [][]float64 {
	rows := make([][]float64, len(feats))
	for i, f := range feats {
		row := make([]float64, 0, 3+a.BrandEncoder.Width())
		row = append(row, a.AgeScaler.Transform(f.AgeYears))
		row = append(row, a.DiameterScaler.Transform(float64(f.DiameterMM)))
		row = append(row, a.UsageScaler.Transform(f.AccumulatedUsage))
		row = a.BrandEncoder.Transform(row, f.BrandModel)
		rows[i] = row
	}
	return rows
}

// Width returns the assembled feature vector width.
func (a *Assembler) Width() int {
	return len(a.Months) + 1 + a.DiameterEncoder.Width() + 1 + 1 + a.BrandEncoder.Width()
}

// Columns returns the assembled column manifest, in contract order.
func (a *Assembler) Columns() []string {
	cols := make([]string, 0, a.Width())
	cols = append(cols, MonthColumnNames(a.Months)...)
	cols = append(cols, "age_scaled")
	cols = append(cols, a.DiameterEncoder.ColumnNames("diameter")...)
	cols = append(cols, "usage_scaled")
	cols = append(cols, "cluster_label")
	cols = append(cols, a.BrandEncoder.ColumnNames("brand_model")...)
	return cols
}

// Assemble produces one feature vector per meter, aligned with feats.
// labels are the Stage I pseudo-labels in the same order. Meters missing
// from the monthly map get zero-filled monthly columns.
func (a *Assembler) Assemble(feats []Physical, labels []int, monthly map[string][]float64) ([][]float64, error) {
	if len(labels) != len(feats) {
		return nil, fmt.Errorf("have %d pseudo-labels for %d meters", len(labels), len(feats))
	}

	width := a.Width()
	rows := make([][]float64, len(feats))
	for i, f := range feats {
		row := make([]float64, 0, width)

		months := monthly[f.MeterID]
		if months == nil {
			months = make([]float64, len(a.Months))
		}
		if len(months) != len(a.Months) {
			return nil, fmt.Errorf("meter %s has %d monthly columns, window has %d", f.MeterID, len(months), len(a.Months))
		}
		row = append(row, months...)

		row = append(row, a.AgeScaler.Transform(f.AgeYears))
		row = a.DiameterEncoder.Transform(row, f.DiameterMM)
		row = append(row, a.UsageScaler.Transform(f.AccumulatedUsage))
		row = append(row, float64(labels[i]))
		row = a.BrandEncoder.Transform(row, f.BrandModel)

		if len(row) != width {
			return nil, fmt.Errorf("assembled %d columns for meter %s, contract width is %d", len(row), f.MeterID, width)
		}
		rows[i] = row
	}
	return rows, nil
}
