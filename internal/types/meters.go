// Package types holds the row structs shared by the pipeline stages,
// the storage engines, and the report API.
package types

import (
	"time"
)

// Meter is one row of the meter metadata table. InstalledAt is a pointer
// because upstream extracts deliver meters with unknown installation dates;
// age computation clips those to zero.
type Meter struct {
	MeterID          string     `gorm:"column:meter_id;primaryKey"`
	InstalledAt      *time.Time `gorm:"column:installed_at"`
	BrandCode        string     `gorm:"column:brand_code"`
	ModelCode        string     `gorm:"column:model_code"`
	DiameterMM       int        `gorm:"column:diameter_mm"`
	UsageClass       string     `gorm:"column:usage_class"`
	CensusSection    string     `gorm:"column:census_section"`
	MunicipalityCode string     `gorm:"column:municipality_code"`
	DistrictCode     string     `gorm:"column:district_code"`
	SerialNumber     string     `gorm:"column:serial_number"`
}

// TableName implements the GORM Tabler interface for the Meter struct
func (Meter) TableName() string {
	return "meters"
}

// ConsumptionReading is one daily consumption observation for a meter.
// Quantities are non-negative by upstream construction; zeros and gaps occur.
type ConsumptionReading struct {
	MeterID     string    `gorm:"column:meter_id"`
	ReadingDate time.Time `gorm:"column:reading_date"`
	Consumption float64   `gorm:"column:consumption"`
}

// TableName implements the GORM Tabler interface for the ConsumptionReading struct
func (ConsumptionReading) TableName() string {
	return "consumption_readings"
}
