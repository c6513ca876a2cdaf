package domain

import (
	"fmt"
	"math"
	"time"
)

// ImpactFactors converts one kilogram of a waste type into impact figures
type ImpactFactors struct {
	CO2AvoidedPerKg   float64 `json:"co2AvoidedPerKg" mapstructure:"co2_avoided_per_kg"`
	LandfillDiversion float64 `json:"landfillDiversion" mapstructure:"landfill_diversion"`
	PointsPerKg       float64 `json:"pointsPerKg" mapstructure:"points_per_kg"`
}

// ImpactFactorTable maps each waste type to its factors
type ImpactFactorTable map[WasteType]ImpactFactors

// DefaultImpactFactors returns the built-in factor table
func DefaultImpactFactors() ImpactFactorTable {
	return ImpactFactorTable{
		WasteTypePlastic:    {CO2AvoidedPerKg: 1.5, LandfillDiversion: 1.0, PointsPerKg: 10},
		WasteTypePaper:      {CO2AvoidedPerKg: 0.9, LandfillDiversion: 1.0, PointsPerKg: 5},
		WasteTypeGlass:      {CO2AvoidedPerKg: 0.3, LandfillDiversion: 1.0, PointsPerKg: 4},
		WasteTypeMetal:      {CO2AvoidedPerKg: 4.0, LandfillDiversion: 1.0, PointsPerKg: 15},
		WasteTypeOrganic:    {CO2AvoidedPerKg: 0.5, LandfillDiversion: 0.9, PointsPerKg: 3},
		WasteTypeElectronic: {CO2AvoidedPerKg: 2.5, LandfillDiversion: 0.8, PointsPerKg: 20},
		WasteTypeMixed:      {CO2AvoidedPerKg: 0.6, LandfillDiversion: 0.6, PointsPerKg: 2},
	}
}

// ImpactRecord is the environmental result of one completed collection
type ImpactRecord struct {
	CollectionID       string    `bson:"_id" json:"collectionId"`
	RequesterID        string    `bson:"requesterId" json:"requesterId"`
	CollectorID        string    `bson:"collectorId" json:"collectorId"`
	WasteType          WasteType `bson:"wasteType" json:"wasteType"`
	WasteAmountKg      float64   `bson:"wasteAmountKg" json:"wasteAmountKg"`
	CO2AvoidedKg       float64   `bson:"co2AvoidedKg" json:"co2AvoidedKg"`
	LandfillDivertedKg float64   `bson:"landfillDivertedKg" json:"landfillDivertedKg"`
	Points             int64     `bson:"points" json:"points"`
	CalculatedAt       time.Time `bson:"calculatedAt" json:"calculatedAt"`
}

// CalculateImpact derives the impact record of a completed collection
func CalculateImpact(c *Collection, table ImpactFactorTable, now time.Time) (*ImpactRecord, error) {
	if c == nil {
		return nil, ErrCollectionNotFound
	}
	if c.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: collection %s is %s", ErrInvalidState, c.ID, c.Status)
	}
	if c.WasteAmount == nil {
		return nil, fmt.Errorf("%w: wasteAmount", ErrMissingRequiredField)
	}

	factors, ok := table[c.WasteType]
	if !ok {
		factors = table[WasteTypeMixed]
	}
	kg := *c.WasteAmount

	return &ImpactRecord{
		CollectionID:       c.ID,
		RequesterID:        c.RequesterID,
		CollectorID:        c.CollectorID,
		WasteType:          c.WasteType,
		WasteAmountKg:      kg,
		CO2AvoidedKg:       round2(kg * factors.CO2AvoidedPerKg),
		LandfillDivertedKg: round2(kg * factors.LandfillDiversion),
		Points:             int64(math.Round(kg * factors.PointsPerKg)),
		CalculatedAt:       now,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
