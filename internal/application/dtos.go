package application

import "time"

// CollectionDTO represents a collection in responses
type CollectionDTO struct {
	ID                 string     `json:"id"`
	RequesterID        string     `json:"requesterId"`
	CollectorID        string     `json:"collectorId,omitempty"`
	Status             string     `json:"status"`
	WasteType          string     `json:"wasteType"`
	WasteAmount        *float64   `json:"wasteAmount,omitempty"`
	Address            string     `json:"address"`
	ScheduledDate      time.Time  `json:"scheduledDate"`
	CompletedDate      *time.Time `json:"completedDate,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	ClaimedAt          *time.Time `json:"claimedAt,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
}

// TransitionResultDTO is returned by a status change
type TransitionResultDTO struct {
	Collection *CollectionDTO `json:"collection"`
	FromStatus string         `json:"fromStatus"`
	ToStatus   string         `json:"toStatus"`
}

// DetailsUpdateResultDTO is returned by a descriptive patch
type DetailsUpdateResultDTO struct {
	Collection    *CollectionDTO `json:"collection"`
	ChangedFields []string       `json:"changedFields"`
}

// MaterialInterestDTO represents a material interest in responses
type MaterialInterestDTO struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collectionId"`
	RecyclerID   string     `json:"recyclerId"`
	CollectorID  string     `json:"collectorId"`
	Materials    []string   `json:"materials"`
	OfferedPrice *float64   `json:"offeredPrice,omitempty"`
	Message      string     `json:"message,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// ImpactDTO represents an impact record in responses
type ImpactDTO struct {
	CollectionID       string    `json:"collectionId"`
	RequesterID        string    `json:"requesterId"`
	CollectorID        string    `json:"collectorId"`
	WasteType          string    `json:"wasteType"`
	WasteAmountKg      float64   `json:"wasteAmountKg"`
	CO2AvoidedKg       float64   `json:"co2AvoidedKg"`
	LandfillDivertedKg float64   `json:"landfillDivertedKg"`
	Points             int64     `json:"points"`
	CalculatedAt       time.Time `json:"calculatedAt"`
}
