package postgres

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/outbox"
)

// collectionModel is the relational row for a collection. An unassigned
// collection stores an empty collector_id so the claim predicate is a plain
// equality.
type collectionModel struct {
	ID                 string     `gorm:"primaryKey;size:64"`
	RequesterID        string     `gorm:"size:64;not null;index:idx_collections_requester"`
	CollectorID        string     `gorm:"size:64;not null;default:'';index:idx_collections_collector"`
	Status             string     `gorm:"size:32;not null;index:idx_collections_status_date,priority:1"`
	WasteType          string     `gorm:"size:32;not null"`
	WasteAmount        *float64
	Address            string     `gorm:"type:text;not null"`
	ScheduledDate      time.Time  `gorm:"not null;index:idx_collections_status_date,priority:2"`
	CompletedDate      *time.Time
	Notes              string     `gorm:"type:text"`
	CancellationReason string     `gorm:"type:text"`
	Version            int64      `gorm:"not null"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime:false"`
	ClaimedAt          *time.Time
	StartedAt          *time.Time
	CancelledAt        *time.Time
}

func (collectionModel) TableName() string { return "collections" }

func toCollectionModel(c *domain.Collection) *collectionModel {
	return &collectionModel{
		ID:                 c.ID,
		RequesterID:        c.RequesterID,
		CollectorID:        c.CollectorID,
		Status:             string(c.Status),
		WasteType:          string(c.WasteType),
		WasteAmount:        c.WasteAmount,
		Address:            c.Address,
		ScheduledDate:      c.ScheduledDate,
		CompletedDate:      c.CompletedDate,
		Notes:              c.Notes,
		CancellationReason: c.CancellationReason,
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		ClaimedAt:          c.ClaimedAt,
		StartedAt:          c.StartedAt,
		CancelledAt:        c.CancelledAt,
	}
}

func (m *collectionModel) toDomain() *domain.Collection {
	return &domain.Collection{
		ID:                 m.ID,
		RequesterID:        m.RequesterID,
		CollectorID:        m.CollectorID,
		Status:             domain.CollectionStatus(m.Status),
		WasteType:          domain.WasteType(m.WasteType),
		WasteAmount:        m.WasteAmount,
		Address:            m.Address,
		ScheduledDate:      m.ScheduledDate.UTC(),
		CompletedDate:      utcPtr(m.CompletedDate),
		Notes:              m.Notes,
		CancellationReason: m.CancellationReason,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
		ClaimedAt:          utcPtr(m.ClaimedAt),
		StartedAt:          utcPtr(m.StartedAt),
		CancelledAt:        utcPtr(m.CancelledAt),
	}
}

// mutableColumns lists every column an Update may rewrite. Zero values are
// included so cleared fields are written back.
func (m *collectionModel) mutableColumns() map[string]interface{} {
	return map[string]interface{}{
		"collector_id":        m.CollectorID,
		"status":              m.Status,
		"waste_type":          m.WasteType,
		"waste_amount":        m.WasteAmount,
		"address":             m.Address,
		"scheduled_date":      m.ScheduledDate,
		"completed_date":      m.CompletedDate,
		"notes":               m.Notes,
		"cancellation_reason": m.CancellationReason,
		"updated_at":          m.UpdatedAt,
		"claimed_at":          m.ClaimedAt,
		"started_at":          m.StartedAt,
		"cancelled_at":        m.CancelledAt,
	}
}

type interestModel struct {
	ID           string                      `gorm:"primaryKey;size:64"`
	CollectionID string                      `gorm:"size:64;not null;index:idx_interests_collection"`
	RecyclerID   string                      `gorm:"size:64;not null;index:idx_interests_recycler"`
	CollectorID  string                      `gorm:"size:64;not null"`
	Materials    datatypes.JSONSlice[string] `gorm:"not null"`
	OfferedPrice *float64
	Message      string     `gorm:"type:text"`
	Status       string     `gorm:"size:32;not null"`
	Version      int64      `gorm:"not null"`
	CreatedAt    time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false"`
	DecidedAt    *time.Time
	CompletedAt  *time.Time
}

func (interestModel) TableName() string { return "material_interests" }

func toInterestModel(m *domain.MaterialInterest) *interestModel {
	return &interestModel{
		ID:           m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  m.CollectorID,
		Materials:    datatypes.JSONSlice[string](m.Materials),
		OfferedPrice: m.OfferedPrice,
		Message:      m.Message,
		Status:       string(m.Status),
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		DecidedAt:    m.DecidedAt,
		CompletedAt:  m.CompletedAt,
	}
}

func (m *interestModel) toDomain() *domain.MaterialInterest {
	return &domain.MaterialInterest{
		ID:           m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  m.CollectorID,
		Materials:    []string(m.Materials),
		OfferedPrice: m.OfferedPrice,
		Message:      m.Message,
		Status:       domain.InterestStatus(m.Status),
		Version:      m.Version,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		DecidedAt:    utcPtr(m.DecidedAt),
		CompletedAt:  utcPtr(m.CompletedAt),
	}
}

type impactModel struct {
	CollectionID       string `gorm:"primaryKey;size:64"`
	RequesterID        string `gorm:"size:64;index"`
	CollectorID        string `gorm:"size:64;index"`
	WasteType          string `gorm:"size:32"`
	WasteAmountKg      float64
	CO2AvoidedKg       float64 `gorm:"column:co2_avoided_kg"`
	LandfillDivertedKg float64
	Points             int64
	CalculatedAt       time.Time
}

func (impactModel) TableName() string { return "impact_records" }

func toImpactModel(r *domain.ImpactRecord) *impactModel {
	return &impactModel{
		CollectionID:       r.CollectionID,
		RequesterID:        r.RequesterID,
		CollectorID:        r.CollectorID,
		WasteType:          string(r.WasteType),
		WasteAmountKg:      r.WasteAmountKg,
		CO2AvoidedKg:       r.CO2AvoidedKg,
		LandfillDivertedKg: r.LandfillDivertedKg,
		Points:             r.Points,
		CalculatedAt:       r.CalculatedAt,
	}
}

func (m *impactModel) toDomain() *domain.ImpactRecord {
	return &domain.ImpactRecord{
		CollectionID:       m.CollectionID,
		RequesterID:        m.RequesterID,
		CollectorID:        m.CollectorID,
		WasteType:          domain.WasteType(m.WasteType),
		WasteAmountKg:      m.WasteAmountKg,
		CO2AvoidedKg:       m.CO2AvoidedKg,
		LandfillDivertedKg: m.LandfillDivertedKg,
		Points:             m.Points,
		CalculatedAt:       m.CalculatedAt.UTC(),
	}
}

// outboxModel stores the CloudEvent payload as text
type outboxModel struct {
	ID            string     `gorm:"primaryKey;size:64"`
	AggregateID   string     `gorm:"size:64;index"`
	AggregateType string     `gorm:"size:64"`
	EventType     string     `gorm:"size:128"`
	Topic         string     `gorm:"size:128"`
	Payload       string     `gorm:"type:text;not null"`
	CreatedAt     time.Time  `gorm:"autoCreateTime:false;index"`
	PublishedAt   *time.Time `gorm:"index"`
	RetryCount    int
	LastError     string `gorm:"type:text"`
	MaxRetries    int
}

func (outboxModel) TableName() string { return "outbox_events" }

func toOutboxModel(e *outbox.OutboxEvent) *outboxModel {
	return &outboxModel{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Topic:         e.Topic,
		Payload:       string(e.Payload),
		CreatedAt:     e.CreatedAt,
		PublishedAt:   e.PublishedAt,
		RetryCount:    e.RetryCount,
		LastError:     e.LastError,
		MaxRetries:    e.MaxRetries,
	}
}

func (m *outboxModel) toOutbox() *outbox.OutboxEvent {
	return &outbox.OutboxEvent{
		ID:            m.ID,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		EventType:     m.EventType,
		Topic:         m.Topic,
		Payload:       []byte(m.Payload),
		CreatedAt:     m.CreatedAt.UTC(),
		PublishedAt:   utcPtr(m.PublishedAt),
		RetryCount:    m.RetryCount,
		LastError:     m.LastError,
		MaxRetries:    m.MaxRetries,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
