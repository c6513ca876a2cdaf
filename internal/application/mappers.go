package application

import "github.com/ecocycle/collection-service/internal/domain"

// ToCollectionDTO converts a domain Collection to CollectionDTO
func ToCollectionDTO(c *domain.Collection) *CollectionDTO {
	if c == nil {
		return nil
	}

	return &CollectionDTO{
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

// ToCollectionDTOs converts a slice of collections
func ToCollectionDTOs(cs []*domain.Collection) []CollectionDTO {
	out := make([]CollectionDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, *ToCollectionDTO(c))
	}
	return out
}

// ToMaterialInterestDTO converts a domain MaterialInterest to MaterialInterestDTO
func ToMaterialInterestDTO(m *domain.MaterialInterest) *MaterialInterestDTO {
	if m == nil {
		return nil
	}

	materials := make([]string, len(m.Materials))
	copy(materials, m.Materials)

	return &MaterialInterestDTO{
		ID:           m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  m.CollectorID,
		Materials:    materials,
		OfferedPrice: m.OfferedPrice,
		Message:      m.Message,
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		DecidedAt:    m.DecidedAt,
		CompletedAt:  m.CompletedAt,
	}
}

// ToMaterialInterestDTOs converts a slice of material interests
func ToMaterialInterestDTOs(ms []*domain.MaterialInterest) []MaterialInterestDTO {
	out := make([]MaterialInterestDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, *ToMaterialInterestDTO(m))
	}
	return out
}

// ToImpactDTO converts a domain ImpactRecord to ImpactDTO
func ToImpactDTO(r *domain.ImpactRecord) *ImpactDTO {
	if r == nil {
		return nil
	}
	return &ImpactDTO{
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
