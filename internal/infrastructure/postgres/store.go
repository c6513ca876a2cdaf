package postgres

import (
	"gorm.io/gorm"

	"github.com/ecocycle/collection-service/internal/infrastructure/events"
)

// Store groups the gorm repositories sharing one connection pool
type Store struct {
	Collections *CollectionRepository
	Interests   *InterestRepository
	Impacts     *ImpactRepository
	Outbox      *OutboxRepository
}

func NewStore(db *gorm.DB, mapper *events.OutboxMapper) *Store {
	return &Store{
		Collections: NewCollectionRepository(db, mapper),
		Interests:   NewInterestRepository(db, mapper),
		Impacts:     NewImpactRepository(db),
		Outbox:      NewOutboxRepository(db),
	}
}
