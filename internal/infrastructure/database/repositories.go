package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/semo-membership/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/semo-membership/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	EventHistory domainRepo.EventHistoryRepository
	Members      domainRepo.MemberSnapshotRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		EventHistory: repository.NewEventHistoryRepository(db, logger),
		Members:      repository.NewMemberSnapshotRepository(db),
	}
}
