package knowledgerepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/simon-0512/superrag/internal/domain/knowledge"
	"github.com/simon-0512/superrag/internal/infrastructure/database/dbschema"
	"github.com/simon-0512/superrag/internal/infrastructure/database/transaction"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

type KnowledgeGormRepository struct {
	db *transaction.Database
}

var _ knowledge.Repository = (*KnowledgeGormRepository)(nil)

func NewKnowledgeGormRepository(db *transaction.Database) knowledge.Repository {
	return &KnowledgeGormRepository{db}
}

// FindByPublicID implements knowledge.Repository.
func (repo *KnowledgeGormRepository) FindByPublicID(ctx context.Context, publicID string) (*knowledge.KnowledgeBase, error) {
	var model dbschema.KnowledgeBase
	err := repo.db.GetTx(ctx).WithContext(ctx).Where("public_id = ?", publicID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "knowledge base not found", err, "5c7e9a1b-3d6f-4b8c-8ce4-6f8b0d2f4b6d")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find knowledge base", err, "6d8f0b2c-4e7a-4c9d-9df5-7a9c1e3a5c7e")
	}
	return model.EtoD(), nil
}
