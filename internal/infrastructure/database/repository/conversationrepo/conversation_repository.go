package conversationrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/infrastructure/database/dbschema"
	"github.com/simon-0512/superrag/internal/infrastructure/database/transaction"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

type ConversationGormRepository struct {
	db *transaction.Database
}

var _ conversation.ConversationRepository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *transaction.Database) conversation.ConversationRepository {
	return &ConversationGormRepository{db}
}

// Create implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	if err := repo.db.GetTx(ctx).WithContext(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	// Update the domain object with generated ID and timestamps
	conv.ID = model.ID
	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByPublicID implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByPublicID(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	var model dbschema.Conversation
	err := repo.db.GetTx(ctx).WithContext(ctx).Where("public_id = ?", publicID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", err, "1a3c5e7f-9b2d-4f6a-8c0e-2d4f6a8c0e2f")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find conversation", err, "2b4d6f8a-0c3e-4a5b-9d1f-3e5a7c9e1b3d")
	}
	return model.EtoD(), nil
}

// FindByUser implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	return repo.findForUser(ctx, userID, limit, "updated_at DESC")
}

// FindOldestByUser implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindOldestByUser(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	return repo.findForUser(ctx, userID, limit, "updated_at ASC")
}

func (repo *ConversationGormRepository) findForUser(ctx context.Context, userID string, limit int, order string) ([]*conversation.Conversation, error) {
	var models []dbschema.Conversation
	tx := repo.db.GetTx(ctx).WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order(order)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to list conversations", err, "3c5e7a9b-1d4f-4b6c-a0e2-4f6b8d0a2c4e")
	}
	conversations := make([]*conversation.Conversation, len(models))
	for i := range models {
		conversations[i] = models[i].EtoD()
	}
	return conversations, nil
}

// CountByUser implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := repo.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count conversations", err, "4d6f8b0c-2e5a-4c7d-b1f3-5a7c9e1b3d5f")
	}
	return count, nil
}

// DistinctUserIDs implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) DistinctUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := repo.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("is_active = ?", true).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to list conversation users", err, "5e7a9c1d-3f6b-4d8e-92a4-6b8d0f2c4e6a")
	}
	return userIDs, nil
}

// Update implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Update(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	result := repo.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ?", model.ID).
		Select("title", "system_prompt", "temperature", "max_tokens", "message_count", "total_tokens", "is_active", "updated_at").
		Updates(model)
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update conversation", result.Error, "6f8b0d2e-4a7c-4e9f-83b5-7c9e1a3d5f7b")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "7a9c1e3f-5b8d-4f0a-94c6-8d0f2b4e6a8c")
	}
	return nil
}

// Deactivate implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Deactivate(ctx context.Context, id uint) error {
	err := repo.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ?", id).
		Update("is_active", false).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to deactivate conversation", err, "8b0d2f4a-6c9e-4a1b-a5d7-9e1a3c5f7b9d")
	}
	return nil
}

// DeleteWithMessages implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) DeleteWithMessages(ctx context.Context, id uint) error {
	tx := repo.db.GetTx(ctx).WithContext(ctx)
	if err := tx.Where("conversation_id = ?", id).Delete(&dbschema.Message{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete messages", err, "9c1e3a5b-7d0f-4b2c-b6e8-0f2b4d6a8c0e")
	}
	if err := tx.Where("id = ?", id).Delete(&dbschema.Conversation{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete conversation", err, "0d2f4b6c-8e1a-4c3d-87f9-1a3c5e7b9d1f")
	}
	return nil
}
