package conversationrepo

import (
	"context"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/infrastructure/database/dbschema"
	"github.com/simon-0512/superrag/internal/infrastructure/database/transaction"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

type MessageGormRepository struct {
	db *transaction.Database
}

var _ conversation.MessageRepository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *transaction.Database) conversation.MessageRepository {
	return &MessageGormRepository{db}
}

// Create implements conversation.MessageRepository.
func (repo *MessageGormRepository) Create(ctx context.Context, msg *conversation.Message) error {
	model := dbschema.NewSchemaMessage(msg)
	if err := repo.db.GetTx(ctx).WithContext(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create message")
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	return nil
}

// ExistsByPublicID implements conversation.MessageRepository.
func (repo *MessageGormRepository) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	var count int64
	err := repo.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.Message{}).
		Where("public_id = ?", publicID).
		Count(&count).Error
	if err != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to check message existence", err, "1e3a5c7d-9f2b-4d4e-a8c0-2b4d6f8a0c2e")
	}
	return count > 0, nil
}

// FindByConversation implements conversation.MessageRepository.
func (repo *MessageGormRepository) FindByConversation(ctx context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	var models []dbschema.Message
	tx := repo.db.GetTx(ctx).WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to list messages", err, "2f4b6d8e-0a3c-4e5f-b9d1-3c5e7a9c1e3f")
	}
	return toDomainMessages(models), nil
}

func toDomainMessages(models []dbschema.Message) []*conversation.Message {
	messages := make([]*conversation.Message, len(models))
	for i := range models {
		messages[i] = models[i].EtoD()
	}
	return messages
}
