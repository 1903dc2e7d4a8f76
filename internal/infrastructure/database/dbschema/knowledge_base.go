package dbschema

import (
	"github.com/simon-0512/superrag/internal/domain/knowledge"
	"github.com/simon-0512/superrag/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(KnowledgeBase{})
}

// KnowledgeBase represents the database schema for knowledge bases
type KnowledgeBase struct {
	BaseModel
	PublicID    string `gorm:"type:varchar(50);uniqueIndex;not null"`
	Name        string `gorm:"type:varchar(256);not null"`
	Description string `gorm:"type:text"`
	Content     string `gorm:"type:text;not null"`
	UserID      string `gorm:"type:varchar(64);index;not null"`
	IsActive    bool   `gorm:"not null;default:true"`
}

// NewSchemaKnowledgeBase creates a database schema from a domain knowledge base
func NewSchemaKnowledgeBase(kb *knowledge.KnowledgeBase) *KnowledgeBase {
	return &KnowledgeBase{
		BaseModel: BaseModel{
			ID:        kb.ID,
			CreatedAt: kb.CreatedAt,
			UpdatedAt: kb.UpdatedAt,
		},
		PublicID:    kb.PublicID,
		Name:        kb.Name,
		Description: kb.Description,
		Content:     kb.Content,
		UserID:      kb.UserID,
		IsActive:    kb.IsActive,
	}
}

// EtoD converts database schema to domain knowledge base (Entity to Domain)
func (kb *KnowledgeBase) EtoD() *knowledge.KnowledgeBase {
	return &knowledge.KnowledgeBase{
		ID:          kb.ID,
		PublicID:    kb.PublicID,
		Name:        kb.Name,
		Description: kb.Description,
		Content:     kb.Content,
		UserID:      kb.UserID,
		IsActive:    kb.IsActive,
		CreatedAt:   kb.CreatedAt,
		UpdatedAt:   kb.UpdatedAt,
	}
}
