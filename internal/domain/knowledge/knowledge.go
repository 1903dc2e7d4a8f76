// Package knowledge resolves knowledge bases into context text for
// knowledge-grounded turns.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/simon-0512/superrag/internal/utils/idgen"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

// KnowledgeBase is a stored reference corpus a conversation can be grounded
// on.
type KnowledgeBase struct {
	ID          uint      `json:"-"`
	PublicID    string    `json:"id"` // string ID like "kb_abc123"
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"-"` // compiled context document
	UserID      string    `json:"-"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	FindByPublicID(ctx context.Context, publicID string) (*KnowledgeBase, error)
}

// Provider resolves a knowledge base public ID to context text for the
// system prompt.
type Provider interface {
	Lookup(ctx context.Context, publicID string) (string, error)
}

// Service is the storage-backed Provider.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Lookup returns the context document for an active knowledge base.
func (s *Service) Lookup(ctx context.Context, publicID string) (string, error) {
	if !idgen.ValidateIDFormat(publicID, "kb") {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid knowledge base ID", nil, "a7d2f5c8-3e1b-4f9a-8c6d-0b4e7a2d5f8c")
	}

	kb, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return "", platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "knowledge base not found")
	}
	if !kb.IsActive {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "knowledge base not found", nil, "c1e4b7a0-5d8f-4b2e-9a3c-6f0d3b6e9a1c")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", kb.Name)
	if desc := strings.TrimSpace(kb.Description); desc != "" {
		fmt.Fprintf(&sb, "%s\n", desc)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(kb.Content))
	return sb.String(), nil
}
