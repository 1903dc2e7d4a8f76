package conversation

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

type fakeConversationRepo struct {
	byID     map[uint]*Conversation
	byPublic map[string]uint
	nextID   uint
	deleted  []uint
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:     make(map[uint]*Conversation),
		byPublic: make(map[string]uint),
		nextID:   1,
	}
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *Conversation) error {
	conv.ID = r.nextID
	r.nextID++
	clone := *conv
	r.byID[conv.ID] = &clone
	r.byPublic[conv.PublicID] = conv.ID
	return nil
}

func (r *fakeConversationRepo) FindByPublicID(ctx context.Context, publicID string) (*Conversation, error) {
	id, ok := r.byPublic[publicID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
	}
	clone := *r.byID[id]
	return &clone, nil
}

func (r *fakeConversationRepo) active(userID string) []*Conversation {
	var result []*Conversation
	for _, conv := range r.byID {
		if conv.UserID == userID && conv.IsActive {
			result = append(result, conv)
		}
	}
	return result
}

func (r *fakeConversationRepo) FindByUser(_ context.Context, userID string, limit int) ([]*Conversation, error) {
	result := r.active(userID)
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeConversationRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	return int64(len(r.active(userID))), nil
}

func (r *fakeConversationRepo) FindOldestByUser(_ context.Context, userID string, limit int) ([]*Conversation, error) {
	result := r.active(userID)
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeConversationRepo) DistinctUserIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	for _, conv := range r.byID {
		if conv.IsActive && !seen[conv.UserID] {
			seen[conv.UserID] = true
			result = append(result, conv.UserID)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (r *fakeConversationRepo) Update(ctx context.Context, conv *Conversation) error {
	if _, ok := r.byID[conv.ID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
	}
	clone := *conv
	r.byID[conv.ID] = &clone
	return nil
}

func (r *fakeConversationRepo) Deactivate(_ context.Context, id uint) error {
	if conv, ok := r.byID[id]; ok {
		conv.IsActive = false
	}
	return nil
}

func (r *fakeConversationRepo) DeleteWithMessages(_ context.Context, id uint) error {
	if conv, ok := r.byID[id]; ok {
		delete(r.byPublic, conv.PublicID)
		delete(r.byID, id)
		r.deleted = append(r.deleted, id)
	}
	return nil
}

type fakeMessageRepo struct {
	messages []*Message
	nextID   uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1}
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = r.nextID
	r.nextID++
	clone := *msg
	r.messages = append(r.messages, &clone)
	return nil
}

func (r *fakeMessageRepo) ExistsByPublicID(_ context.Context, publicID string) (bool, error) {
	for _, msg := range r.messages {
		if msg.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) FindByConversation(_ context.Context, conversationID uint, limit int) ([]*Message, error) {
	var result []*Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			result = append(result, msg)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func newTestService(maxPerUser int) (*ConversationService, *fakeConversationRepo, *fakeMessageRepo) {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	return NewConversationService(convRepo, msgRepo, maxPerUser), convRepo, msgRepo
}

func defaults() ModelDefaults {
	return ModelDefaults{ModelName: "deepseek-chat", Temperature: 0.7, MaxTokens: 2000}
}

func TestGetOrCreateConversation_CreatesWithDerivedTitle(t *testing.T) {
	svc, _, _ := newTestService(10)
	ctx := context.Background()

	conv, created, err := svc.GetOrCreateConversation(ctx, "user-1", "", "How do goroutines work in Go?", defaults())
	if err != nil {
		t.Fatalf("GetOrCreateConversation() error = %v", err)
	}
	if !created {
		t.Error("expected created = true")
	}
	if conv.Title != "How do goroutines work in Go?" {
		t.Errorf("unexpected title %q", conv.Title)
	}
	if conv.PublicID == "" || conv.PublicID[:5] != "conv_" {
		t.Errorf("unexpected public ID %q", conv.PublicID)
	}
	if !conv.IsActive {
		t.Error("new conversation should be active")
	}
}

func TestGetOrCreateConversation_TruncatesLongTitle(t *testing.T) {
	svc, _, _ := newTestService(10)

	long := "This is an extremely verbose opening message that keeps going and going well past any sensible title length"
	conv, _, err := svc.GetOrCreateConversation(context.Background(), "user-1", "", long, defaults())
	if err != nil {
		t.Fatalf("GetOrCreateConversation() error = %v", err)
	}
	if len(conv.Title) > 60 {
		t.Errorf("title length = %d, want <= 60", len(conv.Title))
	}
}

func TestGetOrCreateConversation_ResolvesExisting(t *testing.T) {
	svc, _, _ := newTestService(10)
	ctx := context.Background()

	created, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "hello", defaults())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved, wasCreated, err := svc.GetOrCreateConversation(ctx, "user-1", created.PublicID, "follow-up", defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if wasCreated {
		t.Error("expected created = false for existing conversation")
	}
	if resolved.PublicID != created.PublicID {
		t.Errorf("resolved %q, want %q", resolved.PublicID, created.PublicID)
	}
}

func TestGetOrCreateConversation_RejectsForeignConversation(t *testing.T) {
	svc, _, _ := newTestService(10)
	ctx := context.Background()

	created, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "hello", defaults())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _, err = svc.GetOrCreateConversation(ctx, "user-2", created.PublicID, "hijack", defaults())
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Errorf("expected NOT_FOUND for foreign conversation, got %v", err)
	}
}

func TestGetOrCreateConversation_EnforcesRetentionCap(t *testing.T) {
	const maxConvs = 3
	svc, convRepo, _ := newTestService(maxConvs)
	ctx := context.Background()

	var oldest string
	for i := 0; i < maxConvs; i++ {
		conv, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", fmt.Sprintf("message %d", i), defaults())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if i == 0 {
			oldest = conv.PublicID
		}
		// Distinct UpdatedAt so retention ordering is deterministic.
		stored, _ := convRepo.FindByPublicID(ctx, conv.PublicID)
		stored.UpdatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		_ = convRepo.Update(ctx, stored)
	}

	if _, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "one past the cap", defaults()); err != nil {
		t.Fatalf("create past cap: %v", err)
	}

	count, _ := convRepo.CountByUser(ctx, "user-1")
	if count != maxConvs {
		t.Errorf("conversation count = %d, want %d", count, maxConvs)
	}
	if _, err := convRepo.FindByPublicID(ctx, oldest); err == nil {
		t.Error("oldest conversation should have been purged")
	}
}

func TestAppendMessage_RollsCountersForward(t *testing.T) {
	svc, convRepo, _ := newTestService(10)
	ctx := context.Background()

	conv, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "hello", defaults())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgID, err := NewMessageID()
	if err != nil {
		t.Fatalf("NewMessageID() error = %v", err)
	}
	msg := NewMessage(msgID, conv.ID, RoleUser, "one two three", nil)
	if err := svc.AppendMessage(ctx, conv, msg); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	stored, _ := convRepo.FindByPublicID(ctx, conv.PublicID)
	if stored.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", stored.MessageCount)
	}
	if stored.TotalTokens != 3 {
		t.Errorf("total tokens = %d, want 3", stored.TotalTokens)
	}
}

func TestAppendMessage_RejectsInvalidRole(t *testing.T) {
	svc, _, _ := newTestService(10)
	ctx := context.Background()

	conv, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "hello", defaults())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgID, _ := NewMessageID()
	msg := NewMessage(msgID, conv.ID, Role("moderator"), "nope", nil)
	if err := svc.AppendMessage(ctx, conv, msg); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
		t.Errorf("expected VALIDATION error, got %v", err)
	}
}

func TestMessageExists(t *testing.T) {
	svc, _, msgRepo := newTestService(10)
	ctx := context.Background()

	msgID, _ := NewMessageID()
	exists, err := svc.MessageExists(ctx, msgID)
	if err != nil {
		t.Fatalf("MessageExists() error = %v", err)
	}
	if exists {
		t.Error("expected exists = false before insert")
	}

	_ = msgRepo.Create(ctx, NewMessage(msgID, 1, RoleAssistant, "persisted", nil))

	exists, err = svc.MessageExists(ctx, msgID)
	if err != nil {
		t.Fatalf("MessageExists() error = %v", err)
	}
	if !exists {
		t.Error("expected exists = true after insert")
	}
}

func TestSweepRetention_PurgesExcessAcrossUsers(t *testing.T) {
	const maxConvs = 2
	svc, convRepo, _ := newTestService(maxConvs)
	ctx := context.Background()

	// Seed directly so users exceed the cap before the sweep runs.
	for _, userID := range []string{"user-1", "user-2"} {
		for i := 0; i < maxConvs+2; i++ {
			conv, err := NewConversation(userID, "t", "deepseek-chat", 0.7, 2000)
			if err != nil {
				t.Fatal(err)
			}
			conv.UpdatedAt = time.Now().Add(time.Duration(i) * time.Minute)
			if err := convRepo.Create(ctx, conv); err != nil {
				t.Fatal(err)
			}
		}
	}

	purged, err := svc.SweepRetention(ctx)
	if err != nil {
		t.Fatalf("SweepRetention() error = %v", err)
	}
	if purged != 4 {
		t.Errorf("purged = %d, want 4", purged)
	}
	for _, userID := range []string{"user-1", "user-2"} {
		count, _ := convRepo.CountByUser(ctx, userID)
		if count != maxConvs {
			t.Errorf("user %s count = %d, want %d", userID, count, maxConvs)
		}
	}
}

func TestUpdateTitleAndDeactivate(t *testing.T) {
	svc, convRepo, _ := newTestService(10)
	ctx := context.Background()

	conv, _, err := svc.GetOrCreateConversation(ctx, "user-1", "", "hello", defaults())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateTitle(ctx, "user-1", conv.PublicID, "Renamed")
	if err != nil {
		t.Fatalf("UpdateTitle() error = %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", updated.Title)
	}

	if err := svc.DeactivateConversation(ctx, "user-1", conv.PublicID); err != nil {
		t.Fatalf("DeactivateConversation() error = %v", err)
	}
	stored, _ := convRepo.FindByPublicID(ctx, conv.PublicID)
	if stored.IsActive {
		t.Error("conversation should be inactive after deactivate")
	}

	// Deactivated conversations reject new turns.
	if _, _, err := svc.GetOrCreateConversation(ctx, "user-1", conv.PublicID, "more", defaults()); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Errorf("expected NOT_FOUND for deactivated conversation, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"hello", 1},
		{"one two three", 3},
		{"  padded   with\tmixed \n whitespace ", 4},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.content); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
