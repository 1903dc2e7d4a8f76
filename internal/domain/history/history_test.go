package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/simon-0512/superrag/internal/domain/conversation"
)

type fakeMessageRepo struct {
	messages []*conversation.Message
	finds    int
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *conversation.Message) error {
	r.messages = append(r.messages, msg)
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

func (r *fakeMessageRepo) FindByConversation(_ context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	r.finds++
	var result []*conversation.Message
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

type fakeSummarizer struct {
	summary    string
	err        error
	calls      int
	transcript string
}

func (s *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	s.calls++
	s.transcript = transcript
	return s.summary, s.err
}

// seedRounds fills the repo with n user/assistant rounds for conversation 1.
func seedRounds(repo *fakeMessageRepo, n int) {
	for i := 1; i <= n; i++ {
		repo.messages = append(repo.messages,
			&conversation.Message{ConversationID: 1, Role: conversation.RoleUser, Content: fmt.Sprintf("question %d", i)},
			&conversation.Message{ConversationID: 1, Role: conversation.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
		)
	}
}

func testPolicy() Policy {
	return Policy{SummaryRounds: 10, MaxContextMessages: 20}
}

func testConv() *conversation.Conversation {
	return &conversation.Conversation{ID: 1, PublicID: "conv_testtesttesttest", UserID: "user-1"}
}

func TestPolicy_ShouldSummarize(t *testing.T) {
	policy := testPolicy()
	tests := []struct {
		userMessages int64
		want         bool
	}{
		{0, false},
		{1, false},
		{9, false},
		{10, true},
		{11, false},
		{20, true},
		{25, false},
		{30, true},
	}
	for _, tt := range tests {
		if got := policy.ShouldSummarize(tt.userMessages); got != tt.want {
			t.Errorf("ShouldSummarize(%d) = %v, want %v", tt.userMessages, got, tt.want)
		}
	}
}

func TestWindowProvider_ShortHistoryPassesThrough(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 3)
	summarizer := &fakeSummarizer{summary: "unused"}
	provider := NewWindowProvider(repo, summarizer, testPolicy(), zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeFull {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeFull)
	}
	if len(snap.Messages) != 6 {
		t.Errorf("messages = %d, want 6", len(snap.Messages))
	}
	if snap.Summary != "" {
		t.Errorf("summary = %q, want empty", snap.Summary)
	}
	if summarizer.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", summarizer.calls)
	}
}

func TestWindowProvider_SummarizesJustBeyondCeiling(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 13) // 26 messages: above the 20-message ceiling
	summarizer := &fakeSummarizer{summary: "three early rounds"}
	provider := NewWindowProvider(repo, summarizer, testPolicy(), zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeSummarized {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeSummarized)
	}
	if snap.Summary == "" {
		t.Error("transcript beyond the ceiling must carry a summary")
	}
	if summarizer.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", summarizer.calls)
	}
	if len(snap.Messages) != 20 {
		t.Errorf("messages = %d, want 20", len(snap.Messages))
	}
	// The window keeps the tail; only the oldest rounds are compacted.
	if got := snap.Messages[len(snap.Messages)-1].Content; got != "answer 13" {
		t.Errorf("last message = %q, want answer 13", got)
	}
	if !strings.Contains(summarizer.transcript, "question 3") {
		t.Error("transcript should include the compacted early rounds")
	}
	if strings.Contains(summarizer.transcript, "question 4") {
		t.Error("transcript should not include messages kept in the window")
	}
}

func TestWindowProvider_SummarizesLongHistory(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 20) // 40 messages, twice the ceiling
	summarizer := &fakeSummarizer{summary: "the user asked twenty questions"}
	provider := NewWindowProvider(repo, summarizer, testPolicy(), zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeSummarized {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeSummarized)
	}
	if snap.Summary != "the user asked twenty questions" {
		t.Errorf("summary = %q", snap.Summary)
	}
	if len(snap.Messages) != 20 {
		t.Errorf("recent window = %d messages, want 20", len(snap.Messages))
	}
	if got := snap.Messages[0].Content; got != "question 11" {
		t.Errorf("window starts at %q, want question 11", got)
	}
	// The summarizer sees only the rounds outside the window.
	if strings.Contains(summarizer.transcript, "question 11") {
		t.Error("transcript should not include messages kept in the window")
	}
	if !strings.Contains(summarizer.transcript, "question 10") {
		t.Error("transcript should include the compacted rounds")
	}
}

func TestWindowProvider_DegradesOnSummarizerFailure(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 20)
	summarizer := &fakeSummarizer{err: errors.New("model timeout")}
	provider := NewWindowProvider(repo, summarizer, testPolicy(), zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeDegraded)
	}
	if snap.Summary != "" {
		t.Errorf("summary = %q, want empty after failure", snap.Summary)
	}
	if len(snap.Messages) != 20 {
		t.Errorf("degraded window = %d messages, want 20", len(snap.Messages))
	}
}

func TestWindowProvider_DegradesOnEmptySummary(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 12) // 24 messages: above the ceiling
	provider := NewWindowProvider(repo, &fakeSummarizer{summary: ""}, testPolicy(), zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeDegraded)
	}
}

func TestWindowProvider_NothingOlderThanWindow(t *testing.T) {
	repo := &fakeMessageRepo{}
	policy := Policy{SummaryRounds: 15, MaxContextMessages: 20}
	seedRounds(repo, 13) // 26 messages: above the ceiling, but the 30-message window holds everything
	summarizer := &fakeSummarizer{summary: "unused"}
	provider := NewWindowProvider(repo, summarizer, policy, zerolog.Nop())

	snap, err := provider.Context(context.Background(), testConv())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if snap.Outcome != OutcomeFull {
		t.Errorf("outcome = %v, want %v", snap.Outcome, OutcomeFull)
	}
	if summarizer.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", summarizer.calls)
	}
}

func TestManagedProvider_CachesTranscript(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 3)
	provider := NewManagedProvider(repo, &fakeSummarizer{}, testPolicy(), zerolog.Nop())
	ctx := context.Background()
	conv := testConv()

	if _, err := provider.Context(ctx, conv); err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if _, err := provider.Context(ctx, conv); err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if repo.finds != 1 {
		t.Errorf("storage loads = %d, want 1 (second call should hit the cache)", repo.finds)
	}
	if provider.CachedConversations() != 1 {
		t.Errorf("cached conversations = %d, want 1", provider.CachedConversations())
	}
}

func TestManagedProvider_InvalidateForcesReload(t *testing.T) {
	repo := &fakeMessageRepo{}
	seedRounds(repo, 2)
	provider := NewManagedProvider(repo, &fakeSummarizer{}, testPolicy(), zerolog.Nop())
	ctx := context.Background()
	conv := testConv()

	snap, err := provider.Context(ctx, conv)
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if len(snap.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(snap.Messages))
	}

	// A write lands, then the worker invalidates.
	seedRounds(repo, 1)
	provider.Invalidate(conv.ID)

	snap, err = provider.Context(ctx, conv)
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if len(snap.Messages) != 6 {
		t.Errorf("messages after invalidate = %d, want 6", len(snap.Messages))
	}
	if repo.finds != 2 {
		t.Errorf("storage loads = %d, want 2", repo.finds)
	}
}
