package chathandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/simon-0512/superrag/internal/config"
	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/domain/history"
	"github.com/simon-0512/superrag/internal/infrastructure/inference"
	"github.com/simon-0512/superrag/internal/infrastructure/savequeue"
	chatresponses "github.com/simon-0512/superrag/internal/interfaces/httpserver/responses/chat"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeConversationRepo struct {
	mu       sync.Mutex
	byID     map[uint]*conversation.Conversation
	byPublic map[string]uint
	nextID   uint
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:     make(map[uint]*conversation.Conversation),
		byPublic: make(map[string]uint),
		nextID:   1,
	}
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *conversation.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.ID = r.nextID
	r.nextID++
	clone := *conv
	r.byID[conv.ID] = &clone
	r.byPublic[conv.PublicID] = conv.ID
	return nil
}

func (r *fakeConversationRepo) FindByPublicID(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPublic[publicID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
	}
	clone := *r.byID[id]
	return &clone, nil
}

func (r *fakeConversationRepo) FindByUser(_ context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*conversation.Conversation
	for _, conv := range r.byID {
		if conv.UserID == userID && conv.IsActive {
			clone := *conv
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeConversationRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, conv := range r.byID {
		if conv.UserID == userID && conv.IsActive {
			count++
		}
	}
	return count, nil
}

func (r *fakeConversationRepo) FindOldestByUser(_ context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*conversation.Conversation
	for _, conv := range r.byID {
		if conv.UserID == userID && conv.IsActive {
			clone := *conv
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeConversationRepo) DistinctUserIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var result []string
	for _, conv := range r.byID {
		if conv.IsActive && !seen[conv.UserID] {
			seen[conv.UserID] = true
			result = append(result, conv.UserID)
		}
	}
	return result, nil
}

func (r *fakeConversationRepo) Update(ctx context.Context, conv *conversation.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[conv.ID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
	}
	clone := *conv
	r.byID[conv.ID] = &clone
	return nil
}

func (r *fakeConversationRepo) Deactivate(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byID[id]; ok {
		conv.IsActive = false
	}
	return nil
}

func (r *fakeConversationRepo) DeleteWithMessages(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byID[id]; ok {
		delete(r.byPublic, conv.PublicID)
		delete(r.byID, id)
	}
	return nil
}

func (r *fakeConversationRepo) get(id uint) *conversation.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byID[id]; ok {
		clone := *conv
		return &clone
	}
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*conversation.Message
	nextID   uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1}
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *conversation.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = r.nextID
	r.nextID++
	clone := *msg
	r.messages = append(r.messages, &clone)
	return nil
}

func (r *fakeMessageRepo) ExistsByPublicID(_ context.Context, publicID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) FindByConversation(_ context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*conversation.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			clone := *msg
			result = append(result, &clone)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (r *fakeMessageRepo) all() []*conversation.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*conversation.Message, 0, len(r.messages))
	for _, msg := range r.messages {
		clone := *msg
		result = append(result, &clone)
	}
	return result
}

type fakeTx struct{}

func (fakeTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeBackend replays scripted deltas on stream and a scripted response on
// completion.
type fakeBackend struct {
	mu        sync.Mutex
	deltas    []inference.Delta
	streamErr error
	resp      *openai.ChatCompletionResponse
	syncErr   error
	requests  []openai.ChatCompletionRequest
}

func (b *fakeBackend) StreamChatCompletion(_ context.Context, request openai.ChatCompletionRequest, onDelta inference.DeltaFunc) (*openai.ChatCompletionResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, request)
	b.mu.Unlock()
	for _, d := range b.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	return b.resp, nil
}

func (b *fakeBackend) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, request)
	b.mu.Unlock()
	if b.syncErr != nil {
		return nil, b.syncErr
	}
	return b.resp, nil
}

type fakeProvider struct {
	mu          sync.Mutex
	snapshot    *history.Snapshot
	invalidated []uint
}

func (p *fakeProvider) Context(_ context.Context, _ *conversation.Conversation) (*history.Snapshot, error) {
	if p.snapshot != nil {
		return p.snapshot, nil
	}
	return &history.Snapshot{Outcome: history.OutcomeFull}, nil
}

func (p *fakeProvider) Invalidate(conversationID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, conversationID)
}

type handlerFixture struct {
	handler  *ChatHandler
	queue    *savequeue.Service
	convRepo *fakeConversationRepo
	msgRepo  *fakeMessageRepo
	provider *fakeProvider
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, backend *fakeBackend) *handlerFixture {
	t.Helper()

	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	service := conversation.NewConversationService(convRepo, msgRepo, 10)
	provider := &fakeProvider{}

	queue := savequeue.NewService(service, fakeTx{}, provider, savequeue.Config{
		Capacity:   16,
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	cfg := &config.Config{
		ServiceName:        "superrag",
		DefaultModel:       "deepseek-chat",
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   2000,
	}

	fixture := &handlerFixture{
		handler:  NewChatHandler(service, provider, nil, backend, queue, fakeTx{}, cfg),
		queue:    queue,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		provider: provider,
		cancel:   cancel,
	}
	t.Cleanup(func() {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer drainCancel()
		_ = queue.Shutdown(drainCtx)
		cancel()
	})
	return fixture
}

func (f *handlerFixture) chatTurn(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	reqCtx, _ := gin.CreateTestContext(recorder)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	reqCtx.Request = req
	reqCtx.Set("user_id", "user-1")
	f.handler.ChatTurn(reqCtx)
	return recorder
}

func parseEvents(t *testing.T, body string) []chatresponses.StreamEvent {
	t.Helper()
	var events []chatresponses.StreamEvent
	for _, line := range strings.Split(body, "\n\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unexpected stream line %q", line)
		}
		var event chatresponses.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("unmarshal event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChatTurnStreamsAndPersistsBothMessages(t *testing.T) {
	backend := &fakeBackend{
		deltas: []inference.Delta{
			{ReasoningContent: "Let me think."},
			{Content: "The answer"},
			{Content: " is 42."},
		},
		resp: &openai.ChatCompletionResponse{
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	fixture := newFixture(t, backend)

	recorder := fixture.chatTurn(t, `{"message":"Hello"}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event stream content type, got %q", got)
	}

	events := parseEvents(t, recorder.Body.String())
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	want := []string{
		chatresponses.EventStart,
		chatresponses.EventProcessing,
		chatresponses.EventThinkingStream,
		chatresponses.EventThinkingComplete,
		chatresponses.EventContent,
		chatresponses.EventContent,
		chatresponses.EventDone,
	}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (all: %v)", i, want[i], types[i], types)
		}
	}

	start := events[0]
	if !strings.HasPrefix(start.ConversationID, "conv_") {
		t.Fatalf("expected conversation id, got %q", start.ConversationID)
	}
	if !strings.HasPrefix(start.UserMessageID, "msg_") || !strings.HasPrefix(start.AssistantMessageID, "msg_") {
		t.Fatalf("expected message ids in start event, got %+v", start)
	}
	if start.UserMessageID == start.AssistantMessageID {
		t.Fatal("user and assistant message ids must differ")
	}

	if events[3].Content != "Let me think." {
		t.Fatalf("expected finalized reasoning, got %q", events[3].Content)
	}

	streamed := events[4].Content + events[5].Content
	done := events[len(events)-1]
	if done.Content != streamed {
		t.Fatalf("done content %q does not match streamed content %q", done.Content, streamed)
	}
	if done.Content != "The answer is 42." {
		t.Fatalf("unexpected final content %q", done.Content)
	}
	if done.AssistantMessageID != start.AssistantMessageID {
		t.Fatal("done event must carry the assistant message id from start")
	}

	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 2 })

	messages := fixture.msgRepo.all()
	if messages[0].Role != conversation.RoleUser || messages[0].Content != "Hello" {
		t.Fatalf("expected user message first, got %+v", messages[0])
	}
	if messages[1].Role != conversation.RoleAssistant || messages[1].Content != "The answer is 42." {
		t.Fatalf("expected assistant message second, got %+v", messages[1])
	}
	if messages[0].PublicID != start.UserMessageID || messages[1].PublicID != start.AssistantMessageID {
		t.Fatal("persisted message ids must match the ids announced in the start event")
	}
	if messages[1].ReasoningContent() != "Let me think." {
		t.Fatalf("expected reasoning metadata on assistant message, got %q", messages[1].ReasoningContent())
	}

	conv := fixture.convRepo.get(messages[0].ConversationID)
	if conv == nil {
		t.Fatal("conversation missing")
	}
	if conv.MessageCount != 2 {
		t.Fatalf("expected message count 2, got %d", conv.MessageCount)
	}
}

func TestChatTurnReusesExistingConversation(t *testing.T) {
	backend := &fakeBackend{
		deltas: []inference.Delta{{Content: "Sure."}},
		resp:   &openai.ChatCompletionResponse{},
	}
	fixture := newFixture(t, backend)

	first := parseEvents(t, fixture.chatTurn(t, `{"message":"Hello"}`).Body.String())
	convID := first[0].ConversationID
	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 2 })

	second := parseEvents(t, fixture.chatTurn(t, `{"message":"And again?","conversation_id":"`+convID+`"}`).Body.String())
	if second[0].ConversationID != convID {
		t.Fatalf("expected conversation %s to be reused, got %s", convID, second[0].ConversationID)
	}
	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 4 })
}

func TestChatTurnFallsBackWhenStreamFails(t *testing.T) {
	backend := &fakeBackend{
		streamErr: errors.New("connection reset"),
		resp: &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Content:          "Recovered answer.",
					ReasoningContent: "Recovered reasoning.",
				},
			}},
		},
	}
	fixture := newFixture(t, backend)

	events := parseEvents(t, fixture.chatTurn(t, `{"message":"Hello"}`).Body.String())

	var contents []string
	sawThinkingComplete := false
	for _, event := range events {
		switch event.Type {
		case chatresponses.EventContent:
			contents = append(contents, event.Content)
		case chatresponses.EventThinkingComplete:
			sawThinkingComplete = true
		}
	}
	if len(contents) != 1 || contents[0] != "Recovered answer." {
		t.Fatalf("expected fallback content event, got %v", contents)
	}
	if !sawThinkingComplete {
		t.Fatal("expected fallback reasoning to surface as thinking_complete")
	}
	done := events[len(events)-1]
	if done.Type != chatresponses.EventDone || done.Content != "Recovered answer." {
		t.Fatalf("expected done with fallback content, got %+v", done)
	}

	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 2 })
	messages := fixture.msgRepo.all()
	if messages[1].Content != "Recovered answer." {
		t.Fatalf("expected fallback content persisted, got %q", messages[1].Content)
	}
	if messages[1].ReasoningContent() != "Recovered reasoning." {
		t.Fatalf("expected fallback reasoning persisted, got %q", messages[1].ReasoningContent())
	}
}

func TestChatTurnApologizesWhenFallbackFailsToo(t *testing.T) {
	backend := &fakeBackend{
		streamErr: errors.New("connection reset"),
		syncErr:   errors.New("model overloaded"),
	}
	fixture := newFixture(t, backend)

	events := parseEvents(t, fixture.chatTurn(t, `{"message":"Hello"}`).Body.String())

	var contents []string
	errorAt, contentAt := -1, -1
	for i, event := range events {
		switch event.Type {
		case chatresponses.EventContent:
			contents = append(contents, event.Content)
			if contentAt == -1 {
				contentAt = i
			}
		case chatresponses.EventError:
			errorAt = i
			if event.Error == "" {
				t.Fatal("error event must carry a message")
			}
		}
	}
	if errorAt == -1 {
		t.Fatalf("expected an error event before the apology, got %+v", events)
	}
	if len(contents) != 1 || contents[0] != fallbackApology {
		t.Fatalf("expected apology content event, got %v", contents)
	}
	if errorAt > contentAt {
		t.Fatalf("error event at %d must precede apology content at %d", errorAt, contentAt)
	}
	done := events[len(events)-1]
	if done.Type != chatresponses.EventDone || done.Content != fallbackApology {
		t.Fatalf("expected done with apology, got %+v", done)
	}

	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 2 })
	messages := fixture.msgRepo.all()
	if messages[1].Role != conversation.RoleAssistant || messages[1].Content != fallbackApology {
		t.Fatalf("expected apology persisted, got %+v", messages[1])
	}
}

func TestChatTurnKeepsStreamedContentWhenStreamDiesMidway(t *testing.T) {
	backend := &fakeBackend{
		deltas: []inference.Delta{
			{Content: "Partial "},
			{Content: "answer."},
		},
		streamErr: errors.New("connection reset"),
		resp: &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Content: "A different full answer."},
			}},
		},
	}
	fixture := newFixture(t, backend)

	events := parseEvents(t, fixture.chatTurn(t, `{"message":"Hello"}`).Body.String())

	var streamed strings.Builder
	for _, event := range events {
		if event.Type == chatresponses.EventContent {
			streamed.WriteString(event.Content)
		}
	}
	done := events[len(events)-1]
	if done.Type != chatresponses.EventDone {
		t.Fatalf("expected done event last, got %+v", done)
	}
	if done.Content != streamed.String() {
		t.Fatalf("done content %q does not match streamed content %q", done.Content, streamed.String())
	}
	if done.Content != "Partial answer." {
		t.Fatalf("expected the streamed tokens as the final answer, got %q", done.Content)
	}

	backend.mu.Lock()
	requestCount := len(backend.requests)
	backend.mu.Unlock()
	if requestCount != 1 {
		t.Fatalf("expected no non-streaming retry once tokens reached the client, got %d requests", requestCount)
	}

	waitFor(t, 2*time.Second, func() bool { return len(fixture.msgRepo.all()) == 2 })
	messages := fixture.msgRepo.all()
	if messages[1].Content != "Partial answer." {
		t.Fatalf("expected streamed tokens persisted, got %q", messages[1].Content)
	}
}

func TestChatTurnSendsSummaryAndHistoryToModel(t *testing.T) {
	backend := &fakeBackend{
		deltas: []inference.Delta{{Content: "ok"}},
		resp:   &openai.ChatCompletionResponse{},
	}
	fixture := newFixture(t, backend)
	fixture.provider.snapshot = &history.Snapshot{
		Messages: []*conversation.Message{
			{Role: conversation.RoleUser, Content: "earlier question"},
			{Role: conversation.RoleAssistant, Content: "earlier answer"},
		},
		Summary: "They discussed sea otters.",
		Outcome: history.OutcomeSummarized,
	}

	fixture.chatTurn(t, `{"message":"Hello"}`)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.requests) != 1 {
		t.Fatalf("expected one completion request, got %d", len(backend.requests))
	}
	request := backend.requests[0]
	if request.Model != "deepseek-chat" {
		t.Fatalf("expected default model, got %q", request.Model)
	}
	if len(request.Messages) != 3 {
		t.Fatalf("expected system + 2 history messages, got %d", len(request.Messages))
	}
	if request.Messages[0].Role != openai.ChatMessageRoleSystem ||
		!strings.Contains(request.Messages[0].Content, "They discussed sea otters.") {
		t.Fatalf("expected summary folded into system prompt, got %q", request.Messages[0].Content)
	}
	if request.Messages[1].Content != "earlier question" || request.Messages[2].Content != "earlier answer" {
		t.Fatalf("expected history window in order, got %+v", request.Messages[1:])
	}
	if request.Messages[2].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("expected assistant role mapped through, got %q", request.Messages[2].Role)
	}
}

func TestChatTurnSyncModeReturnsJSON(t *testing.T) {
	backend := &fakeBackend{
		resp: &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Content:          "Plain answer.",
					ReasoningContent: "Quiet thoughts.",
				},
			}},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
		},
	}
	fixture := newFixture(t, backend)

	recorder := fixture.chatTurn(t, `{"message":"Hello","stream":false}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response chatresponses.ChatResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Content != "Plain answer." || response.ReasoningContent != "Quiet thoughts." {
		t.Fatalf("unexpected response payload: %+v", response)
	}
	if response.PromptTokens != 12 || response.CompletionTokens != 4 {
		t.Fatalf("expected token usage in response, got %+v", response)
	}
	if !strings.HasPrefix(response.ConversationID, "conv_") {
		t.Fatalf("expected conversation id, got %q", response.ConversationID)
	}

	// Sync mode writes through directly, no queue involved.
	messages := fixture.msgRepo.all()
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages persisted, got %d", len(messages))
	}
	if messages[1].Content != "Plain answer." || messages[1].ReasoningContent() != "Quiet thoughts." {
		t.Fatalf("unexpected assistant message: %+v", messages[1])
	}
}

func TestChatTurnExtractsInlineReasoningInSyncMode(t *testing.T) {
	backend := &fakeBackend{
		resp: &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Content: "<think>Inline thoughts.</think>Visible answer.",
				},
			}},
		},
	}
	fixture := newFixture(t, backend)

	recorder := fixture.chatTurn(t, `{"message":"Hello","stream":false}`)
	var response chatresponses.ChatResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Content != "Visible answer." {
		t.Fatalf("expected think block stripped, got %q", response.Content)
	}
	if response.ReasoningContent != "Inline thoughts." {
		t.Fatalf("expected reasoning extracted, got %q", response.ReasoningContent)
	}
}

func TestChatTurnRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank message", `{"message":"   "}`},
		{"temperature out of range", `{"message":"hi","temperature":3.5}`},
		{"non-positive max tokens", `{"message":"hi","max_tokens":0}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{}
			fixture := newFixture(t, backend)
			recorder := fixture.chatTurn(t, tc.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
			}
			if len(fixture.msgRepo.all()) != 0 {
				t.Fatal("invalid requests must not persist messages")
			}
		})
	}
}
