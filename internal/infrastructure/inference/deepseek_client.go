// Package inference talks to the OpenAI-compatible DeepSeek API.
package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"github.com/simon-0512/superrag/internal/domain/history"
	"github.com/simon-0512/superrag/internal/domain/prompt"
	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/infrastructure/metrics"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

const (
	defaultRequestTimeout = 120 * time.Second
	channelBufferSize     = 100
	errorBufferSize       = 10
	dataPrefix            = "data: "
	doneMarker            = "[DONE]"
	scannerInitialBuffer  = 12 * 1024        // 12KB
	scannerMaxBuffer      = 10 * 1024 * 1024 // 10MB

	summaryTemperature = 0.3
	summaryMaxTokens   = 500
)

// Delta is one streamed chunk, with the reasoning channel kept separate from
// answer content.
type Delta struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

// DeltaFunc receives each parsed chunk during a streaming completion.
// Returning an error aborts the stream.
type DeltaFunc func(Delta) error

type streamChoice struct {
	Delta Delta `json:"delta"`
}

type tokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config holds the client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	SummaryModel string
	Timeout      time.Duration
}

// DeepSeekClient is a chat completion client for the DeepSeek API. It also
// serves as the history summarizer.
type DeepSeekClient struct {
	client       *resty.Client
	baseURL      string
	apiKey       string
	summaryModel string
	timeout      time.Duration
	name         string
}

var _ history.Summarizer = (*DeepSeekClient)(nil)

func NewDeepSeekClient(client *resty.Client, cfg Config) *DeepSeekClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &DeepSeekClient{
		client:       client,
		baseURL:      normalizeBaseURL(cfg.BaseURL),
		apiKey:       cfg.APIKey,
		summaryModel: cfg.SummaryModel,
		timeout:      timeout,
		name:         "deepseek",
	}
}

// CreateChatCompletion performs a non-streaming completion.
func (c *DeepSeekClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "chat completion request failed", err, "9e2f5a8b-1c4d-4e7f-a0b3-6d9c2e5f8a1b")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "chat completion request failed")
	}
	return &respBody, nil
}

// StreamChatCompletion performs a streaming completion, invoking onDelta for
// every parsed chunk. The returned response carries the fully accumulated
// content and reasoning.
func (c *DeepSeekClient) StreamChatCompletion(ctx context.Context, request openai.ChatCompletionRequest, onDelta DeltaFunc) (*openai.ChatCompletionResponse, error) {
	request.Stream = true
	// Force usage reporting so the final chunk carries real token counts.
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dataChan := make(chan string, channelBufferSize)
	errChan := make(chan error, errorBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.streamResponseToChannel(ctx, request, dataChan, errChan, &wg)

	var contentBuilder strings.Builder
	var reasoningBuilder strings.Builder
	var usage *tokenUsage

	streamingComplete := false
	for !streamingComplete {
		select {
		case line, ok := <-dataChan:
			if !ok {
				streamingComplete = true
				break
			}
			data, found := strings.CutPrefix(line, dataPrefix)
			if !found {
				continue
			}
			if data == doneMarker {
				streamingComplete = true
				cancel()
				break
			}

			choice, chunkUsage := c.processStreamChunk(data)
			if chunkUsage != nil {
				usage = chunkUsage
			}
			if choice == nil {
				continue
			}
			if choice.Delta.Content != "" {
				contentBuilder.WriteString(choice.Delta.Content)
			}
			if choice.Delta.ReasoningContent != "" {
				reasoningBuilder.WriteString(choice.Delta.ReasoningContent)
			}
			if onDelta != nil && (choice.Delta.Content != "" || choice.Delta.ReasoningContent != "") {
				if err := onDelta(choice.Delta); err != nil {
					cancel()
					wg.Wait()
					return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "delta callback failed")
				}
			}

		case err, ok := <-errChan:
			if ok && err != nil {
				cancel()
				wg.Wait()
				return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming error")
			}

		case <-ctx.Done():
			wg.Wait()
			return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, ctx.Err(), "streaming context cancelled")
		}
	}

	cancel()
	wg.Wait()

	response := c.buildCompleteResponse(contentBuilder.String(), reasoningBuilder.String(), usage, request)
	return &response, nil
}

// Summarize implements history.Summarizer with a low-temperature completion
// against the summary model.
func (c *DeepSeekClient) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}

	start := time.Now()
	defer func() {
		metrics.SummaryDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SummarizationInstruction},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "summary response has no choices", nil, "0a3d6f9c-2e5b-4f8a-91c4-7e0b3d6f9c2e")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *DeepSeekClient) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	return req
}

func (c *DeepSeekClient) endpoint(path string) string {
	if path == "" {
		return c.baseURL
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

func (c *DeepSeekClient) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "3476dd55-5fc0-4653-bd10-665895ecc099")
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "8cd2cae7-9ad9-40fe-ac00-8f9b24251064")
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, fmt.Sprintf("%s: status %d", message, resp.StatusCode()), nil, "b8797de4-38cb-4bd9-9ae8-b9a04e70f6ab")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, fmt.Sprintf("%s: %s", message, trimmed), nil, "a1f46e0d-4017-4411-ac05-987946c3066d")
}

func (c *DeepSeekClient) doStreamingRequest(ctx context.Context, request openai.ChatCompletionRequest) (*resty.Response, error) {
	req := c.prepareRequest(ctx).
		SetBody(request).
		SetDoNotParseResponse(true)

	if req.Header.Get("Accept-Encoding") == "" {
		req.SetHeader("Accept-Encoding", "identity")
	}

	resp, err := req.Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "streaming request failed")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "streaming request failed: empty response body", nil, "1b3ab461-dbf9-4034-8abb-dfc6ea8486c5")
	}

	return resp, nil
}

func (c *DeepSeekClient) streamResponseToChannel(ctx context.Context, request openai.ChatCompletionRequest, dataChan chan<- string, errChan chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(dataChan)

	resp, err := c.doStreamingRequest(ctx, request)
	if err != nil {
		c.sendAsyncError(errChan, err)
		return
	}

	defer func() {
		if closeErr := resp.RawResponse.Body.Close(); closeErr != nil {
			log := logger.GetLogger()
			log.Error().Err(closeErr).Str("client", c.name).Msg("unable to close response body")
		}
	}()

	scanner := bufio.NewScanner(resp.RawResponse.Body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case dataChan <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.sendAsyncError(errChan, err)
	}
}

func (c *DeepSeekClient) processStreamChunk(data string) (*streamChoice, *tokenUsage) {
	var streamData struct {
		Choices []streamChoice `json:"choices"`
		Usage   *tokenUsage    `json:"usage"`
	}

	if err := json.Unmarshal([]byte(data), &streamData); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("client", c.name).Str("data", data).Msg("failed to parse stream chunk JSON")
		return nil, nil
	}

	result := &streamChoice{}
	for _, choice := range streamData.Choices {
		if choice.Delta.Content != "" {
			result.Delta.Content += choice.Delta.Content
		}
		if choice.Delta.ReasoningContent != "" {
			result.Delta.ReasoningContent += choice.Delta.ReasoningContent
		}
	}

	return result, streamData.Usage
}

func (c *DeepSeekClient) buildCompleteResponse(content, reasoning string, usage *tokenUsage, request openai.ChatCompletionRequest) openai.ChatCompletionResponse {
	message := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	}
	if reasoning != "" {
		message.ReasoningContent = reasoning
	}

	respUsage := openai.Usage{}
	if usage != nil {
		respUsage.PromptTokens = usage.PromptTokens
		respUsage.CompletionTokens = usage.CompletionTokens
		respUsage.TotalTokens = usage.TotalTokens
	} else {
		respUsage.PromptTokens = estimateTokens(request.Messages)
		respUsage.CompletionTokens = estimateTokens([]openai.ChatCompletionMessage{message})
		respUsage.TotalTokens = respUsage.PromptTokens + respUsage.CompletionTokens
	}

	return openai.ChatCompletionResponse{
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   request.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      message,
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: respUsage,
	}
}

func estimateTokens(messages []openai.ChatCompletionMessage) int {
	var allText strings.Builder
	for _, msg := range messages {
		allText.WriteString(msg.Content)
		allText.WriteString(" ")
		if msg.ReasoningContent != "" {
			allText.WriteString(msg.ReasoningContent)
			allText.WriteString(" ")
		}
	}
	return len(strings.Fields(allText.String()))
}

func (c *DeepSeekClient) sendAsyncError(errChan chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errChan <- err:
	default:
	}
}

func (c *DeepSeekClient) BaseURL() string {
	return c.baseURL
}

func normalizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	return strings.TrimRight(trimmed, "/")
}
