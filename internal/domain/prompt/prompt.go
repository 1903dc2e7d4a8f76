// Package prompt holds the system prompt templates and their composition
// rules.
package prompt

import (
	"fmt"
	"strings"

	"github.com/simon-0512/superrag/internal/domain/conversation"
)

// BaseAssistant is the default persona used when a conversation carries no
// custom system prompt.
const BaseAssistant = `You are a knowledgeable and helpful AI assistant. Answer accurately and concisely, admit uncertainty instead of guessing, and keep the conversation's language.`

const knowledgeEnhancedTemplate = `You are a knowledgeable and helpful AI assistant with access to a curated knowledge base. Ground your answers in the reference material below when it is relevant, and say so when it does not cover the question.

Reference material:
%s`

const summarizedContextTemplate = `%s

Earlier parts of this conversation were compacted. Summary of the omitted rounds:

%s

Treat the summary as established context and answer the latest message accordingly.`

// SummarizationInstruction asks the model to compact older conversation
// rounds into a reusable context summary.
const SummarizationInstruction = `Summarize the conversation below for use as context in a continuing chat. Capture, in order:
1. The user's goals and key questions
2. Important facts, decisions, and constraints that were established
3. Any unresolved threads

Be faithful to the conversation, keep its language, and stay under 300 words. Output only the summary.`

// BuildSystemPrompt composes the effective system prompt for a turn.
// basePrompt overrides the default persona when non-empty; knowledgeContext
// switches to the knowledge-grounded template; summary wraps whichever
// prompt resulted with the compacted history.
func BuildSystemPrompt(basePrompt, summary, knowledgeContext string) string {
	prompt := strings.TrimSpace(basePrompt)
	if prompt == "" {
		prompt = BaseAssistant
	}
	if knowledgeContext = strings.TrimSpace(knowledgeContext); knowledgeContext != "" {
		prompt = fmt.Sprintf(knowledgeEnhancedTemplate, knowledgeContext)
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		prompt = fmt.Sprintf(summarizedContextTemplate, prompt, summary)
	}
	return prompt
}

// FormatHistory renders messages as a labeled transcript for the
// summarization call, turns separated by blank lines.
func FormatHistory(messages []*conversation.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := "User"
		if msg.Role == conversation.RoleAssistant {
			label = "Assistant"
		} else if msg.Role == conversation.RoleSystem {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Content))
	}
	return strings.Join(lines, "\n\n")
}
