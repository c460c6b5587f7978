// Package planner implements the slot extractor / planner agent collaborator.
//
// The agent is a black box from the engine's point of view: it receives the
// conversation so far and returns an assistant message, merged slots, and
// optionally a candidate plan with a ready flag. The engine treats the ready
// flag as untrusted; the flow package enforces its own guardrails on top.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PlanLoom/PlanLoom/internal/genai"
	"github.com/PlanLoom/PlanLoom/internal/models"
	"github.com/openai/openai-go"
)

// Result is the extractor's output for one turn.
type Result struct {
	Message         string                `json:"message"`
	ExtractedSlots  map[string]string     `json:"extracted_slots,omitempty"`
	ReadyToGenerate bool                  `json:"ready_to_generate"`
	Plan            *models.CandidatePlan `json:"plan,omitempty"`
	Domain          string                `json:"domain,omitempty"`
}

// Agent is the collaborator contract the state machine depends on.
type Agent interface {
	Process(ctx context.Context, userKey, message string, history []models.ConversationMessage, mode models.PlanningMode, slotContext map[string]string) (*Result, error)
}

// quickModePrompt keeps question count low and generates early.
const quickModePrompt = `You are a planning assistant helping a user turn a freeform goal into a concrete plan (one activity with a list of tasks).

QUICK MODE rules:
- Ask at most 2 short clarifying questions across the whole conversation.
- As soon as you know roughly what the user wants, propose a complete plan.
- Prefer sensible defaults over further questions.`

// smartModePrompt is more thorough before proposing a plan.
const smartModePrompt = `You are a planning assistant helping a user turn a freeform goal into a concrete plan (one activity with a list of tasks).

SMART MODE rules:
- Ask up to 5 clarifying questions, one per turn, covering timing, budget, participants, and constraints.
- Only propose a plan once the important details are collected.
- Be thorough: include task descriptions, categories, time estimates, and a budget breakdown when the user mentioned money.`

// outputContract instructs the model to reply with the strict JSON shape
// parsed below. Sent as a second system message in every call.
const outputContract = `Respond with a single JSON object, no other text:
{
  "message": "your reply to the user",
  "extracted_slots": {"slot_name": "value"},
  "ready_to_generate": false,
  "domain": "short category of the activity",
  "plan": {
    "title": "...",
    "description": "...",
    "domain": "...",
    "tasks": [
      {"title": "...", "description": "...", "category": "...", "priority": "high|medium|low", "time_estimate": "...", "scheduled_date": "YYYY-MM-DD", "start_time": "HH:MM"}
    ],
    "budget": {"total": 0, "breakdown": [{"category": "...", "amount": 0, "notes": "..."}], "buffer": 0}
  }
}
Set "ready_to_generate" to true and include "plan" only when the plan is complete enough to confirm with the user. Omit "plan" otherwise. Dates, times, and budget are optional inside tasks.`

// OpenAIAgent is the production extractor backed by the GenAI client.
type OpenAIAgent struct {
	genaiClient  genai.ClientInterface
	historyLimit int
}

// NewOpenAIAgent creates the production planner agent.
func NewOpenAIAgent(client genai.ClientInterface) *OpenAIAgent {
	return &OpenAIAgent{genaiClient: client, historyLimit: 30}
}

// Process runs one extractor turn.
func (a *OpenAIAgent) Process(ctx context.Context, userKey, message string, history []models.ConversationMessage, mode models.PlanningMode, slotContext map[string]string) (*Result, error) {
	if a.genaiClient == nil {
		return nil, fmt.Errorf("planner agent not properly initialized")
	}

	messages := a.buildMessages(message, history, mode, slotContext)
	slog.Debug("OpenAIAgent.Process: invoking extractor", "userKey", userKey, "mode", mode, "messageCount", len(messages))

	raw, err := a.genaiClient.GenerateJSONWithMessages(ctx, messages)
	if err != nil {
		slog.Error("OpenAIAgent.Process: extractor call failed", "error", err, "userKey", userKey)
		return nil, fmt.Errorf("extractor call failed: %w", err)
	}

	result, err := ParseResult(raw)
	if err != nil {
		slog.Error("OpenAIAgent.Process: failed to parse extractor output", "error", err, "userKey", userKey, "rawLength", len(raw))
		return nil, fmt.Errorf("failed to parse extractor output: %w", err)
	}

	slog.Debug("OpenAIAgent.Process: extractor returned", "userKey", userKey, "readyToGenerate", result.ReadyToGenerate, "hasPlan", result.Plan != nil, "slotCount", len(result.ExtractedSlots))
	return result, nil
}

// buildMessages assembles system prompt + slot context + history + current message.
func (a *OpenAIAgent) buildMessages(message string, history []models.ConversationMessage, mode models.PlanningMode, slotContext map[string]string) []openai.ChatCompletionMessageParamUnion {
	systemPrompt := smartModePrompt
	if mode == models.ModeQuick {
		systemPrompt = quickModePrompt
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.SystemMessage(outputContract),
	}

	if len(slotContext) > 0 {
		var sb strings.Builder
		sb.WriteString("KNOWN SLOTS (already extracted, do not re-ask):\n")
		for k, v := range slotContext {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
		messages = append(messages, openai.SystemMessage(sb.String()))
	}

	// Limit history to prevent token overflow.
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	messages = append(messages, openai.UserMessage(message))
	return messages
}

// ParseResult parses the extractor's raw JSON reply, tolerating code fences.
func ParseResult(raw string) (*Result, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result Result
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("extractor output is not valid JSON: %w", err)
	}
	if result.Message == "" {
		return nil, fmt.Errorf("extractor output has no message")
	}
	return &result, nil
}
