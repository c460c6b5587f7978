// Package models defines the core data structures for PlanLoom.
//
// It includes the wire contract of the planning engine and the API
// response envelope shared across modules.
package models

import "errors"

// Validation constants for inbound planning requests.
const (
	// MaxMessageLength defines the maximum allowed length for a user message
	MaxMessageLength = 8192
	// MaxCallerHistoryMessages defines the maximum caller-supplied history size
	MaxCallerHistoryMessages = 200
)

// Error variables for request validation and testability.
var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrInvalidMode    = errors.New("invalid planning mode")
	ErrHistoryTooLong = errors.New("conversation history exceeds maximum length")
)

// PlanningRequest is the inbound wire contract of the engine.
//
// ConversationHistory is the caller's view of the thread. An empty
// history is the reset signal: it always starts a new conversation,
// regardless of any server-side session that may exist.
type PlanningRequest struct {
	Message             string                `json:"message"`
	ConversationHistory []ConversationMessage `json:"conversationHistory"`
	Mode                PlanningMode          `json:"mode,omitempty"`
}

// Validate performs validation on a PlanningRequest.
func (r *PlanningRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if r.Mode != "" && !IsValidPlanningMode(r.Mode) {
		return ErrInvalidMode
	}
	if len(r.ConversationHistory) > MaxCallerHistoryMessages {
		return ErrHistoryTooLong
	}
	return nil
}

// PlanningResponse is the outbound wire contract of the engine.
type PlanningResponse struct {
	Message          string `json:"message"`
	SessionID        string `json:"sessionId"`
	PlanGenerated    bool   `json:"planGenerated"`
	ActivityCreated  bool   `json:"activityCreated,omitempty"`
	ActivityUpdated  bool   `json:"activityUpdated,omitempty"`
	CreatedTasks     []Task `json:"createdTasks,omitempty"`
	ActivityID       string `json:"activityId,omitempty"`
	Error            string `json:"error,omitempty"`
	SessionCompleted bool   `json:"sessionCompleted,omitempty"`
	RequiresReset    bool   `json:"requiresReset,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the uniform JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for constructing API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new API response builder.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
