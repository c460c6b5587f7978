package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.lastParams = params
	return m.resp, m.err
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGenerateJSONWithMessages_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.GenerateJSONWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("hi"),
	})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateJSONWithMessages_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{}}, model: DefaultModel}
	_, err := client.GenerateJSONWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("hi"),
	})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerateJSONWithMessages_SetsResponseFormat(t *testing.T) {
	mock := &mockChatService{resp: completionWith(`{"ok":true}`)}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.GenerateJSONWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("emit json"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("unexpected output %q", out)
	}
	if mock.lastParams.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format to be set")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
