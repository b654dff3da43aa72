package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_model.go -package=mocks notebook-rag/internal/llm ChatModel

import "context"

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatModel is a language model that answers a conversation.
type ChatModel interface {
	// ChatWithMessages sends the conversation and returns the assistant reply.
	ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error)
	// Warmup asks the server to load the model ahead of the first request.
	Warmup(ctx context.Context) error
	// Name returns the model identifier.
	Name() string
}

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	// If 0, the server default is used.
	Temperature float32
}

var (
	_ ChatModel = (*Client)(nil)
	_ ChatModel = (*OllamaClient)(nil)
)
