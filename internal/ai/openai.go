package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/config"
)

var (
	_ Embedder  = (*OpenAIService)(nil)
	_ Completer = (*OpenAIService)(nil)
)

// OpenAIService implements Embedder and Completer against the OpenAI API.
// Every call carries a timeout shorter than the scheduler's delivery ceiling,
// so a stuck call can never hold a coaching session open.
type OpenAIService struct {
	client         *openai.Client
	logger         zerolog.Logger
	chatModel      string
	embeddingModel string
	timeout        time.Duration
}

// NewOpenAIService creates a client for the embedding/completion services
func NewOpenAIService(logger zerolog.Logger, cfg config.OpenAIConfig) *OpenAIService {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	)
	return &OpenAIService{
		client:         &client,
		logger:         logger,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}
}

// Embed returns the embedding vector for a single input text
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: s.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: param.Opt[string]{Value: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: no data returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Complete sends a system+user prompt pair and returns the assistant content
func (s *OpenAIService) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: param.Opt[float64]{Value: 0.3},
		MaxTokens:   param.Opt[int64]{Value: 800},
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices returned")
	}

	s.logger.Debug().
		Str("model", s.chatModel).
		Dur("duration", time.Since(start)).
		Msg("completion ok")
	return resp.Choices[0].Message.Content, nil
}
