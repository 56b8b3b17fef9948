// ABOUTME: OpenAI-backed embedding and answer synthesis for the corpus adapters
// ABOUTME: Builds language-aware prompts carrying conversation history and retrieved passages

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Embedder converts a question into a vector for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Synthesizer produces a prose answer from retrieved passages.
type Synthesizer interface {
	Synthesize(ctx context.Context, q Query, passages []Passage) (string, error)
}

// System prompts per language. The model is told to answer strictly from the
// supplied passages and to admit when they don't cover the question.
const (
	systemPromptNL = "Je bent een juridische assistent. Beantwoord de vraag uitsluitend op basis van de aangeleverde wetteksten, rechtspraak en parlementaire stukken. Verwijs naar de relevante bepalingen. Als de bronnen geen antwoord bevatten, zeg dat dan."
	systemPromptFR = "Vous êtes un assistant juridique. Répondez à la question exclusivement sur la base des textes légaux, de la jurisprudence et des documents parlementaires fournis. Citez les dispositions pertinentes. Si les sources ne contiennent pas de réponse, dites-le."
)

// OpenAIClient implements Embedder and Synthesizer using the OpenAI API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	embedModel string
}

// NewOpenAIClient creates a client for the given models.
func NewOpenAIClient(apiKey, model, embedModel string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client:     &client,
		model:      model,
		embedModel: embedModel,
	}
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: param.Opt[string]{Value: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	embedding := make([]float32, len(res.Data[0].Embedding))
	for i, v := range res.Data[0].Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Synthesize produces an answer from the passages, in the question's language,
// with prior conversation turns as context.
func (c *OpenAIClient) Synthesize(ctx context.Context, q Query, passages []Passage) (string, error) {
	systemPrompt := systemPromptNL
	if q.Language == "fr" {
		systemPrompt = systemPromptFR
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(q.History)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range q.History {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(buildAnswerPrompt(q, passages)))

	res, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: param.Opt[float64]{Value: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return res.Choices[0].Message.Content, nil
}

// buildAnswerPrompt lays out the passages and the question for the model.
func buildAnswerPrompt(q Query, passages []Passage) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, p.Title, p.Identifier, p.Excerpt)
	}
	b.WriteString(q.Question)
	return b.String()
}
