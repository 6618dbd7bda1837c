package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examdesk/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// MaxDraft caps how many questions one drafting request may ask for.
const MaxDraft = 30

// Draft is one generated multiple-choice question as returned by the model.
type Draft struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

type draftResponse struct {
	Questions []Draft `json:"questions"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// DraftQuestions asks the model for n four-option questions about topic.
// Drafts that do not validate are dropped; the teacher reviews the rest
// like any other question.
func (c *Client) DraftQuestions(ctx context.Context, topic string, n int, existing []string) ([]model.QuestionInput, error) {
	if n <= 0 || n > MaxDraft {
		return nil, &model.ValidationError{Fields: []string{"count"}, Reason: fmt.Sprintf("count must be between 1 and %d", MaxDraft)}
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &model.ValidationError{Fields: []string{"topic"}, Reason: "topic is required"}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildDraftSystemPrompt(n, existing)},
			{Role: openai.ChatMessageRoleUser, Content: topic},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseDrafts(raw)
}

func parseDrafts(raw string) ([]model.QuestionInput, error) {
	var dr draftResponse
	if err := json.Unmarshal([]byte(cleanJSONContent(raw)), &dr); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	var out []model.QuestionInput
	for i, d := range dr.Questions {
		if len(d.Options) != 4 {
			slog.Warn("dropping draft with wrong option count", "index", i, "options", len(d.Options))
			continue
		}
		in := model.QuestionInput{
			Text:    d.Text,
			OptionA: d.Options[0],
			OptionB: d.Options[1],
			OptionC: d.Options[2],
			OptionD: d.Options[3],
			Correct: d.Correct,
		}
		if _, err := in.Question(0); err != nil {
			slog.Warn("dropping invalid draft", "index", i, "error", err)
			continue
		}
		out = append(out, in.Normalize())
	}
	return out, nil
}

func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func buildDraftSystemPrompt(n int, existing []string) string {
	var sb strings.Builder
	sb.WriteString("You write multiple-choice exam questions. The user message is the topic.\n\n")
	sb.WriteString(fmt.Sprintf("Write exactly %d questions. Each question has exactly four options and exactly one correct option.\n", n))
	sb.WriteString("- Keep options short and plausible; avoid \"all of the above\".\n")
	sb.WriteString("- Vary which option is correct.\n")
	sb.WriteString("- Write in the same language as the topic.\n")
	if len(existing) > 0 {
		sb.WriteString("\nDo NOT repeat these existing questions:\n")
		for _, q := range existing {
			sb.WriteString("- " + q + "\n")
		}
	}
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"questions": [{"text": "<question>", "options": ["<a>", "<b>", "<c>", "<d>"], "correct": "<a|b|c|d>"}]}`)
	sb.WriteString("\n")
	return sb.String()
}
