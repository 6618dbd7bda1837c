package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examdesk/internal/model"
)

func TestParseDrafts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"valid", `{"questions":[{"text":"2+2?","options":["3","4","5","6"],"correct":"b"}]}`, 1},
		{"fenced", "```json\n{\"questions\":[{\"text\":\"Q\",\"options\":[\"1\",\"2\",\"3\",\"4\"],\"correct\":\"A\"}]}\n```", 1},
		{"three options dropped", `{"questions":[{"text":"Q","options":["1","2","3"],"correct":"a"}]}`, 0},
		{"bad designator dropped", `{"questions":[{"text":"Q","options":["1","2","3","4"],"correct":"e"}]}`, 0},
		{"empty option dropped", `{"questions":[{"text":"Q","options":["1","","3","4"],"correct":"a"}]}`, 0},
		{"mixed", `{"questions":[
			{"text":"Q1","options":["1","2","3","4"],"correct":"d"},
			{"text":"","options":["1","2","3","4"],"correct":"a"}]}`, 1},
		{"empty list", `{"questions":[]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDrafts(tt.raw)
			if err != nil {
				t.Fatalf("parseDrafts: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d drafts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseDraftsNormalizes(t *testing.T) {
	got, err := parseDrafts(`{"questions":[{"text":" Q ","options":["1","2","3","4"],"correct":" C "}]}`)
	if err != nil {
		t.Fatalf("parseDrafts: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Q" || got[0].Correct != "c" {
		t.Errorf("unexpected draft %+v", got)
	}
}

func TestParseDraftsInvalidJSON(t *testing.T) {
	if _, err := parseDrafts("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestBuildDraftSystemPrompt(t *testing.T) {
	prompt := buildDraftSystemPrompt(5, []string{"What is Go?"})
	if !strings.Contains(prompt, "exactly 5 questions") {
		t.Error("prompt should state the question count")
	}
	if !strings.Contains(prompt, "- What is Go?") {
		t.Error("prompt should list existing questions")
	}

	prompt = buildDraftSystemPrompt(1, nil)
	if strings.Contains(prompt, "Do NOT repeat") {
		t.Error("prompt should not mention existing questions when there are none")
	}
}

func TestDraftQuestionsValidatesInput(t *testing.T) {
	c, err := New("http://127.0.0.1:1/v1", "key", "m")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.DraftQuestions(context.Background(), "physics", 0, nil); !model.IsValidation(err) {
		t.Errorf("expected validation error for zero count, got %v", err)
	}
	if _, err := c.DraftQuestions(context.Background(), "  ", 3, nil); !model.IsValidation(err) {
		t.Errorf("expected validation error for blank topic, got %v", err)
	}
}

func TestDraftQuestionsChatCompletion(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		content := `{"questions":[
			{"text":"Speed of light?","options":["300 km/s","300000 km/s","3 km/s","30 km/s"],"correct":"B"},
			{"text":"Bad","options":["1","2"],"correct":"a"}]}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "c1",
			Object: "chat.completion",
			Model:  "test-model",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/v1", "key", "test-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drafts, err := c.DraftQuestions(context.Background(), " physics ", 2, []string{"What is mass?"})
	if err != nil {
		t.Fatalf("DraftQuestions: %v", err)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("response format = %+v, want json_object", got.ResponseFormat)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != openai.ChatMessageRoleSystem ||
		!strings.Contains(got.Messages[0].Content, "exactly 2 questions") ||
		!strings.Contains(got.Messages[0].Content, "- What is mass?") {
		t.Errorf("unexpected system message %+v", got.Messages[0])
	}
	if got.Messages[1].Role != openai.ChatMessageRoleUser || got.Messages[1].Content != "physics" {
		t.Errorf("unexpected user message %+v", got.Messages[1])
	}

	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	want := model.QuestionInput{
		Text:    "Speed of light?",
		OptionA: "300 km/s",
		OptionB: "300000 km/s",
		OptionC: "3 km/s",
		OptionD: "30 km/s",
		Correct: "b",
	}
	if drafts[0] != want {
		t.Errorf("draft = %+v, want %+v", drafts[0], want)
	}
}

func TestDraftQuestionsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/v1", "key", "test-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.DraftQuestions(context.Background(), "physics", 1, nil)
	if err == nil || model.IsValidation(err) {
		t.Errorf("expected upstream error, got %v", err)
	}
}
