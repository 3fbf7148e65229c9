package gemini

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"tottales/internal/services"
)

func TestDecodeModelJSONDirect(t *testing.T) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := DecodeModelJSON(`{"title":"The Brave Explorer"}`, &payload); err != nil {
		t.Fatalf("DecodeModelJSON returned error: %v", err)
	}
	if payload.Title != "The Brave Explorer" {
		t.Fatalf("unexpected title %q", payload.Title)
	}
}

func TestDecodeModelJSONStripsCodeFence(t *testing.T) {
	content := "```json\n{\"title\":\"Luna's Garden\"}\n```"
	var payload struct {
		Title string `json:"title"`
	}
	if err := DecodeModelJSON(content, &payload); err != nil {
		t.Fatalf("DecodeModelJSON returned error: %v", err)
	}
	if payload.Title != "Luna's Garden" {
		t.Fatalf("unexpected title %q", payload.Title)
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	content := "Here is the story you asked for:\n{\"pages\":[{\"page_number\":1}]}\nHope you enjoy it!"
	var payload struct {
		Pages []struct {
			PageNumber int `json:"page_number"`
		} `json:"pages"`
	}
	if err := DecodeModelJSON(content, &payload); err != nil {
		t.Fatalf("DecodeModelJSON returned error: %v", err)
	}
	if len(payload.Pages) != 1 || payload.Pages[0].PageNumber != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDecodeModelJSONEmptyPayload(t *testing.T) {
	var payload map[string]any
	if err := DecodeModelJSON("   ", &payload); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestDecodeModelJSONMalformedIncludesSnippet(t *testing.T) {
	var payload map[string]any
	err := DecodeModelJSON("not json at all", &payload)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), "not json at all") {
		t.Fatalf("error should carry payload snippet, got %v", err)
	}
}

func TestExtractTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Once upon a time"},
				{Text: ", there was a fox."},
			}},
		}},
	}
	text, err := ExtractText(resp)
	if err != nil {
		t.Fatalf("ExtractText returned error: %v", err)
	}
	if text != "Once upon a time, there was a fox." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextEmptyResponse(t *testing.T) {
	_, err := ExtractText(&genai.GenerateContentResponse{})
	if !errors.Is(err, services.ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", err)
	}
}

func TestExtractImageReturnsInlineData(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your illustration"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{0x89, 0x50}}},
			}},
		}},
	}
	result, err := ExtractImage(resp)
	if err != nil {
		t.Fatalf("ExtractImage returned error: %v", err)
	}
	if result.MIMEType != "image/png" || len(result.Data) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestExtractImageNoInlineData(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}},
		}},
	}
	_, err := ExtractImage(resp)
	if !errors.Is(err, services.ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", err)
	}
}

func TestBlockedBySafetyPromptFeedback(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason: genai.BlockedReasonSafety,
		},
	}
	blocked, reason := BlockedBySafety(resp)
	if !blocked {
		t.Fatal("expected prompt feedback block to be detected")
	}
	if reason == "" {
		t.Fatal("expected a block reason")
	}
}

func TestBlockedBySafetyFinishReason(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	if blocked, _ := BlockedBySafety(resp); !blocked {
		t.Fatal("expected candidate safety stop to be detected")
	}
}

func TestBlockedBySafetyCleanResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "fine"}}},
		}},
	}
	if blocked, _ := BlockedBySafety(resp); blocked {
		t.Fatal("clean response flagged as blocked")
	}
}

func TestClassifyCallErrorSafety(t *testing.T) {
	err := classifyCallError(errors.New("PROHIBITED_CONTENT: request blocked by safety filters"))
	if !errors.Is(err, services.ErrSafetyBlocked) {
		t.Fatalf("expected ErrSafetyBlocked, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("safety block must not be retryable")
	}
}

func TestClassifyCallErrorTimeout(t *testing.T) {
	err := classifyCallError(errors.New("rpc failed: context deadline exceeded"))
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("timeout should be retryable")
	}
}

func TestClassifyCallErrorGeneric(t *testing.T) {
	err := classifyCallError(errors.New("500 internal error"))
	if !errors.Is(err, services.ErrExternalModel) {
		t.Fatalf("expected ErrExternalModel, got %v", err)
	}
}
