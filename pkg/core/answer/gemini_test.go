package answer

import (
	"errors"
	"io"
	"iter"
	"testing"

	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func seqOf(items []*genai.GenerateContentResponse, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func TestGeminiStream_PullsText(t *testing.T) {
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{
		textResponse("Water "),
		textResponse(""),
		textResponse("is H2O."),
	}, nil))
	defer s.Close()

	var got []string
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, chunk)
	}
	if len(got) != 2 || got[0]+got[1] != "Water is H2O." {
		t.Fatalf("chunks = %#v", got)
	}
}

func TestGeminiStream_Error(t *testing.T) {
	boom := errors.New("quota")
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{textResponse("partial")}, boom))
	defer s.Close()

	if chunk, err := s.Next(); err != nil || chunk != "partial" {
		t.Fatalf("first Next() = %q, %v", chunk, err)
	}
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("second Next() error = %v", err)
	}
}

func TestGeminiRequest_MapsRolesAndSystem(t *testing.T) {
	contents, cfg := geminiRequest(Prompt{
		System:    "be brief",
		MaxTokens: 512,
		Messages: []Message{
			{Role: RoleUser, Text: "q"},
			{Role: RoleAssistant, Text: "a"},
			{Role: RoleUser, Text: "q2"},
		},
	})
	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d", len(contents))
	}
	if contents[1].Role != string(genai.RoleModel) || contents[2].Role != string(genai.RoleUser) {
		t.Fatalf("roles = %q, %q", contents[1].Role, contents[2].Role)
	}
	if cfg.MaxOutputTokens != 512 {
		t.Fatalf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("SystemInstruction = %#v", cfg.SystemInstruction)
	}
}
