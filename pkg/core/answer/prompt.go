package answer

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role
	Text string
}

// Prompt is backend-neutral.
type Prompt struct {
	System    string
	Messages  []Message
	MaxTokens int
}

const metadataInstruction = `Also, after answering, provide:
1. A concise concept label (2-4 words) in format: <concept: LABEL>
2. A one-sentence summary (10-15 words) in format: <summary: SUMMARY>`

const noWebContext = "No web context available."

// BuildPrompt lays out prior exchanges as alternating user/assistant
// messages followed by the new question with its web context.
func BuildPrompt(req Request, webContext string, maxTokens int) Prompt {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	msgs := make([]Message, 0, 2*len(req.History)+1)
	for _, ex := range req.History {
		msgs = append(msgs,
			Message{Role: RoleUser, Text: ex.Question},
			Message{Role: RoleAssistant, Text: ex.Answer},
		)
	}
	msgs = append(msgs, Message{
		Role: RoleUser,
		Text: fmt.Sprintf(
			"Question: %s\n\nWeb Context:\n%s\n\nPlease answer the question using the web context provided, in your character's voice. Keep answers under 50 words.",
			strings.TrimSpace(req.Question), webContext,
		),
	})
	return Prompt{
		System:    req.Persona.Prompt + "\n" + metadataInstruction,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
}
