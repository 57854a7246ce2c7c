package store

// JSON bodies exchanged by the gateway's store endpoints and storeclient.

type CreateConversationBody struct {
	Persona string `json:"persona"`
	Title   string `json:"title,omitempty"`
}

type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

type TurnList struct {
	Turns []Turn `json:"turns"`
}

// AppendTurnBody is the HTTP form of AppendTurnRequest. Audio travels base64
// encoded; a missing MIME type is sniffed server side.
type AppendTurnBody struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Concept     string `json:"concept"`
	Summary     string `json:"summary"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}
