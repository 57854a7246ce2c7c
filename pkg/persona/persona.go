// Package persona defines the characters a learner can talk to.
package persona

import (
	"sort"
	"strings"
)

// Persona is a character: how it is prompted and which voice speaks for it.
// An empty VoiceID means replies are spoken by the fallback voice and no
// audio is stored.
type Persona struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	VoiceID string `json:"voice_id,omitempty"`
	Prompt  string `json:"-"`
}

// DefaultID is used for prompting when an unknown persona is requested.
const DefaultID = "spongebob"

var builtins = []Persona{
	{
		ID:      "spongebob",
		Name:    "spongebob",
		VoiceID: "l5rFONx2gxJPREYQyyjp",
		Prompt:  "You are SpongeBob SquarePants explaining things! Keep answers under 50 words. Focus 90% on educational facts and interesting details. Add just a touch of enthusiasm and one brief ocean reference if relevant.",
	},
	{
		ID:      "peter",
		Name:    "peter griffin",
		VoiceID: "AyUKqLr5dode9vNoRaPk",
		Prompt:  "You are Peter Griffin explaining things! Keep answers under 50 words. Focus 90% on educational facts and real-world examples. Keep it casual but informative.",
	},
	{
		ID:      "dora",
		Name:    "dora the explorer",
		VoiceID: "y3js7EbIVnE22jVvnCQM",
		Prompt:  `You are Dora the Explorer explaining things! Keep answers under 50 words. Focus 90% on educational content. Add brief encouraging phrases like "Great question!" sparingly.`,
	},
}

// Registry is an immutable set of personas.
type Registry struct {
	byID map[string]Persona
}

// Default returns the built-in personas.
func Default() *Registry {
	return New(builtins...)
}

func New(personas ...Persona) *Registry {
	r := &Registry{byID: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		r.byID[normalize(p.ID)] = p
	}
	return r
}

// WithVoices returns a copy with voice ids replaced. An empty value clears a
// persona's voice. Unknown ids are ignored.
func (r *Registry) WithVoices(voices map[string]string) *Registry {
	out := &Registry{byID: make(map[string]Persona, len(r.byID))}
	for id, p := range r.byID {
		if v, ok := voices[id]; ok {
			p.VoiceID = strings.TrimSpace(v)
		}
		out.byID[id] = p
	}
	return out
}

// Lookup finds a persona by id, case-insensitively.
func (r *Registry) Lookup(id string) (Persona, bool) {
	p, ok := r.byID[normalize(id)]
	return p, ok
}

// Resolve is Lookup with a fallback to DefaultID. The returned persona keeps
// the requested id so the conversation records what the user picked.
func (r *Registry) Resolve(id string) Persona {
	if p, ok := r.Lookup(id); ok {
		return p
	}
	p := r.byID[DefaultID]
	if strings.TrimSpace(id) != "" {
		p.ID = normalize(id)
		p.Name = normalize(id)
		p.VoiceID = ""
	}
	return p
}

// All returns the personas sorted by id.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
