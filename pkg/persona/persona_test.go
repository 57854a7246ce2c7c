package persona

import (
	"strings"
	"testing"
)

func TestDefault_BuiltinVoices(t *testing.T) {
	r := Default()
	tests := []struct {
		id    string
		voice string
	}{
		{"spongebob", "l5rFONx2gxJPREYQyyjp"},
		{"peter", "AyUKqLr5dode9vNoRaPk"},
		{"dora", "y3js7EbIVnE22jVvnCQM"},
	}
	for _, tc := range tests {
		p, ok := r.Lookup(tc.id)
		if !ok {
			t.Fatalf("Lookup(%q) not found", tc.id)
		}
		if p.VoiceID != tc.voice {
			t.Fatalf("%s voice = %q, want %q", tc.id, p.VoiceID, tc.voice)
		}
		if !strings.Contains(p.Prompt, "under 50 words") {
			t.Fatalf("%s prompt does not bound the answer length", tc.id)
		}
	}
}

func TestResolve_UnknownFallsBackToDefaultPrompt(t *testing.T) {
	r := Default()
	p := r.Resolve("Edna")
	sponge, _ := r.Lookup(DefaultID)

	if p.Prompt != sponge.Prompt {
		t.Fatal("unknown persona did not use the default prompt")
	}
	if p.ID != "edna" {
		t.Fatalf("ID = %q, want edna", p.ID)
	}
	if p.VoiceID != "" {
		t.Fatalf("VoiceID = %q, want empty for unknown persona", p.VoiceID)
	}
	if got := r.Resolve("").ID; got != DefaultID {
		t.Fatalf("Resolve(\"\").ID = %q, want %q", got, DefaultID)
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	if _, ok := Default().Lookup("  DORA "); !ok {
		t.Fatal("Lookup is case sensitive")
	}
}

func TestWithVoices_OverridesAndClears(t *testing.T) {
	base := Default()
	r := base.WithVoices(map[string]string{"peter": "custom", "dora": "", "nobody": "x"})

	if p, _ := r.Lookup("peter"); p.VoiceID != "custom" {
		t.Fatalf("peter voice = %q, want custom", p.VoiceID)
	}
	if p, _ := r.Lookup("dora"); p.VoiceID != "" {
		t.Fatalf("dora voice = %q, want cleared", p.VoiceID)
	}
	if _, ok := r.Lookup("nobody"); ok {
		t.Fatal("unknown override created a persona")
	}
	if p, _ := base.Lookup("peter"); p.VoiceID != "AyUKqLr5dode9vNoRaPk" {
		t.Fatal("WithVoices mutated the source registry")
	}
	if n := len(r.All()); n != 3 {
		t.Fatalf("len(All()) = %d, want 3", n)
	}
}
