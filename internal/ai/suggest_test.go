package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// stubGen returns a canned completion (or error) and records the prompts.
type stubGen struct {
	text    string
	err     error
	system  string
	prompt  string
	maxToks int
}

func (s *stubGen) Generate(_ context.Context, system, prompt string, maxTokens int) (string, error) {
	s.system = system
	s.prompt = prompt
	s.maxToks = maxTokens
	return s.text, s.err
}

func TestExtractJSONArray(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare array", `[{"name":"Oats"}]`, `[{"name":"Oats"}]`, true},
		{"prose wrapped", "Here you go:\n```json\n[1,2,3]\n```\nEnjoy!", "[1,2,3]", true},
		{"no array", "I cannot help with that.", "", false},
		{"invalid json", "[{broken]", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSONArray(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && string(got) != tc.want {
				t.Errorf("array = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSuggestMealsParsesArray(t *testing.T) {
	gen := &stubGen{text: `Sure! [{"name":"Salmon bowl","calories":520}]`}
	s := &Suggester{Gen: gen, MaxTokens: 256}

	out, err := s.SuggestMeals(context.Background(), "weight loss", "", 1800)
	if err != nil {
		t.Fatalf("SuggestMeals: %v", err)
	}
	var meals []map[string]any
	if err := json.Unmarshal(out, &meals); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(meals) != 1 || meals[0]["name"] != "Salmon bowl" {
		t.Errorf("meals = %v", meals)
	}

	if gen.system != systemNutritionist {
		t.Errorf("system prompt = %q", gen.system)
	}
	if !strings.Contains(gen.prompt, "weight loss") || !strings.Contains(gen.prompt, "1800") {
		t.Errorf("prompt missing inputs: %q", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "Dietary Restrictions: None") {
		t.Errorf("empty restrictions should read as None: %q", gen.prompt)
	}
}

func TestSuggestMealsFallbackShape(t *testing.T) {
	gen := &stubGen{text: "Eat more vegetables and lean protein."}
	s := &Suggester{Gen: gen, MaxTokens: 256}

	out, err := s.SuggestMeals(context.Background(), "bulk", "vegan", 0)
	if err != nil {
		t.Fatalf("SuggestMeals: %v", err)
	}
	var meals []map[string]string
	if err := json.Unmarshal(out, &meals); err != nil {
		t.Fatalf("fallback is not a JSON array: %v", err)
	}
	if len(meals) != 1 || meals[0]["name"] != "AI Suggestion" {
		t.Errorf("fallback = %v", meals)
	}
	if meals[0]["description"] != gen.text {
		t.Errorf("fallback should carry the raw text")
	}
}

func TestSuggestWorkoutDefaults(t *testing.T) {
	gen := &stubGen{text: `[{"name":"Push-ups","sets":3,"reps":12}]`}
	s := &Suggester{Gen: gen, MaxTokens: 256}

	if _, err := s.SuggestWorkout(context.Background(), "beginner", "strength", "", 0); err != nil {
		t.Fatalf("SuggestWorkout: %v", err)
	}
	if !strings.Contains(gen.prompt, "30 minute") {
		t.Errorf("zero duration should default to 30: %q", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "Bodyweight only") {
		t.Errorf("empty equipment should default: %q", gen.prompt)
	}
	if gen.system != systemTrainer {
		t.Errorf("system prompt = %q", gen.system)
	}
}

func TestProgressInsights(t *testing.T) {
	gen := &stubGen{text: "Great progress on your squat volume."}
	s := &Suggester{Gen: gen, MaxTokens: 256}

	got, err := s.ProgressInsights(context.Background(), json.RawMessage(`[{"weight":80}]`), "cut")
	if err != nil {
		t.Fatalf("ProgressInsights: %v", err)
	}
	if got != gen.text {
		t.Errorf("insights = %q", got)
	}
	if gen.maxToks != 128 {
		t.Errorf("maxTokens = %d, want half of 256", gen.maxToks)
	}
}

func TestProgressInsightsFallback(t *testing.T) {
	gen := &stubGen{err: errors.New("provider down")}
	s := &Suggester{Gen: gen, MaxTokens: 256}

	got, err := s.ProgressInsights(context.Background(), json.RawMessage(`[]`), "")
	if err == nil {
		t.Fatal("expected the provider error to surface")
	}
	if got != insightsFallback {
		t.Errorf("insights = %q, want canned fallback", got)
	}
}

func TestClientDisabledWithoutProviders(t *testing.T) {
	c := &Client{}
	if c.Enabled() {
		t.Error("zero-provider client reports enabled")
	}
	if _, err := c.Generate(context.Background(), "s", "p", 100); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}
