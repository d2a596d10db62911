// Suggestion builders: prompt construction and response shaping for the
// meal, workout, and progress-insight endpoints. Models are asked for JSON
// arrays; when they ramble anyway, the raw text is wrapped in a one-element
// fallback array so clients always get a predictable shape.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	systemNutritionist = "You are a professional nutritionist. Respond only with valid JSON."
	systemTrainer      = "You are a certified personal trainer. Respond only with valid JSON."
	systemCoach        = "You are a supportive fitness coach."

	insightsFallback = "Unable to generate insights right now."
)

// Suggester turns domain parameters into prompts and provider output into
// API-shaped payloads.
type Suggester struct {
	Gen       TextGenerator
	MaxTokens int
}

// SuggestMeals returns a JSON array of meal ideas for the given goals.
func (s *Suggester) SuggestMeals(ctx context.Context, goals, restrictions string, calories int) (json.RawMessage, error) {
	if restrictions == "" {
		restrictions = "None"
	}
	cal := "Not specified"
	if calories > 0 {
		cal = fmt.Sprintf("%d", calories)
	}
	prompt := fmt.Sprintf(`As a nutritionist, create 3 healthy meal ideas for:

Goals: %s
Dietary Restrictions: %s
Target Calories: %s

For each meal, provide:
1. Meal name
2. Main ingredients
3. Estimated calories
4. Protein, carbs, fat (grams)

Format as JSON array.`, goals, restrictions, cal)

	text, err := s.Gen.Generate(ctx, systemNutritionist, prompt, s.MaxTokens)
	if err != nil {
		return nil, err
	}
	if arr, ok := ExtractJSONArray(text); ok {
		return arr, nil
	}
	return fallbackArray("AI Suggestion", text), nil
}

// SuggestWorkout returns a JSON array of exercises for the given parameters.
func (s *Suggester) SuggestWorkout(ctx context.Context, fitnessLevel, goals, equipment string, duration int) (json.RawMessage, error) {
	if equipment == "" {
		equipment = "Bodyweight only"
	}
	if duration <= 0 {
		duration = 30
	}
	prompt := fmt.Sprintf(`Create a %d minute workout for:

Fitness Level: %s
Goals: %s
Equipment: %s

Provide 5-7 exercises with sets and reps.
Format as JSON array with: name, sets, reps, rest_seconds.`, duration, fitnessLevel, goals, equipment)

	text, err := s.Gen.Generate(ctx, systemTrainer, prompt, s.MaxTokens)
	if err != nil {
		return nil, err
	}
	if arr, ok := ExtractJSONArray(text); ok {
		return arr, nil
	}
	return fallbackArray("AI Workout", text), nil
}

// ProgressInsights returns free-form coaching text for a measurement series.
func (s *Suggester) ProgressInsights(ctx context.Context, measurements json.RawMessage, goals string) (string, error) {
	prompt := fmt.Sprintf(`Analyze this fitness progress:

Measurements: %s
Goals: %s

Provide:
1. Key achievements
2. Areas for improvement
3. Motivational message
4. Next steps

Be concise and encouraging.`, string(measurements), goals)

	text, err := s.Gen.Generate(ctx, systemCoach, prompt, s.MaxTokens/2)
	if err != nil || strings.TrimSpace(text) == "" {
		return insightsFallback, err
	}
	return text, nil
}

// jsonArrayRE grabs the outermost bracketed block; models often wrap the
// array in prose or markdown fences.
var jsonArrayRE = regexp.MustCompile(`(?s)\[.*\]`)

// ExtractJSONArray finds and validates the first JSON array embedded in text.
func ExtractJSONArray(text string) (json.RawMessage, bool) {
	m := jsonArrayRE.FindString(text)
	if m == "" {
		return nil, false
	}
	var probe []json.RawMessage
	if err := json.Unmarshal([]byte(m), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(m), true
}

// fallbackArray wraps unparseable model output so the response shape holds.
func fallbackArray(name, raw string) json.RawMessage {
	out, _ := json.Marshal([]map[string]string{{
		"name":        name,
		"description": raw,
	}})
	return out
}
