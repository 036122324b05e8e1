// Package speaker implements the Next-Speaker Oracle (spec.md §4.G):
// deterministic pre-rules followed, when inconclusive, by a structured
// JSON classification request through the same ContentGenerator used
// for the turn itself.
//
// Grounded on the teacher's internal/multiagent capability-routing
// classifiers (structured-JSON request/response over a ContentGenerator
// call) and internal/agent/loop.go's continuation check, re-targeted at
// the spec's three deterministic pre-rules plus its exact
// {reasoning, next_speaker} response schema.
package speaker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/pkg/content"
)

// Speaker is the oracle's verdict: whether the model should continue
// autonomously (Model) or control should return to the user (User).
type Speaker string

const (
	SpeakerModel   Speaker = "model"
	SpeakerUser    Speaker = "user"
	SpeakerUnknown Speaker = "unknown"
)

const classificationPrompt = `Based on the conversation so far, determine who should speak next.
Rules, in order:
1. If you (the model) just asked the user a question or are waiting for
   information only the user can provide, next_speaker is "user".
2. If you stated an intention to continue working (e.g. "next I will...",
   "let me now...") without yet doing so, next_speaker is "model".
3. Otherwise, if your last turn completed the requested work, next_speaker
   is "user".
Respond with a single JSON object: {"reasoning": string, "next_speaker": "user" | "model"}`

type classification struct {
	Reasoning   string `json:"reasoning"`
	NextSpeaker string `json:"next_speaker"`
}

// Decide determines the next speaker for curated, the curated history
// at the top of a turn. gen and model are used only when the
// deterministic pre-rules are inconclusive.
func Decide(ctx context.Context, gen providers.ContentGenerator, model string, curated []content.Content, logger *slog.Logger) (Speaker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(curated) == 0 {
		return SpeakerUser, nil
	}

	last := curated[len(curated)-1]

	// Pre-rule 1: the last comprehensive turn is a user turn whose
	// parts are all functionResponse (i.e. the user turn was really
	// just tool results being fed back) -> model continues.
	if last.Role == content.RoleUser && len(last.Parts) > 0 && content.AllFunctionResponse(last.Parts) {
		return SpeakerModel, nil
	}

	// Pre-rule 2: the last model turn has no parts -> model continues
	// (an empty model turn means generation was cut short or produced
	// nothing actionable; give it another chance rather than ending).
	if last.Role == content.RoleModel && len(last.Parts) == 0 {
		return SpeakerModel, nil
	}

	// Pre-rule 3: the last curated turn is not a model turn -> unknown,
	// which the orchestrator treats as user (end the turn).
	if last.Role != content.RoleModel {
		return SpeakerUnknown, nil
	}

	if gen == nil {
		return SpeakerUser, nil
	}

	req := providers.Request{
		Model:   model,
		History: append(append([]content.Content{}, curated...), content.Content{
			Role:  content.RoleUser,
			Parts: []content.Part{content.TextPart(classificationPrompt)},
		}),
	}
	resp, err := gen.GenerateContent(ctx, req)
	if err != nil {
		logger.Warn("speaker: classification call failed, treating as user", "error", err)
		return SpeakerUser, nil
	}

	var raw string
	for _, p := range resp.Parts {
		if p.Kind == content.KindText && p.Text != nil {
			raw += *p.Text
		}
	}

	var cls classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		logger.Warn("speaker: unparseable classification response, treating as user", "error", err)
		return SpeakerUser, nil
	}

	switch cls.NextSpeaker {
	case string(SpeakerModel):
		return SpeakerModel, nil
	case string(SpeakerUser):
		return SpeakerUser, nil
	default:
		logger.Warn("speaker: classification returned unrecognized next_speaker, treating as user", "value", cls.NextSpeaker)
		return SpeakerUser, nil
	}
}
