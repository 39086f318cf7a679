package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/session"
)

// Intent is a detected booking intent with model confidence.
type Intent struct {
	Action     session.BookingAction `json:"action"`
	Confidence float64               `json:"confidence"`
}

const intentPrompt = `Classify the message below for appointment-booking intent.
Respond with JSON only: {"action": "create" | "update" | "cancel" | "none", "confidence": 0.0-1.0}
"create" means the user wants to book a new appointment, "update" means move
an existing one, "cancel" means cancel an existing one, "none" means anything
else (including plain questions about data).

Message: `

// detectIntent asks the model whether the utterance starts a booking flow.
// Inference errors propagate; malformed model output degrades to no intent.
func (o *Orchestrator) detectIntent(ctx context.Context, text string) (*Intent, error) {
	out, err := o.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:    intentPrompt + text,
		MaxTokens: 128,
	})
	if err != nil {
		return nil, err
	}

	var intent Intent
	if jerr := json.Unmarshal([]byte(stripFences(out)), &intent); jerr != nil {
		o.log.WithField("output", out).Warn("intent classification output unparsable, treating as no intent")
		return nil, nil
	}
	if !intent.Action.Valid() {
		return nil, nil
	}
	return &intent, nil
}

const extractPrompt = `Extract booking fields from the message below.
Respond with JSON only, using exactly these keys and omitting any the message
does not mention:
{"customer_name": "...", "customer_phone": "...", "date": "YYYY-MM-DD", "time": "HH:MM", "consultant": "..."}

Message: `

// extractFields pulls customer fields out of an utterance. Inference errors
// propagate; malformed output degrades to an empty patch.
func (o *Orchestrator) extractFields(ctx context.Context, text string) (session.Patch, error) {
	out, err := o.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:    extractPrompt + text,
		MaxTokens: 256,
	})
	if err != nil {
		return session.Patch{}, err
	}

	var patch session.Patch
	if jerr := json.Unmarshal([]byte(stripFences(out)), &patch); jerr != nil {
		o.log.WithField("output", out).Warn("field extraction output unparsable, ignoring")
		return session.Patch{}, nil
	}
	return patch, nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(out string) string {
	trimmed := strings.TrimSpace(out)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}
