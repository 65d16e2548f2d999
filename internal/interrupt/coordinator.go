// Package interrupt implements the human-in-the-loop pause protocol.
//
// When a step function signals that it needs external input, the
// coordinator validates the interaction payload, persists a resumable
// checkpoint (best-effort), and emits a HumanInputRequest through the
// configured emitter. The coordinator holds no resumption state of its
// own: resuming is the caller re-submitting the task with the human's
// answer and the checkpoint reference attached.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/petrijr/agenda/pkg/api"
)

// fallbackPrompt is emitted when the payload carries neither a question
// nor a title.
const fallbackPrompt = "Your input is needed to continue this task."

// payloadFields is the fixed schema accepted in an interaction payload.
// Anything else at the top level is rejected; free-form data belongs in
// the metadata field.
var payloadFields = map[string]struct{}{
	"id":        {},
	"stage":     {},
	"title":     {},
	"question":  {},
	"choices":   {},
	"free_text": {},
	"metadata":  {},
}

// PersistFunc persists a checkpoint keyed by (session id, exchange id).
// Persistence is best-effort: a failure is logged by the coordinator and
// does not abort the interrupt.
type PersistFunc func(ctx context.Context, sessionID, exchangeID string, checkpoint map[string]any) error

// EmitFunc delivers the pause signal to whatever transport carries it to
// the human (HTTP stream, message queue, …).
type EmitFunc func(ctx context.Context, req api.HumanInputRequest) error

// Config describes how to construct a Coordinator.
type Config struct {
	// Emit is required.
	Emit EmitFunc

	// Persist is optional; nil disables checkpoint persistence.
	Persist PersistFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Coordinator validates and emits human-input requests.
type Coordinator struct {
	emit    EmitFunc
	persist PersistFunc
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator from cfg. It panics if cfg.Emit
// is nil, mirroring how a nil step function is a programming error, not
// a runtime condition.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Emit == nil {
		panic("interrupt: Config.Emit must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		emit:    cfg.Emit,
		persist: cfg.Persist,
		logger:  logger.With(slog.String("component", "interrupt")),
	}
}

// ValidationError describes a malformed interaction payload. This is the
// only place malformed human-interaction requests are caught.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid interaction payload: field %q %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a payload validation error.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Handle validates payload, persists checkpoint best-effort, and emits
// exactly one HumanInputRequest. A validation error aborts the pause
// attempt before anything is persisted or emitted.
func (c *Coordinator) Handle(ctx context.Context, sessionID, exchangeID string, payload, checkpoint map[string]any) error {
	p, err := validatePayload(payload)
	if err != nil {
		return err
	}

	if c.persist != nil && checkpoint != nil {
		if perr := c.persist(ctx, sessionID, exchangeID, checkpoint); perr != nil {
			// Losing the checkpoint only degrades resumability; it must
			// not lose the user-visible question.
			c.logger.WarnContext(ctx, "checkpoint_persist_failed",
				slog.String("session_id", sessionID),
				slog.String("exchange_id", exchangeID),
				slog.Any("error", perr),
			)
		}
	}

	cpID := checkpointID(checkpoint)

	req := api.HumanInputRequest{
		InteractionID: interactionID(p.ID, cpID, exchangeID),
		Prompt:        prompt(p),
		InputSchema:   inputSchema(p),
		Extras: map[string]any{
			"session_id":    sessionID,
			"exchange_id":   exchangeID,
			"checkpoint_id": cpID,
			"payload":       payload,
		},
	}

	if err := c.emit(ctx, req); err != nil {
		return fmt.Errorf("emit human input request: %w", err)
	}

	c.logger.InfoContext(ctx, "human_input_requested",
		slog.String("session_id", sessionID),
		slog.String("exchange_id", exchangeID),
		slog.String("interaction_id", req.InteractionID),
	)
	return nil
}

// validated is the typed form of an interaction payload.
type validated struct {
	ID       string
	Stage    string
	Title    string
	Question string
	Choices  []string
	FreeText bool
	Metadata map[string]any
}

func validatePayload(payload map[string]any) (validated, error) {
	var p validated
	if len(payload) == 0 {
		return p, &ValidationError{Field: "payload", Reason: "is empty"}
	}

	for key := range payload {
		if _, ok := payloadFields[key]; !ok {
			return p, &ValidationError{Field: key, Reason: "is not part of the interaction schema"}
		}
	}

	var err error
	if p.ID, err = stringField(payload, "id"); err != nil {
		return p, err
	}
	if p.Stage, err = stringField(payload, "stage"); err != nil {
		return p, err
	}
	if p.Title, err = stringField(payload, "title"); err != nil {
		return p, err
	}
	if p.Question, err = stringField(payload, "question"); err != nil {
		return p, err
	}

	if raw, ok := payload["choices"]; ok {
		items, ok := raw.([]any)
		if !ok {
			if typed, isTyped := raw.([]string); isTyped {
				p.Choices = typed
			} else {
				return p, &ValidationError{Field: "choices", Reason: "must be a list"}
			}
		} else {
			for _, item := range items {
				label, ok := choiceLabel(item)
				if !ok {
					return p, &ValidationError{Field: "choices", Reason: "must contain strings or labeled objects"}
				}
				p.Choices = append(p.Choices, label)
			}
		}
	}

	if raw, ok := payload["free_text"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return p, &ValidationError{Field: "free_text", Reason: "must be a boolean"}
		}
		p.FreeText = b
	}

	if raw, ok := payload["metadata"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return p, &ValidationError{Field: "metadata", Reason: "must be an object"}
		}
		p.Metadata = m
	}

	return p, nil
}

func stringField(payload map[string]any, key string) (string, error) {
	raw, ok := payload[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Field: key, Reason: "must be a string"}
	}
	return s, nil
}

func choiceLabel(item any) (string, bool) {
	switch v := item.(type) {
	case string:
		return v, v != ""
	case map[string]any:
		label, ok := v["label"].(string)
		return label, ok && label != ""
	default:
		return "", false
	}
}

// interactionID resolves the stable id echoed back with the human's
// answer: explicit payload id, else checkpoint-embedded id, else the
// exchange id.
func interactionID(payloadID, checkpointID, exchangeID string) string {
	if payloadID != "" {
		return payloadID
	}
	if checkpointID != "" {
		return checkpointID
	}
	return exchangeID
}

func checkpointID(checkpoint map[string]any) string {
	if checkpoint == nil {
		return ""
	}
	id, _ := checkpoint["checkpoint_id"].(string)
	return id
}

func prompt(p validated) string {
	if p.Question != "" {
		return p.Question
	}
	if p.Title != "" {
		return p.Title
	}
	return fallbackPrompt
}

// inputSchema normalizes the answer schema, stripping empty fields.
func inputSchema(p validated) map[string]any {
	schema := make(map[string]any)
	if p.Stage != "" {
		schema["stage"] = p.Stage
	}
	if len(p.Choices) > 0 {
		schema["choices"] = p.Choices
	}
	if p.FreeText {
		schema["free_text"] = true
	}
	if len(p.Metadata) > 0 {
		schema["metadata"] = p.Metadata
	}
	return schema
}
