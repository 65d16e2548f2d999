package interrupt

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/agenda/pkg/api"
)

// captureEmitter records emitted requests for assertions.
type captureEmitter struct {
	requests []api.HumanInputRequest
	err      error
}

func (e *captureEmitter) emit(ctx context.Context, req api.HumanInputRequest) error {
	if e.err != nil {
		return e.err
	}
	e.requests = append(e.requests, req)
	return nil
}

func newTestCoordinator(t *testing.T, emitter *captureEmitter, persist PersistFunc) *Coordinator {
	t.Helper()
	return NewCoordinator(Config{
		Emit:    emitter.emit,
		Persist: persist,
		Logger:  slog.Default(),
	})
}

func validPayload() map[string]any {
	return map[string]any{
		"stage":     "review",
		"title":     "Review draft",
		"question":  "Is this draft ready to send?",
		"choices":   []any{"yes", "no"},
		"free_text": true,
	}
}

func TestHandle_EmitsExactlyOneRequest(t *testing.T) {
	emitter := &captureEmitter{}
	c := newTestCoordinator(t, emitter, nil)

	err := c.Handle(context.Background(), "sess-1", "ex-1", validPayload(), nil)
	require.NoError(t, err)
	require.Len(t, emitter.requests, 1)

	req := emitter.requests[0]
	assert.Equal(t, "Is this draft ready to send?", req.Prompt)
	assert.Equal(t, "ex-1", req.InteractionID)
	assert.Equal(t, []string{"yes", "no"}, req.InputSchema["choices"])
	assert.Equal(t, true, req.InputSchema["free_text"])
	assert.Equal(t, "review", req.InputSchema["stage"])
	assert.Equal(t, "sess-1", req.Extras["session_id"])
	assert.Equal(t, "ex-1", req.Extras["exchange_id"])
}

func TestHandle_InteractionIDPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		payload    map[string]any
		checkpoint map[string]any
		want       string
	}{
		{
			name:    "explicit payload id wins",
			payload: map[string]any{"question": "q", "id": "from-payload"},
			checkpoint: map[string]any{
				"checkpoint_id": "from-checkpoint",
			},
			want: "from-payload",
		},
		{
			name:    "checkpoint id next",
			payload: map[string]any{"question": "q"},
			checkpoint: map[string]any{
				"checkpoint_id": "from-checkpoint",
			},
			want: "from-checkpoint",
		},
		{
			name:    "exchange id as fallback",
			payload: map[string]any{"question": "q"},
			want:    "ex-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &captureEmitter{}
			c := newTestCoordinator(t, emitter, nil)

			err := c.Handle(context.Background(), "sess-1", "ex-9", tt.payload, tt.checkpoint)
			require.NoError(t, err)
			require.Len(t, emitter.requests, 1)
			assert.Equal(t, tt.want, emitter.requests[0].InteractionID)
		})
	}
}

func TestHandle_InteractionIDDeterministic(t *testing.T) {
	emitter := &captureEmitter{}
	c := newTestCoordinator(t, emitter, nil)

	checkpoint := map[string]any{"checkpoint_id": "cp-42"}
	for i := 0; i < 2; i++ {
		err := c.Handle(context.Background(), "sess-1", "ex-1", validPayload(), checkpoint)
		require.NoError(t, err)
	}

	require.Len(t, emitter.requests, 2)
	assert.Equal(t, emitter.requests[0].InteractionID, emitter.requests[1].InteractionID)
	assert.Equal(t, "cp-42", emitter.requests[0].InteractionID)
}

func TestHandle_PromptPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"question wins", map[string]any{"question": "The question?", "title": "The title"}, "The question?"},
		{"title next", map[string]any{"title": "The title"}, "The title"},
		{"generic fallback", map[string]any{"stage": "review"}, fallbackPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &captureEmitter{}
			c := newTestCoordinator(t, emitter, nil)

			err := c.Handle(context.Background(), "sess-1", "ex-1", tt.payload, nil)
			require.NoError(t, err)
			require.Len(t, emitter.requests, 1)
			assert.Equal(t, tt.want, emitter.requests[0].Prompt)
		})
	}
}

func TestHandle_RejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"empty payload", nil},
		{"unknown top-level key", map[string]any{"question": "q", "surprise": 1}},
		{"question not a string", map[string]any{"question": 7}},
		{"title not a string", map[string]any{"title": []any{}}},
		{"choices not a list", map[string]any{"question": "q", "choices": "yes"}},
		{"choice without label", map[string]any{"question": "q", "choices": []any{map[string]any{"value": 1}}}},
		{"free_text not a bool", map[string]any{"question": "q", "free_text": "yes"}},
		{"metadata not an object", map[string]any{"question": "q", "metadata": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &captureEmitter{}
			persisted := 0
			c := newTestCoordinator(t, emitter, func(ctx context.Context, s, e string, cp map[string]any) error {
				persisted++
				return nil
			})

			err := c.Handle(context.Background(), "sess-1", "ex-1", tt.payload, map[string]any{"k": "v"})
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
			assert.Empty(t, emitter.requests, "nothing may be emitted for a rejected payload")
			assert.Zero(t, persisted, "nothing may be persisted for a rejected payload")
		})
	}
}

func TestHandle_PersistFailureDoesNotAbort(t *testing.T) {
	emitter := &captureEmitter{}
	c := newTestCoordinator(t, emitter, func(ctx context.Context, s, e string, cp map[string]any) error {
		return errors.New("disk on fire")
	})

	err := c.Handle(context.Background(), "sess-1", "ex-1", validPayload(), map[string]any{"k": "v"})
	require.NoError(t, err, "persist failure must not abort the interrupt")
	assert.Len(t, emitter.requests, 1)
}

func TestHandle_PersistReceivesCheckpoint(t *testing.T) {
	emitter := &captureEmitter{}
	var gotSession, gotExchange string
	var gotCheckpoint map[string]any
	c := newTestCoordinator(t, emitter, func(ctx context.Context, s, e string, cp map[string]any) error {
		gotSession, gotExchange, gotCheckpoint = s, e, cp
		return nil
	})

	checkpoint := map[string]any{"checkpoint_id": "cp-1", "turn": 3}
	err := c.Handle(context.Background(), "sess-1", "ex-1", validPayload(), checkpoint)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", gotSession)
	assert.Equal(t, "ex-1", gotExchange)
	assert.Equal(t, checkpoint, gotCheckpoint)
	assert.Equal(t, "cp-1", emitter.requests[0].Extras["checkpoint_id"])
}

func TestHandle_EmitFailurePropagates(t *testing.T) {
	emitter := &captureEmitter{err: errors.New("transport down")}
	c := newTestCoordinator(t, emitter, nil)

	err := c.Handle(context.Background(), "sess-1", "ex-1", validPayload(), nil)
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestHandle_SchemaStripsEmptyFields(t *testing.T) {
	emitter := &captureEmitter{}
	c := newTestCoordinator(t, emitter, nil)

	err := c.Handle(context.Background(), "sess-1", "ex-1", map[string]any{"question": "q"}, nil)
	require.NoError(t, err)
	require.Len(t, emitter.requests, 1)

	schema := emitter.requests[0].InputSchema
	assert.NotContains(t, schema, "choices")
	assert.NotContains(t, schema, "free_text")
	assert.NotContains(t, schema, "stage")
	assert.NotContains(t, schema, "metadata")
}
