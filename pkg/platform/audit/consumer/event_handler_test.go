package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unykorn/internal/platform/kafka/consumer"
	audit "unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/audit/store/postgres"
)

type recordingStore struct {
	ids    []uuid.UUID
	events []audit.Event
	err    error
}

func (s *recordingStore) AppendWithID(_ context.Context, id uuid.UUID, e audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	s.events = append(s.events, e)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(t *testing.T, topic, key string, p postgres.Payload) *consumer.Message {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &consumer.Message{Topic: topic, Key: []byte(key), Value: raw}
}

func TestEventHandler(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()
	payload := postgres.Payload{
		ID:         id.String(),
		Category:   string(audit.CategoryCompliance),
		Timestamp:  ts.Format(time.RFC3339Nano),
		Component:  "token",
		Subject:    "0x00000000000000000000000000000000000000aa",
		Action:     string(audit.EventTokensMinted),
		Amount:     "1000",
		Reference:  "wire-42",
		Attributes: map[string]string{"minter": "settlement"},
	}

	t.Run("materializes valid events", func(t *testing.T) {
		store := &recordingStore{}
		h := NewEventHandler(store, quietLogger(), true)

		require.NoError(t, h.Handle(context.Background(), message(t, "ledger.audit.compliance", id.String(), payload)))
		require.Len(t, store.events, 1)
		assert.Equal(t, id, store.ids[0])
		assert.Equal(t, ts, store.events[0].Timestamp)
		assert.Equal(t, "wire-42", store.events[0].Reference)
		assert.Equal(t, "settlement", store.events[0].Attributes["minter"])
	})

	t.Run("skips malformed keys and payloads", func(t *testing.T) {
		store := &recordingStore{}
		h := NewEventHandler(store, quietLogger(), true)

		assert.NoError(t, h.Handle(context.Background(), message(t, "x", "not-a-uuid", payload)))
		assert.NoError(t, h.Handle(context.Background(), &consumer.Message{Key: []byte(id.String()), Value: []byte("{")}))
		assert.Empty(t, store.events)
	})

	t.Run("strict handlers surface storage failures", func(t *testing.T) {
		store := &recordingStore{err: errors.New("db down")}
		strict := NewEventHandler(store, quietLogger(), true)
		lenient := NewEventHandler(store, quietLogger(), false)

		assert.Error(t, strict.Handle(context.Background(), message(t, "x", id.String(), payload)))
		assert.NoError(t, lenient.Handle(context.Background(), message(t, "x", id.String(), payload)))
	})
}

func TestRouter(t *testing.T) {
	var routed []string
	handler := func(name string) TopicHandler {
		return consumer.HandlerFunc(func(context.Context, *consumer.Message) error {
			routed = append(routed, name)
			return nil
		})
	}

	r := NewRouter(quietLogger(), nil)
	r.Register(audit.Topic("ledger.audit", audit.CategorySecurity), handler("security"))

	require.NoError(t, r.Handle(context.Background(), &consumer.Message{Topic: "ledger.audit.security"}))
	require.NoError(t, r.Handle(context.Background(), &consumer.Message{Topic: "unknown"}))
	assert.Equal(t, []string{"security"}, routed)
}
