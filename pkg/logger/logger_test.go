package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestNewWritesServiceField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Config{Service: "svc"})
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["service"] != "svc" {
		t.Fatalf("service = %v, want svc", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("message = %v, want hello", entry["message"])
	}
}

func TestNewDebugLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Config{})
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug line to be filtered, got %q", buf.String())
	}

	debugLogger := New(&buf, Config{Debug: true})
	if debugLogger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %v, want debug", debugLogger.GetLevel())
	}
}

func TestWithConversationAddsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := New(&buf, Config{})
	ctx := WithConversation(base.WithContext(context.Background()), "chat_history_u1", "turn-1")
	log.Ctx(ctx).Info().Msg("turn")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["conversation_id"] != "chat_history_u1" || entry["turn_id"] != "turn-1" {
		t.Fatalf("unexpected fields: %#v", entry)
	}
}
