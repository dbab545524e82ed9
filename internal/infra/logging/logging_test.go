package logging

import (
	"testing"

	"github.com/rs/zerolog"

	"interview-orchestrator/internal/config"
)

func TestNewParsesConfiguredLevel(t *testing.T) {
	New(config.LogConfig{Level: "debug", Format: "json"}, false)
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Fatalf("global level = %s, want debug", got)
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	New(config.LogConfig{Level: "verbose", Format: "json"}, false)
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Fatalf("global level = %s, want info fallback", got)
	}
}
