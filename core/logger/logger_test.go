package logger

import (
	"testing"

	"log/slog"
)

func TestComponentLoggersUsableBeforeInit(t *testing.T) {
	components := map[string]*slog.Logger{
		"L":           L,
		"DB":          DB,
		"TG":          TG,
		"MIG":         MIG,
		"TWire":       TWire,
		"GW":          GW,
		"FLOW":        FLOW,
		"SVCSessions": SVCSessions,
		"SVCFiles":    SVCFiles,
		"SVCNotify":   SVCNotify,
	}
	for name, logg := range components {
		if logg == nil {
			t.Fatalf("component logger %s is nil before InitLogger", name)
		}
	}

	// Logging through a component logger must work without InitLogger.
	FLOW.LogAttrs(Background(), slog.LevelInfo, "flow.start",
		slog.String("status", "ok"),
	)
}
