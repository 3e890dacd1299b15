package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, nil))
	t.Cleanup(func() { Init(slog.LevelInfo, false) })
	return &buf
}

func TestWithContextCarriesIdentifiers(t *testing.T) {
	buf := captureOutput(t)

	ctx := ContextWithPickID(context.Background(), "pick-42")
	ctx = ContextWithStream(ctx, "GE.APE.--.BH")

	WithContext(ctx).Info("request registered")

	out := buf.String()
	if !strings.Contains(out, "pick_id=pick-42") {
		t.Errorf("output %q missing pick_id", out)
	}
	if !strings.Contains(out, "stream=GE.APE.--.BH") {
		t.Errorf("output %q missing stream", out)
	}
}

func TestWithContextPlainContext(t *testing.T) {
	buf := captureOutput(t)

	WithContext(context.Background()).Info("no identifiers")

	out := buf.String()
	if strings.Contains(out, "pick_id") || strings.Contains(out, "stream") {
		t.Errorf("unexpected identifiers in %q", out)
	}
}

func TestComponentAttribute(t *testing.T) {
	buf := captureOutput(t)

	Component("coordinator").Info("started")

	if !strings.Contains(buf.String(), "component=coordinator") {
		t.Errorf("output %q missing component", buf.String())
	}
}
