package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(info, debug))
	logger.Debug("decision")
	logger.Info("summary")

	if strings.Contains(infoBuf.String(), "decision") {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "summary") {
		t.Fatalf("info handler missed info record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "decision") || !strings.Contains(debugBuf.String(), "summary") {
		t.Fatalf("debug handler missed records: %s", debugBuf.String())
	}
	if !newFanoutHandler(info, debug).Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts the level")
	}
}

func TestFanoutHandlerWithAttrsPropagates(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))
	slog.New(h).With(FieldRunID, "run-1").Info("hello")

	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, `"run_id":"run-1"`) {
			t.Fatalf("expected run_id attr in %s", out)
		}
	}
}

func TestTeeNilBase(t *testing.T) {
	var buf bytes.Buffer
	Tee(nil, slog.NewJSONHandler(&buf, nil)).Info("captured")
	if !strings.Contains(buf.String(), "captured") {
		t.Fatalf("expected tee output, got %q", buf.String())
	}
}
