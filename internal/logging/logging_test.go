package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

type capturingHandler struct {
	level   slog.Level
	records *[]slog.Record
	attrs   []slog.Attr
}

func (h *capturingHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *capturingHandler) Handle(_ context.Context, record slog.Record) error {
	record.AddAttrs(h.attrs...)
	*h.records = append(*h.records, record)
	return nil
}

func (h *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &capturingHandler{level: h.level, records: h.records, attrs: append(h.attrs, attrs...)}
}

func (h *capturingHandler) WithGroup(string) slog.Handler { return h }

func TestFanoutRespectsEachHandlerLevel(t *testing.T) {
	var debugRecords, infoRecords []slog.Record
	logger := slog.New(Fanout(
		&capturingHandler{level: slog.LevelDebug, records: &debugRecords},
		&capturingHandler{level: slog.LevelInfo, records: &infoRecords},
	))

	logger.Debug("state changed")
	logger.Info("heard")

	if len(debugRecords) != 2 {
		t.Fatalf("expected both records at debug level, got %d", len(debugRecords))
	}
	if len(infoRecords) != 1 || infoRecords[0].Message != "heard" {
		t.Fatalf("expected only the info record, got %d", len(infoRecords))
	}
}

func TestFanoutWithAttrsReachesEveryHandler(t *testing.T) {
	var first, second []slog.Record
	logger := slog.New(Fanout(
		&capturingHandler{records: &first},
		&capturingHandler{records: &second},
	)).With("turn_id", "abc")

	logger.Info("turn finished")

	for _, records := range [][]slog.Record{first, second} {
		found := false
		records[0].Attrs(func(attr slog.Attr) bool {
			found = found || attr.Key == "turn_id"
			return true
		})
		if !found {
			t.Fatalf("expected turn_id attribute on every handler")
		}
	}
}

func TestNewWritesTextAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	logger.Debug("hidden")
	logger.Info("wake phrase detected", "text", "hey hopper")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug record to be dropped, got %q", out)
	}
	if !strings.Contains(out, `msg="wake phrase detected" text="hey hopper"`) {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	New(&buf, true).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug record with debug enabled, got %q", buf.String())
	}
}
