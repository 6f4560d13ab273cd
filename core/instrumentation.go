package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/hopper/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	sttDuration, _ = meter.Float64Histogram("hopper.stt.duration",
		metric.WithDescription("Time spent listening for one utterance"),
		metric.WithUnit("s"))
	llmDuration, _ = meter.Float64Histogram("hopper.llm.duration",
		metric.WithDescription("Time from request to the end of the generated reply"),
		metric.WithUnit("s"))
	turnDuration, _ = meter.Float64Histogram("hopper.turn.duration",
		metric.WithDescription("Time from wake phrase to the end of playback"),
		metric.WithUnit("s"))
	synthesisFailures, _ = meter.Int64Counter("hopper.synthesis.failures",
		metric.WithDescription("Sentences skipped because synthesis failed"))
)
