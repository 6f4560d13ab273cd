package piper

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/hopper/core/texttospeech/piper"

var tracer = otel.Tracer(scopeName)
