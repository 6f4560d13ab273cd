package deepgram

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/hopper/core/texttospeech/deepgram"

var tracer = otel.Tracer(scopeName)
