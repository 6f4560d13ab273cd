package deepgram

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/koscakluka/hopper/core/audio"
)

// sampleRates are the linear16 rates the listen endpoint accepts.
var sampleRates = []int{8000, 16000, 24000, 32000, 48000}

// streamEncoding describes the mono linear16 frames sent to the listen
// endpoint.
type streamEncoding struct {
	sampleRate int
}

func newStreamEncoding(info audio.EncodingInfo) (streamEncoding, error) {
	if info.Format != audio.EncodingLinear16 {
		return streamEncoding{}, fmt.Errorf("unsupported frame format %q, capture must be linear16", info.Format.Name())
	}
	if !slices.Contains(sampleRates, info.SampleRate) {
		return streamEncoding{}, fmt.Errorf("unsupported sample rate %d, expected one of %v", info.SampleRate, sampleRates)
	}
	return streamEncoding{sampleRate: info.SampleRate}, nil
}

func (e streamEncoding) setQuery(query url.Values) {
	query.Set("encoding", audio.EncodingLinear16.Name())
	query.Set("sample_rate", strconv.Itoa(e.sampleRate))
	query.Set("channels", "1")
}
