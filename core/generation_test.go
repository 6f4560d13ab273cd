package orchestration

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/koscakluka/hopper/core/conversations"
)

func texts(sentences []Sentence) []string {
	var out []string
	for _, sentence := range sentences {
		if !sentence.End {
			out = append(out, sentence.Text)
		}
	}
	return out
}

func terminators(sentences []Sentence) int {
	count := 0
	for _, sentence := range sentences {
		if sentence.End {
			count++
		}
	}
	return count
}

func TestRespondForwardsSentencesThenOneTerminator(t *testing.T) {
	backend := &testChatBackend{fragments: []string{"Why did the chicken cross the road? ", "To get to the other side."}}
	client := NewGenerationClient(backend, false, logger)
	history := conversations.NewHistory(20)
	sink := &sentenceRecorder{}
	turnID := uuid.New()

	reply, err := client.Respond(context.Background(), turnID, "tell me a joke", history, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Why did the chicken cross the road?", "To get to the other side."}
	if got := texts(sink.sentences); !slices.Equal(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := terminators(sink.sentences); got != 1 {
		t.Fatalf("expected exactly one terminator, got %d", got)
	}
	if last := sink.sentences[len(sink.sentences)-1]; !last.End {
		t.Fatalf("expected terminator last, got %+v", last)
	}
	for _, sentence := range sink.sentences {
		if sentence.TurnID != turnID {
			t.Fatalf("expected every item to carry the turn id, got %+v", sentence)
		}
	}

	if reply != "Why did the chicken cross the road? To get to the other side." {
		t.Fatalf("unexpected reply %q", reply)
	}
	snapshot := history.Snapshot()
	if len(snapshot) != 2 ||
		snapshot[0] != conversations.NewUserMessage("tell me a joke") ||
		snapshot[1] != conversations.NewAssistantMessage(reply) {
		t.Fatalf("unexpected history %+v", snapshot)
	}
}

func TestRespondSendsHistoryIncludingNewUserMessage(t *testing.T) {
	backend := &testChatBackend{fragments: []string{"Sure."}}
	history := conversations.NewHistory(20)
	history.Push(conversations.NewUserMessage("hi"))
	history.Push(conversations.NewAssistantMessage("Hello."))

	if _, err := NewGenerationClient(backend, false, logger).Respond(
		context.Background(), uuid.New(), "again", history, &sentenceRecorder{},
	); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	requests := backend.Requests()
	if len(requests) != 1 || len(requests[0]) != 3 {
		t.Fatalf("expected one request with three messages, got %+v", requests)
	}
	if last := requests[0][2]; last != conversations.NewUserMessage("again") {
		t.Fatalf("expected the new user message last, got %+v", last)
	}
}

func TestRespondEmptyFinalSentence(t *testing.T) {
	tests := []struct {
		name     string
		suppress bool
		want     []string
	}{
		{name: "forwarded", suppress: false, want: []string{"Hello there.", ""}},
		{name: "suppressed", suppress: true, want: []string{"Hello there."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &testChatBackend{fragments: []string{"Hello ", "there. "}}
			sink := &sentenceRecorder{}

			if _, err := NewGenerationClient(backend, tt.suppress, logger).Respond(
				context.Background(), uuid.New(), "hi", conversations.NewHistory(20), sink,
			); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := texts(sink.sentences); !slices.Equal(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if got := terminators(sink.sentences); got != 1 {
				t.Fatalf("expected exactly one terminator, got %d", got)
			}
		})
	}
}

func TestRespondBackendErrorStillTerminates(t *testing.T) {
	backend := &testChatBackend{fragments: []string{"First. Sec"}, err: errTestTransport}
	history := conversations.NewHistory(20)
	sink := &sentenceRecorder{}

	_, err := NewGenerationClient(backend, false, logger).Respond(context.Background(), uuid.New(), "hi", history, sink)
	if !errors.Is(err, ErrBackendTransport) || !errors.Is(err, errTestTransport) {
		t.Fatalf("expected wrapped backend transport error, got %v", err)
	}

	if got := texts(sink.sentences); !slices.Equal(got, []string{"First."}) {
		t.Fatalf("expected already completed sentence to be kept, got %q", got)
	}
	if got := terminators(sink.sentences); got != 1 {
		t.Fatalf("expected exactly one terminator, got %d", got)
	}

	snapshot := history.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Role != conversations.RoleUser {
		t.Fatalf("expected only the user message in history, got %+v", snapshot)
	}
}

func TestRespondStopsOnSinkError(t *testing.T) {
	backend := &testChatBackend{fragments: []string{"One. Two. Three."}}
	calls := 0
	sink := SentenceSinkFunc(func(_ context.Context, sentence Sentence) error {
		calls++
		return context.Canceled
	})

	_, err := NewGenerationClient(backend, false, logger).Respond(
		context.Background(), uuid.New(), "hi", conversations.NewHistory(20), sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one sentence and one terminator attempt, got %d calls", calls)
	}
}
