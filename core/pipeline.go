package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/texttospeech"
	"golang.org/x/sync/errgroup"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var errPipelineStopped = errors.New("speech pipeline stopped")

type clipItem struct {
	TurnID uuid.UUID
	Text   string
	Clip   audio.Clip
	End    bool
}

// completionGate is released once, when the playback stage drains the
// terminator of its turn.
type completionGate struct {
	turnID uuid.UUID
	once   sync.Once
	done   chan struct{}
}

func newCompletionGate(turnID uuid.UUID) *completionGate {
	return &completionGate{turnID: turnID, done: make(chan struct{})}
}

func (g *completionGate) release() {
	g.once.Do(func() { close(g.done) })
}

func (g *completionGate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// speechPipeline runs the render and playback stages. Sentences flow in
// through Send, are rendered one at a time and played one at a time, in the
// order they were sent.
type speechPipeline struct {
	renderer  *SpeechRenderer
	sequencer *PlaybackSequencer
	logger    *slog.Logger

	sentences chan Sentence
	clips     chan clipItem

	gatesMu sync.Mutex
	gates   map[uuid.UUID]*completionGate

	onError  func(error)
	onPlayed func(text string)

	group   *errgroup.Group
	stopped <-chan struct{}
}

func newSpeechPipeline(
	renderer *SpeechRenderer,
	sequencer *PlaybackSequencer,
	capacity int,
	logger *slog.Logger,
) *speechPipeline {
	return &speechPipeline{
		renderer:  renderer,
		sequencer: sequencer,
		logger:    logger,
		sentences: make(chan Sentence, capacity),
		clips:     make(chan clipItem, capacity),
		gates:     map[uuid.UUID]*completionGate{},
		onError:   func(error) {},
		onPlayed:  func(string) {},
		stopped:   make(chan struct{}),
	}
}

func (p *speechPipeline) start(ctx context.Context) {
	p.group, ctx = errgroup.WithContext(ctx)
	p.stopped = ctx.Done()
	p.group.Go(func() error { return panicSafeNamedWorker("render", p.renderStage)(ctx) })
	p.group.Go(func() error { return panicSafeNamedWorker("playback", p.playbackStage)(ctx) })
}

// close stops accepting sentences and waits for both stages to drain.
func (p *speechPipeline) close() error {
	close(p.sentences)
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// beginTurn registers the gate that the playback stage releases when it
// reaches the terminator of turnID.
func (p *speechPipeline) beginTurn(turnID uuid.UUID) *completionGate {
	p.gatesMu.Lock()
	defer p.gatesMu.Unlock()

	gate := newCompletionGate(turnID)
	p.gates[turnID] = gate
	return gate
}

// abandonTurn forgets a gate whose terminator will never be sent.
func (p *speechPipeline) abandonTurn(turnID uuid.UUID) {
	p.gatesMu.Lock()
	defer p.gatesMu.Unlock()
	delete(p.gates, turnID)
}

func (p *speechPipeline) isActive(turnID uuid.UUID) bool {
	p.gatesMu.Lock()
	defer p.gatesMu.Unlock()
	_, ok := p.gates[turnID]
	return ok
}

func (p *speechPipeline) release(turnID uuid.UUID) {
	p.gatesMu.Lock()
	gate, ok := p.gates[turnID]
	delete(p.gates, turnID)
	p.gatesMu.Unlock()

	if !ok {
		p.logger.Warn("terminator for unknown turn", "turn_id", turnID)
		return
	}
	gate.release()
}

func (p *speechPipeline) Send(ctx context.Context, sentence Sentence) error {
	select {
	case p.sentences <- sentence:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return errPipelineStopped
	}
}

// awaitTurn waits for the gate of a turn, giving up when either stage has
// stopped.
func (p *speechPipeline) awaitTurn(ctx context.Context, gate *completionGate) error {
	select {
	case <-gate.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return errPipelineStopped
	}
}

func (p *speechPipeline) renderStage(ctx context.Context) error {
	defer close(p.clips)

	abandoned := map[uuid.UUID]bool{}
	for {
		var sentence Sentence
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-p.sentences:
			if !ok {
				return nil
			}
			sentence = s
		}

		item := clipItem{TurnID: sentence.TurnID, Text: sentence.Text, End: sentence.End}
		switch {
		case sentence.End:
			delete(abandoned, sentence.TurnID)
		case sentence.Text == "" || abandoned[sentence.TurnID]:
			continue
		default:
			clip, err := p.renderer.Render(ctx, sentence.Text)
			if errors.Is(err, texttospeech.ErrSynthesisFailure) {
				synthesisFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "synthesis")))
				p.logger.Warn("skipping sentence, synthesis failed", "text", sentence.Text, "error", err)
				p.onError(err)
				continue
			} else if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				abandoned[sentence.TurnID] = true
				p.logger.Error("abandoning turn, synthesis backend failed", "turn_id", sentence.TurnID, "error", err)
				p.onError(err)
				continue
			}
			item.Clip = clip
		}

		select {
		case p.clips <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *speechPipeline) playbackStage(ctx context.Context) error {
	for {
		var item clipItem
		select {
		case <-ctx.Done():
			return ctx.Err()
		case i, ok := <-p.clips:
			if !ok {
				return nil
			}
			item = i
		}

		if item.End {
			p.release(item.TurnID)
			continue
		}
		if !p.isActive(item.TurnID) {
			p.logger.Warn("dropping clip of a finished turn", "turn_id", item.TurnID)
			continue
		}

		if err := p.sequencer.Play(ctx, item.Clip); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("playback failed", "error", err)
			p.onError(err)
			continue
		}
		p.onPlayed(item.Text)
	}
}
