// Package parser implements the incremental directive parser.
//
// The parser consumes cumulative streamed text per conversation turn,
// recognizes the artifact/action tag vocabulary per
// CONTRACT_DIRECTIVE.md, emits structured open/close events through a Sink,
// and returns display-safe output with directive tags elided.
//
// Parse is resumable: it may be called repeatedly with growing input sharing
// the previous prefix. Partial trailing tags halt the scan; the next call
// resumes at the same cursor. Feeding input one byte at a time or all at
// once produces the identical event sequence and output.
package parser

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/types"
)

// DefaultMaxTurns bounds the number of per-turn parser states retained.
const DefaultMaxTurns = 100

// Sink receives structured directive events as the parser recognizes them.
// All callbacks run synchronously on the Parse caller's goroutine.
type Sink interface {
	// ArtifactOpen is called when an artifact open tag is recognized.
	ArtifactOpen(artifact *types.Artifact)
	// ArtifactClose is called when the artifact close tag is recognized.
	ArtifactClose(artifact *types.Artifact)
	// ActionOpen is called when an action open tag is recognized. The
	// action content is not yet authoritative.
	ActionOpen(action *types.Action)
	// ActionClose is called with finalized content: trimmed, trailing
	// newline appended for file actions.
	ActionClose(action *types.Action)
}

// SinkFuncs adapts plain functions to the Sink interface.
// Nil fields are no-ops.
type SinkFuncs struct {
	OnArtifactOpen  func(*types.Artifact)
	OnArtifactClose func(*types.Artifact)
	OnActionOpen    func(*types.Action)
	OnActionClose   func(*types.Action)
}

// ArtifactOpen implements Sink.
func (s SinkFuncs) ArtifactOpen(a *types.Artifact) {
	if s.OnArtifactOpen != nil {
		s.OnArtifactOpen(a)
	}
}

// ArtifactClose implements Sink.
func (s SinkFuncs) ArtifactClose(a *types.Artifact) {
	if s.OnArtifactClose != nil {
		s.OnArtifactClose(a)
	}
}

// ActionOpen implements Sink.
func (s SinkFuncs) ActionOpen(a *types.Action) {
	if s.OnActionOpen != nil {
		s.OnActionOpen(a)
	}
}

// ActionClose implements Sink.
func (s SinkFuncs) ActionClose(a *types.Action) {
	if s.OnActionClose != nil {
		s.OnActionClose(a)
	}
}

// Parser is the incremental directive parser. Safe for concurrent use;
// calls for distinct turn ids are independent.
type Parser struct {
	mu     sync.Mutex
	sink   Sink
	logger *log.Logger
	turns  *lru.Cache[string, *turnState]
	// now is injected for deterministic id synthesis in tests.
	now func() time.Time
}

// New creates a parser with the default turn-state capacity.
func New(sink Sink, logger *log.Logger) *Parser {
	return NewWithCapacity(sink, logger, DefaultMaxTurns)
}

// NewWithCapacity creates a parser retaining at most maxTurns per-turn
// states. The oldest states are evicted past the cap.
func NewWithCapacity(sink Sink, logger *log.Logger, maxTurns int) *Parser {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	cache, err := lru.New[string, *turnState](maxTurns)
	if err != nil {
		// lru.New only fails on non-positive size, guarded above.
		panic(err)
	}
	return &Parser{
		sink:   sink,
		logger: logger,
		turns:  cache,
		now:    time.Now,
	}
}

// Progress returns the processed-length cursor for a turn.
// Returns 0 for unknown turns.
func (p *Parser) Progress(turnID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.turns.Get(turnID); ok {
		return st.processed
	}
	return 0
}

// Output returns the accumulated display-safe output for a turn.
func (p *Parser) Output(turnID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.turns.Get(turnID); ok {
		return string(st.output)
	}
	return ""
}

// Parse consumes the cumulative input for a turn and returns the
// display-safe output produced by this call.
//
// If input is shorter than previously processed input the stream was
// replaced: per-turn state is fully reset and parsing restarts at zero.
// A panic during scanning never destroys previously accumulated output;
// it is logged and the raw unprocessed input is returned for the call.
func (p *Parser) Parse(turnID, input string) (out string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.turns.Get(turnID)
	if !ok {
		st = &turnState{}
		p.turns.Add(turnID, st)
	}
	if len(input) < st.processed {
		p.logger.Warn("input shorter than processed prefix, resetting turn", map[string]any{
			"turn_id":   turnID,
			"processed": st.processed,
			"input_len": len(input),
		})
		st = &turnState{}
		p.turns.Add(turnID, st)
	}

	entry := st.processed
	prevOut := len(st.output)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parser panic, returning raw input for call", map[string]any{
				"turn_id": turnID,
				"panic":   fmt.Sprint(r),
			})
			st.output = st.output[:prevOut]
			st.processed = entry
			out = input[entry:]
		}
	}()

	p.scan(st, turnID, input)
	return string(st.output[prevOut:])
}

// scan advances the state machine over input[st.processed:].
func (p *Parser) scan(st *turnState, turnID, input string) {
	i := st.processed
loop:
	for i < len(input) {
		switch st.state {
		case stateOutside:
			n, halt := p.scanOutside(st, turnID, input, i)
			if halt {
				break loop
			}
			i = n

		case stateInArtifact:
			n, halt := p.scanInArtifact(st, turnID, input, i)
			if halt {
				break loop
			}
			i = n

		case stateInAction:
			idx := strings.Index(input[i:], actionCloseTag)
			if idx == -1 {
				// Content still streaming; finalize only at the
				// close tag.
				break loop
			}
			p.closeAction(st, input[i:i+idx])
			i += idx + len(actionCloseTag)
		}
	}
	st.processed = i
}

// scanOutside handles one step outside any artifact. Returns the new cursor
// or halt=true when more input is needed to decide.
func (p *Parser) scanOutside(st *turnState, turnID, input string, i int) (int, bool) {
	c := input[i]

	if c == '<' {
		rest := input[i:]
		if isPartialPrefix(rest, artifactOpenPrefix) {
			return i, true
		}
		if strings.HasPrefix(rest, artifactOpenPrefix) && len(rest) == len(artifactOpenPrefix) {
			return i, true
		}
		if matchesTagPrefix(rest, artifactOpenPrefix) {
			end := strings.IndexByte(rest, '>')
			if end == -1 {
				return i, true
			}
			p.openArtifact(st, turnID, rest[:end+1])
			return i + end + 1, false
		}
		st.output = append(st.output, '<')
		return i + 1, false
	}

	if c == '`' {
		rest := input[i:]
		if fenceHoldback(rest) == 0 {
			// The whole tail could still become a fence marker
			// adjacent to an artifact tag.
			return i, true
		}
		if tokLen, ok := fenceToken(rest); ok {
			after := rest[tokLen:]
			if isPartialPrefix(after, artifactOpenPrefix) {
				return i, true
			}
			if strings.HasPrefix(after, artifactOpenPrefix) {
				// Fence marker wrapping the directive block:
				// elide it from display output.
				return i + tokLen, false
			}
		}
		st.output = append(st.output, '`')
		return i + 1, false
	}

	// Plain text: copy verbatim up to the next tag or fence candidate.
	next := strings.IndexAny(input[i:], "<`")
	if next == -1 {
		st.output = append(st.output, input[i:]...)
		return len(input), false
	}
	st.output = append(st.output, input[i:i+next]...)
	return i + next, false
}

// scanInArtifact handles one step inside an artifact, outside an action.
// Inter-tag filler (typically whitespace) is discarded from display output.
func (p *Parser) scanInArtifact(st *turnState, turnID, input string, i int) (int, bool) {
	if input[i] != '<' {
		next := strings.IndexByte(input[i:], '<')
		if next == -1 {
			return len(input), false
		}
		return i + next, false
	}

	rest := input[i:]
	if isPartialPrefix(rest, actionOpenPrefix) || isPartialPrefix(rest, artifactCloseTag) {
		return i, true
	}
	if strings.HasPrefix(rest, artifactCloseTag) {
		p.closeArtifact(st)
		return i + len(artifactCloseTag), false
	}
	if strings.HasPrefix(rest, actionOpenPrefix) && len(rest) == len(actionOpenPrefix) {
		return i, true
	}
	if matchesTagPrefix(rest, actionOpenPrefix) {
		end := strings.IndexByte(rest, '>')
		if end == -1 {
			return i, true
		}
		n := i + end + 1
		p.openAction(st, turnID, rest[:end+1])
		st.contentStart = n
		return n, false
	}

	// Stray '<' between actions, discard.
	return i + 1, false
}

// openArtifact parses the open tag attributes and emits artifact-open.
// The tag is replaced in display output by a stable opaque placeholder.
func (p *Parser) openArtifact(st *turnState, turnID, tag string) {
	title, ok := attrValue(tag, "title")
	if !ok {
		p.logger.Warn("artifact open tag missing title attribute", map[string]any{
			"turn_id": turnID,
		})
	}
	id, ok := attrValue(tag, "id")
	if !ok || id == "" {
		id = fmt.Sprintf("artifact-%d", p.now().UnixMilli())
		p.logger.Warn("artifact open tag missing id attribute, synthesized", map[string]any{
			"turn_id": turnID,
			"id":      id,
		})
	}

	st.artifact = &types.Artifact{
		ID:     id,
		Title:  title,
		TurnID: turnID,
	}
	st.state = stateInArtifact
	st.output = append(st.output, "[foundry-artifact:"+id+"]"...)

	emitted := *st.artifact
	p.sink.ArtifactOpen(&emitted)
}

// closeArtifact seals the artifact and emits artifact-close.
func (p *Parser) closeArtifact(st *turnState) {
	st.artifact.Closed = true
	emitted := *st.artifact
	p.sink.ArtifactClose(&emitted)
	st.artifact = nil
	st.state = stateOutside
}

// openAction parses the action open tag attributes, creates a pending
// action and emits action-open.
func (p *Parser) openAction(st *turnState, turnID, tag string) {
	kindAttr, _ := attrValue(tag, "type")
	kind := types.ActionKind(kindAttr)
	if kind != types.ActionKindFile && kind != types.ActionKindShell {
		p.logger.Warn("action open tag has unknown type, treating as shell", map[string]any{
			"turn_id": turnID,
			"type":    kindAttr,
		})
		kind = types.ActionKindShell
	}

	filePath, _ := filePathAttr(tag)
	if kind == types.ActionKindFile && filePath == "" {
		p.logger.Warn("file action missing filePath attribute", map[string]any{
			"turn_id": turnID,
		})
	}

	st.actionCounter++
	st.action = &types.Action{
		ID:         fmt.Sprintf("%s-%d", turnID, st.actionCounter),
		ArtifactID: st.artifact.ID,
		TurnID:     turnID,
		Kind:       kind,
		Status:     types.ActionStatusPending,
		FilePath:   filePath,
	}
	st.state = stateInAction

	emitted := *st.action
	p.sink.ActionOpen(&emitted)
}

// closeAction finalizes the action content and emits action-close.
// Content is trimmed; file actions get exactly one trailing newline.
func (p *Parser) closeAction(st *turnState, raw string) {
	content := strings.TrimSpace(raw)
	if st.action.Kind == types.ActionKindFile {
		content += "\n"
	}
	st.action.Content = content

	emitted := *st.action
	p.sink.ActionClose(&emitted)
	st.action = nil
	st.state = stateInArtifact
}
