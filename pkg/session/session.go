// Package session orchestrates one conversation view: it runs the ask
// pipeline (record, transcribe, answer, speak), keeps the in-memory turn
// list that feeds the concept graph and persists each completed turn.
//
// A session runs at most one pipeline at a time. Every Ask that starts a
// recording opens a new generation; timers and goroutines belonging to an
// older generation find the counter moved on and do nothing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vango-go/vai-tutor/pkg/assembler"
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

const (
	releaseTimeout = 5 * time.Second
	titleMaxRunes  = 80
)

type Session struct {
	deps     Dependencies
	cfg      Config
	clock    Clock
	observer Observer
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	capture       Capture
	stopRequested bool
	stageCtx      context.Context
	stageCancel   context.CancelFunc
	recTimer      Timer
	healTimer     Timer
	lastPersist   chan struct{}
	closed        bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle session.
func New(deps Dependencies) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	cfg := deps.Config.withDefaults()
	if cfg.Persona.ID == "" {
		cfg.Persona.ID = persona.DefaultID
	}

	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:     deps,
		cfg:      cfg,
		clock:    clock,
		observer: observer,
		logger:   logger.With("persona", cfg.Persona.ID),
		state: State{
			Status:         StatusIdle,
			Turns:          []store.Turn{},
			ConversationID: cfg.ConversationID,
			Persona:        cfg.Persona.ID,
		},
		events: make(chan Event, cfg.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Open loads the stored turns of the configured conversation. It must be
// called before the first Ask; without a conversation id or a store it does
// nothing.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.gen != 0 {
		s.mu.Unlock()
		return core.NewInvalidRequestError("session already started")
	}
	id := s.state.ConversationID
	s.mu.Unlock()

	if id == "" || s.deps.Store == nil {
		return nil
	}
	turns, err := s.deps.Store.ListTurns(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != 0 {
		return core.NewInvalidRequestError("session already started")
	}
	s.state.Turns = append([]store.Turn{}, turns...)
	if len(turns) > 0 {
		s.state.HasInteracted = true
	}
	s.logger.Debug("conversation loaded", "conversation_id", id, "turns", len(turns))
	return nil
}

// Events returns the channel the session reports on. Events are dropped
// when the buffer is full; the channel is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Turns = append([]store.Turn{}, s.state.Turns...)
	return st
}

// Ask is the single control a user has: it starts a recording from idle or
// error, stops an active recording, and is ignored while a question is being
// transcribed, answered or spoken.
func (s *Session) Ask() AskOutcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return AskRejected
	}
	switch s.state.Status {
	case StatusIdle, StatusError:
		s.startRecordingLocked()
		s.mu.Unlock()
		return AskStarted
	case StatusRecording:
		g := s.gen
		s.mu.Unlock()
		if s.stopRecording(g) {
			return AskStopped
		}
		return AskRejected
	default:
		s.mu.Unlock()
		return AskRejected
	}
}

// Stop ends an active recording. It reports whether there was one.
func (s *Session) Stop() bool {
	s.mu.Lock()
	g := s.gen
	s.mu.Unlock()
	return s.stopRecording(g)
}

// Select restores a past turn into view and replays its audio when it has
// any. The pipeline status is left alone; a question in flight takes the
// view back with its next transcript or answer update.
func (s *Session) Select(ctx context.Context, index int) (store.Turn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.Turn{}, ErrClosed
	}
	if index < 0 || index >= len(s.state.Turns) {
		s.mu.Unlock()
		return store.Turn{}, core.NewValidationError(fmt.Sprintf("turn index %d out of range", index), "index")
	}
	turn := s.state.Turns[index]
	s.state.Transcript = turn.Question
	s.state.Response = turn.Answer
	s.state.Error = ""
	s.emitLocked(&SelectedEvent{Index: index, Turn: turn})
	s.mu.Unlock()

	if turn.AudioID == "" || s.deps.Player == nil || s.deps.Store == nil {
		return turn, nil
	}
	clip, err := s.deps.Store.GetAudio(ctx, turn.AudioID)
	if err != nil {
		return turn, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return turn, ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		err := s.deps.Player.Play(s.ctx, Playback{
			Data:     clip.Data,
			MimeType: clip.MimeType,
			Text:     turn.Answer,
			Replay:   true,
		})
		if err != nil && s.ctx.Err() == nil {
			s.logger.Warn("replay failed", "audio_id", clip.ID, "error", err)
		}
	}()
	return turn, nil
}

// Close cancels every in-flight stage and releases the capture device. A
// persistence write already under way is allowed to finish within
// Config.PersistTimeout.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	capture := s.capture
	s.capture = nil
	stopTimer(&s.recTimer)
	stopTimer(&s.healTimer)
	s.endStageLocked()
	s.mu.Unlock()

	s.cancel()
	if capture != nil {
		s.release(capture)
	}
	s.wg.Wait()

	s.mu.Lock()
	last := s.lastPersist
	s.mu.Unlock()
	if last != nil {
		<-last
	}

	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()
	return nil
}

func (s *Session) startRecordingLocked() {
	stopTimer(&s.healTimer)
	s.endStageLocked()
	s.gen++
	g := s.gen

	s.state.Error = ""
	s.state.Transcript = ""
	s.state.Response = ""
	s.capture = nil
	s.stopRequested = false
	s.stageCtx, s.stageCancel = context.WithCancel(s.ctx)
	s.setStatusLocked(StatusRecording)

	s.recTimer = s.clock.AfterFunc(s.cfg.RecordingTimeout, func() {
		if s.stopRecording(g) {
			s.logger.Info("recording stopped by timeout", "timeout", s.cfg.RecordingTimeout)
		}
	})

	s.wg.Add(1)
	go s.acquire(s.stageCtx, g)
}

func (s *Session) acquire(ctx context.Context, g uint64) {
	defer s.wg.Done()

	start := s.clock.Now()
	capture, err := s.deps.Capture.Start(ctx)
	if err != nil {
		capture = nil
		err = core.Wrap(core.ErrCaptureDenied, "microphone access denied", err)
	}
	s.observer.ObserveStage(StageCapture, s.clock.Now().Sub(start), err)

	s.mu.Lock()
	if s.closed || g != s.gen || s.state.Status != StatusRecording {
		s.mu.Unlock()
		if capture != nil {
			s.release(capture)
		}
		return
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return
	}
	s.capture = capture
	stop := s.stopRequested
	s.mu.Unlock()

	if stop {
		s.stopRecording(g)
	}
}

// stopRecording moves generation g from recording to transcribing. A stop
// that arrives before the capture is acquired is remembered and honoured by
// acquire.
func (s *Session) stopRecording(g uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || g != s.gen || s.state.Status != StatusRecording {
		return false
	}
	if s.capture == nil {
		s.stopRequested = true
		return true
	}

	stopTimer(&s.recTimer)
	capture := s.capture
	s.capture = nil
	s.setStatusLocked(StatusTranscribing)

	s.wg.Add(1)
	go s.run(s.stageCtx, g, capture)
	return true
}

func (s *Session) run(ctx context.Context, g uint64, capture Capture) {
	defer s.wg.Done()

	question, err := s.transcribe(ctx, capture)
	if err != nil {
		s.fail(g, err)
		return
	}

	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.state.Transcript = question
	s.state.HasInteracted = true
	s.emitLocked(&TranscriptEvent{Text: question})
	s.setStatusLocked(StatusThinking)
	history := exchanges(s.state.Turns)
	conversationID := s.state.ConversationID
	s.mu.Unlock()

	res, err := s.think(ctx, g, question, history)
	if err != nil {
		s.fail(g, err)
		return
	}

	turn := store.Turn{
		ConversationID: conversationID,
		Question:       question,
		Answer:         res.Text,
		Concept:        res.Concept,
		Summary:        res.Summary,
		CreatedAt:      s.clock.Now(),
	}

	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.state.Response = res.Text
	s.state.Turns = append(s.state.Turns, turn)
	index := len(s.state.Turns) - 1
	s.emitLocked(&ResponseDoneEvent{Text: res.Text, Concept: res.Concept, Summary: res.Summary})
	s.emitLocked(&TurnAddedEvent{Index: index, Turn: turn})
	s.setStatusLocked(StatusSpeaking)
	s.mu.Unlock()

	s.speak(ctx, g, index, turn)
}

func (s *Session) transcribe(ctx context.Context, capture Capture) (text string, err error) {
	start := s.clock.Now()
	defer func() {
		s.observer.ObserveStage(StageTranscribe, s.clock.Now().Sub(start), err)
	}()

	rec, err := capture.Stop(ctx)
	if err != nil {
		return "", core.Wrap(core.ErrTranscription, "recording could not be read", err)
	}
	text, err = s.deps.Transcriber.Transcribe(ctx, rec.Data, rec.MimeType)
	if err != nil {
		return "", stageError(core.ErrTranscription, "transcription failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", core.Wrap(core.ErrTranscription, "no speech detected", nil)
	}
	return text, nil
}

func (s *Session) think(ctx context.Context, g uint64, question string, history []answer.Exchange) (res assembler.Result, err error) {
	start := s.clock.Now()
	defer func() {
		s.observer.ObserveStage(StageAnswer, s.clock.Now().Sub(start), err)
	}()

	stream, err := s.deps.Answerer.Answer(ctx, answer.Request{
		Question: question,
		Persona:  s.cfg.Persona,
		History:  history,
	})
	if err != nil {
		return assembler.Result{}, stageError(core.ErrAnswerGeneration, "answer failed", err)
	}
	defer stream.Close()

	res, err = assembler.Consume(ctx, stream, func(preview string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if g != s.gen {
			return
		}
		s.state.Response = preview
		s.emitLocked(&ResponseDeltaEvent{Text: preview})
	})
	if err != nil {
		return assembler.Result{}, stageError(core.ErrAnswerGeneration, "answer stream failed", err)
	}
	if res.Text == "" {
		return assembler.Result{}, core.Wrap(core.ErrAnswerGeneration, "empty answer", nil)
	}
	return res, nil
}

// speak synthesizes and plays the answer. Persistence starts as soon as the
// audio is known and runs alongside playback.
func (s *Session) speak(ctx context.Context, g uint64, index int, turn store.Turn) {
	playback := Playback{Text: turn.Answer}
	voiceID := s.cfg.Persona.VoiceID

	if voiceID != "" && s.deps.Synthesizer != nil {
		audio, err := s.synthesize(ctx, turn.Answer, voiceID)
		if err != nil {
			if s.cfg.PersistOnSynthesisFailure {
				s.persist(index, turn, nil)
			}
			s.fail(g, err)
			return
		}
		playback.Data = audio.Data
		playback.MimeType = audio.MimeType
		s.persist(index, turn, &audio)
	} else {
		s.persist(index, turn, nil)
	}

	if s.deps.Player != nil {
		start := s.clock.Now()
		err := s.deps.Player.Play(ctx, playback)
		s.observer.ObserveStage(StagePlayback, s.clock.Now().Sub(start), err)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("playback failed", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g == s.gen && s.state.Status == StatusSpeaking {
		s.endStageLocked()
		s.setStatusLocked(StatusIdle)
	}
}

func (s *Session) synthesize(ctx context.Context, text, voiceID string) (audio Audio, err error) {
	start := s.clock.Now()
	defer func() {
		s.observer.ObserveStage(StageSynthesize, s.clock.Now().Sub(start), err)
	}()

	audio, err = s.deps.Synthesizer.Synthesize(ctx, text, voiceID)
	if err != nil {
		return Audio{}, stageError(core.ErrSynthesis, "speech synthesis failed", err)
	}
	if len(audio.Data) == 0 {
		return Audio{}, core.Wrap(core.ErrSynthesis, "speech synthesis returned no audio", nil)
	}
	return audio, nil
}

// persist queues one AppendTurn. Writes run in turn order on a context
// detached from the session so Close does not tear them.
func (s *Session) persist(index int, turn store.Turn, audio *Audio) {
	if s.deps.Store == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.lastPersist
	done := make(chan struct{})
	s.lastPersist = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.PersistTimeout)
		defer cancel()

		start := s.clock.Now()
		res, conversationID, err := s.appendTurn(ctx, turn, audio)
		s.observer.ObserveStage(StagePersist, s.clock.Now().Sub(start), err)
		if err != nil {
			s.logger.Error("turn not persisted", "index", index, "error", err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if index < len(s.state.Turns) {
			t := &s.state.Turns[index]
			t.ID = res.TurnID
			t.AudioID = res.AudioID
			t.ConversationID = conversationID
		}
		s.emitLocked(&TurnRecordedEvent{
			Index:          index,
			TurnID:         res.TurnID,
			AudioID:        res.AudioID,
			ConversationID: conversationID,
		})
	}()
}

func (s *Session) appendTurn(ctx context.Context, turn store.Turn, audio *Audio) (store.AppendTurnResult, string, error) {
	conversationID, err := s.ensureConversation(ctx, turn.Question)
	if err != nil {
		return store.AppendTurnResult{}, "", err
	}
	req := store.AppendTurnRequest{
		ConversationID: conversationID,
		Question:       turn.Question,
		Answer:         turn.Answer,
		Concept:        turn.Concept,
		Summary:        turn.Summary,
	}
	if audio != nil {
		req.Audio = audio.Data
		req.AudioMimeType = audio.MimeType
	}
	res, err := s.deps.Store.AppendTurn(ctx, req)
	return res, conversationID, err
}

// ensureConversation creates the conversation on the first write. Only the
// persist chain calls it, so creation happens once.
func (s *Session) ensureConversation(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	id := s.state.ConversationID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	conv, err := s.deps.Store.CreateConversation(ctx, s.cfg.Persona.ID, titleFrom(question))
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.state.ConversationID = conv.ID
	s.mu.Unlock()
	s.logger.Info("conversation created", "conversation_id", conv.ID)
	return conv.ID, nil
}

func (s *Session) fail(g uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || g != s.gen {
		return
	}
	s.failLocked(err)
}

// failLocked enters the error state and arms the recovery timer. The timer
// only heals the generation it was armed for.
func (s *Session) failLocked(err error) {
	stopTimer(&s.recTimer)
	s.endStageLocked()

	msg := errorMessage(err)
	s.logger.Warn("pipeline failed", "status", s.state.Status.String(), "error", err)
	s.state.Error = msg
	s.emitLocked(&ErrorEvent{Type: core.TypeOf(err), Message: msg})
	s.setStatusLocked(StatusError)

	g := s.gen
	stopTimer(&s.healTimer)
	s.healTimer = s.clock.AfterFunc(s.cfg.ErrorRecovery, func() {
		s.heal(g)
	})
}

func (s *Session) heal(g uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || g != s.gen || s.state.Status != StatusError {
		return
	}
	s.state.Error = ""
	s.healTimer = nil
	s.setStatusLocked(StatusIdle)
}

func (s *Session) release(capture Capture) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := capture.Stop(ctx); err != nil {
		s.logger.Debug("capture release failed", "error", err)
	}
}

func (s *Session) endStageLocked() {
	if s.stageCancel != nil {
		s.stageCancel()
		s.stageCancel = nil
	}
}

func (s *Session) setStatusLocked(to Status) {
	from := s.state.Status
	if from == to {
		return
	}
	s.state.Status = to
	s.logger.Debug("status changed", "from", from.String(), "to", to.String())
	s.emitLocked(&StateChangedEvent{From: from, To: to})
}

func (s *Session) emitLocked(event Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.logger.Debug("event dropped", "type", event.EventType())
	}
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// stageError keeps an error already classified as t and wraps anything else.
func stageError(t core.ErrorType, msg string, err error) error {
	if core.IsType(err, t) {
		return err
	}
	return core.Wrap(t, msg, err)
}

func errorMessage(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func exchanges(turns []store.Turn) []answer.Exchange {
	out := make([]answer.Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, answer.Exchange{Question: t.Question, Answer: t.Answer})
	}
	return out
}

func titleFrom(question string) string {
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) <= titleMaxRunes {
		return question
	}
	runes := []rune(question)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}
