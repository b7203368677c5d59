package quiz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
)

const defaultSubmitTimeout = 20 * time.Second

// Session is one learner's run through an assessment. It wires the loader,
// countdown, answer tracker, navigator and finalizer together and owns
// their lifecycle: the countdown starts when Open succeeds and is released
// by submission, expiry or Close.
type Session struct {
	id         uuid.UUID
	learnerID  int
	assessment *model.Assessment
	startedAt  time.Time

	countdown *Countdown
	tracker   *AnswerTracker
	nav       *Navigator
	finalizer *Finalizer

	observer      Observer
	now           func() time.Time
	submitTimeout time.Duration
	log           zerolog.Logger

	mu      sync.Mutex
	phase   model.SessionPhase
	expired bool
	lastErr error
}

type sessionOptions struct {
	id            uuid.UUID
	learnerID     int
	observer      Observer
	now           func() time.Time
	interval      time.Duration
	newTicker     TickerFunc
	submitTimeout time.Duration
	log           zerolog.Logger
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithSessionID fixes the session id (random by default).
func WithSessionID(id uuid.UUID) Option {
	return func(o *sessionOptions) { o.id = id }
}

// WithLearner tags the session with the learner's id.
func WithLearner(id int) Option {
	return func(o *sessionOptions) { o.learnerID = id }
}

// WithObserver registers the event observer.
func WithObserver(f Observer) Option {
	return func(o *sessionOptions) { o.observer = f }
}

// WithClock replaces time.Now for elapsed-time accounting.
func WithClock(now func() time.Time) Option {
	return func(o *sessionOptions) { o.now = now }
}

// WithTickInterval sets the countdown tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(o *sessionOptions) { o.interval = d }
}

// WithTickerFunc replaces the countdown's ticker factory.
func WithTickerFunc(f TickerFunc) Option {
	return func(o *sessionOptions) { o.newTicker = f }
}

// WithSubmitTimeout bounds the automatic submission on expiry.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.submitTimeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *sessionOptions) { o.log = l }
}

// Open loads the assessment and starts the session. On load failure it
// returns a *LoadError and nothing is started.
func Open(ctx context.Context, backend Backend, assessmentID model.ID, opts ...Option) (*Session, error) {
	o := sessionOptions{
		id:            uuid.New(),
		now:           time.Now,
		interval:      time.Second,
		newTicker:     NewRealTicker,
		submitTimeout: defaultSubmitTimeout,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	a, err := NewLoader(backend).Load(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:            o.id,
		learnerID:     o.learnerID,
		assessment:    a,
		startedAt:     o.now(),
		tracker:       NewAnswerTracker(),
		nav:           NewNavigator(len(a.Questions)),
		observer:      o.observer,
		now:           o.now,
		submitTimeout: o.submitTimeout,
		phase:         model.SessionPhaseRunning,
		log: o.log.With().
			Str("session_id", o.id.String()).
			Str("assessment_id", a.ID.String()).
			Int("learner_id", o.learnerID).
			Logger(),
	}
	s.finalizer = NewFinalizer(backend, a.ID, s.startedAt, a.DurationSeconds(), o.now)
	s.countdown = NewCountdown(a.DurationSeconds(),
		WithInterval(o.interval),
		WithTicker(o.newTicker),
		OnTick(s.onTick),
		OnExpire(s.onExpire),
	)

	s.log.Info().
		Int("questions", len(a.Questions)).
		Int("duration_seconds", a.DurationSeconds()).
		Msg("Session started")
	s.emit(EventStarted, nil)
	s.countdown.Start()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// LearnerID returns the learner the session belongs to.
func (s *Session) LearnerID() int { return s.learnerID }

// Assessment returns the immutable assessment definition.
func (s *Session) Assessment() *model.Assessment { return s.assessment }

// Phase returns the current phase.
func (s *Session) Phase() model.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Submission returns the accepted submission, or nil.
func (s *Session) Submission() *Submission { return s.finalizer.Submission() }

// State returns a snapshot of the session.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	phase := s.phase
	lastErr := s.lastErr
	expired := s.expired
	s.mu.Unlock()

	st := model.SessionState{
		SessionID:        s.id,
		AssessmentID:     s.assessment.ID,
		LearnerID:        s.learnerID,
		Phase:            phase,
		RemainingSeconds: s.countdown.Remaining(),
		Cursor:           s.nav.Cursor(),
		IsLastQuestion:   s.nav.IsLast(),
		QuestionCount:    s.nav.Len(),
		AnsweredCount:    s.tracker.Count(),
		Answers:          s.tracker.Snapshot(),
		StartedAt:        s.startedAt,
	}
	if sub := s.finalizer.Submission(); sub != nil {
		st.SubmitReason = sub.Reason
		if sub.Result != nil {
			st.AttemptID = sub.Result.ID
		}
	} else if expired {
		st.SubmitReason = model.SubmitReasonAutoExpired
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// Record stores the learner's choice for a question. Answers are frozen
// once time has run out, while a submission is in flight and after the
// session ends.
func (s *Session) Record(qid model.ID, choice model.Choice) error {
	if !s.assessment.HasQuestion(qid) {
		return ErrUnknownQuestion
	}
	s.mu.Lock()
	if s.phase != model.SessionPhaseRunning {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.tracker.Record(qid, choice)
	s.mu.Unlock()

	s.emit(EventAnswered, nil)
	return nil
}

// GoTo moves the cursor, clamped into range.
func (s *Session) GoTo(index int) int { return s.nav.GoTo(index) }

// Next moves the cursor forward by one.
func (s *Session) Next() int { return s.nav.Next() }

// Previous moves the cursor back by one.
func (s *Session) Previous() int { return s.nav.Previous() }

// Submit is the learner's explicit "Finish" (or retry after a failed
// submission). After the clock has expired the submission keeps the
// auto-expired reason.
func (s *Session) Submit(ctx context.Context) (*Submission, error) {
	s.mu.Lock()
	reason := model.SubmitReasonManual
	if s.expired {
		reason = model.SubmitReasonAutoExpired
	}
	s.mu.Unlock()
	return s.submit(ctx, reason)
}

func (s *Session) submit(ctx context.Context, reason model.SubmitReason) (*Submission, error) {
	s.mu.Lock()
	if s.phase == model.SessionPhaseClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if !s.finalizer.Begin() {
		s.mu.Unlock()
		return s.finalizer.Submission(), ErrAlreadySubmitted
	}
	s.phase = model.SessionPhaseSubmitting
	answers := s.tracker.Snapshot()
	s.mu.Unlock()

	s.emit(EventSubmitting, func(e *Event) { e.Reason = reason })

	sub, err := s.finalizer.Send(ctx, reason, answers)

	s.mu.Lock()
	if err != nil {
		if s.phase == model.SessionPhaseSubmitting {
			s.phase = model.SessionPhaseRunning
			if s.expired {
				s.phase = model.SessionPhaseExpired
			}
		}
		s.lastErr = err
		s.mu.Unlock()

		s.log.Warn().Err(err).Str("reason", string(reason)).Msg("Submission failed")
		s.emit(EventSubmitFailed, func(e *Event) {
			e.Reason = reason
			e.Error = err.Error()
			e.Retryable = true
			var se *SubmissionError
			if errors.As(err, &se) {
				e.TimeSpent = se.TimeSpent
			}
		})
		return nil, err
	}
	if s.phase == model.SessionPhaseSubmitting {
		s.phase = model.SessionPhaseSubmitted
	}
	s.lastErr = nil
	s.mu.Unlock()

	s.countdown.Stop()
	s.nav.Freeze()

	s.log.Info().
		Str("reason", string(reason)).
		Int("time_spent", sub.TimeSpent).
		Int("answered", len(sub.Answers)).
		Msg("Assessment submitted")
	s.emit(EventSubmitted, func(e *Event) {
		e.Reason = reason
		e.TimeSpent = sub.TimeSpent
		e.Result = sub.Result
		if sub.Result != nil {
			e.AttemptID = sub.Result.ID
		}
	})
	return sub, nil
}

// Close tears the session down without submitting (the learner left). It
// releases the ticking goroutine and is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	wasOpen := !s.phase.Terminal()
	if wasOpen {
		s.phase = model.SessionPhaseClosed
	}
	s.mu.Unlock()

	s.countdown.Close()
	s.nav.Freeze()

	if wasOpen {
		s.log.Info().Msg("Session closed")
		s.emit(EventClosed, nil)
	}
}

func (s *Session) onTick(remaining int) {
	s.emit(EventTick, func(e *Event) { e.RemainingSeconds = remaining })
}

// onExpire runs on the ticking goroutine exactly once, when the clock hits zero.
func (s *Session) onExpire() {
	s.mu.Lock()
	s.expired = true
	if s.phase == model.SessionPhaseRunning {
		s.phase = model.SessionPhaseExpired
	}
	s.mu.Unlock()

	s.emit(EventExpired, nil)

	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()
	if _, err := s.submit(ctx, model.SubmitReasonAutoExpired); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		s.log.Error().Err(err).Msg("Auto-submit on expiry failed, waiting for learner retry")
	}
}

func (s *Session) emit(t EventType, decorate func(*Event)) {
	if s.observer == nil {
		return
	}
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()

	e := Event{
		Type:             t,
		SessionID:        s.id,
		AssessmentID:     s.assessment.ID,
		LearnerID:        s.learnerID,
		Phase:            phase,
		RemainingSeconds: s.countdown.Remaining(),
		AnsweredCount:    s.tracker.Count(),
		QuestionCount:    s.nav.Len(),
		At:               s.now(),
	}
	if decorate != nil {
		decorate(&e)
	}
	s.observer(e)
}
