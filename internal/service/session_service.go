package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
	"golang.org/x/sync/singleflight"
)

// Session registry errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotSubmitted    = errors.New("session has no accepted submission")
	// ErrSubmitInProgress means another replica holds the learner's submit
	// lock for this assessment. The learner may retry.
	ErrSubmitInProgress = errors.New("another submission for this assessment is in progress")
)

const (
	subscriberBuffer = 32
	publishTimeout   = 2 * time.Second
	janitorInterval  = time.Minute
)

// PlatformClient is the part of the platform API used by live sessions.
type PlatformClient interface {
	quiz.Backend
	GetAttempt(ctx context.Context, attemptID model.ID) (*model.AttemptDetail, error)
}

// ClientFactory returns a PlatformClient that authenticates as the holder
// of the learner's token.
type ClientFactory func(token string) PlatformClient

// SubmitLock serialises submissions of one learner+assessment across replicas.
type SubmitLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Broadcaster publishes session events to staff monitors.
type Broadcaster interface {
	Publish(ctx context.Context, e quiz.Event) error
}

// LedgerSink receives one row per settled submission call.
type LedgerSink interface {
	Push(ctx context.Context, e model.LedgerEntry) error
}

// SessionDeps are the collaborators of a SessionService. Lock, Bus and
// Ledger are optional.
type SessionDeps struct {
	Clients        ClientFactory
	Lock           SubmitLock
	Bus            Broadcaster
	Ledger         LedgerSink
	SessionOptions []quiz.Option
}

type learnerKey struct {
	learnerID    int
	assessmentID model.ID
}

func (k learnerKey) String() string {
	return fmt.Sprintf("%d:%s", k.learnerID, k.assessmentID)
}

type liveSession struct {
	*quiz.Session
	client PlatformClient

	mu        sync.Mutex
	subs      map[chan quiz.Event]struct{}
	settledAt time.Time
	expiredAt time.Time
}

func (ls *liveSession) broadcast(e quiz.Event) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ch := range ls.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (ls *liveSession) closeSubscribers() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ch := range ls.subs {
		close(ch)
		delete(ls.subs, ch)
	}
}

func (ls *liveSession) view() *model.SessionView {
	v := &model.SessionView{
		State:      ls.State(),
		Assessment: ls.Assessment(),
	}
	if sub := ls.Submission(); sub != nil {
		v.Result = sub.Result
	}
	return v
}

// SessionService hosts the runtime sessions of this gateway process and
// bridges their events to WebSocket subscribers, staff monitors and the
// attempt ledger.
type SessionService struct {
	cfg  *config.Config
	deps SessionDeps
	log  zerolog.Logger
	now  func() time.Time

	opening singleflight.Group

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*liveSession
	byLearner map[learnerKey]uuid.UUID
}

// NewSessionService creates a new SessionService.
func NewSessionService(cfg *config.Config, deps SessionDeps, log zerolog.Logger) *SessionService {
	return &SessionService{
		cfg:       cfg,
		deps:      deps,
		log:       log.With().Str("component", "session_service").Logger(),
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*liveSession),
		byLearner: make(map[learnerKey]uuid.UUID),
	}
}

// Open starts a session for the learner, or returns the one already running
// for this assessment. created reports whether a new session was started.
func (s *SessionService) Open(ctx context.Context, learnerID int, token string, assessmentID model.ID) (view *model.SessionView, created bool, err error) {
	key := learnerKey{learnerID: learnerID, assessmentID: assessmentID}
	if ls, err := s.running(key); err != nil || ls != nil {
		if err != nil {
			return nil, false, err
		}
		return ls.view(), false, nil
	}

	type opened struct {
		ls      *liveSession
		created bool
	}
	v, err, shared := s.opening.Do(key.String(), func() (interface{}, error) {
		if ls, err := s.running(key); err != nil || ls != nil {
			return opened{ls: ls}, err
		}
		ls, err := s.start(ctx, key, token)
		if err != nil {
			return nil, err
		}
		return opened{ls: ls, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(opened)
	return o.ls.view(), o.created && !shared, nil
}

// running returns the session a reopen should reattach to. A submitted
// session allows a new attempt; a closed one blocks reopening until the
// janitor evicts it, so closing never hands out a fresh clock.
func (s *SessionService) running(key learnerKey) (*liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLearner[key]
	if !ok {
		return nil, nil
	}
	ls := s.sessions[id]
	if ls == nil {
		return nil, nil
	}
	switch ls.Phase() {
	case model.SessionPhaseSubmitted:
		return nil, nil
	case model.SessionPhaseClosed:
		return nil, quiz.ErrSessionClosed
	}
	return ls, nil
}

func (s *SessionService) start(ctx context.Context, key learnerKey, token string) (*liveSession, error) {
	client := s.deps.Clients(token)
	var backend quiz.Backend = client
	if s.deps.Lock != nil {
		backend = &lockedBackend{
			PlatformClient: client,
			lock:           s.deps.Lock,
			key:            config.CacheKey.SubmitLockKey(key.learnerID, key.assessmentID.String()),
			ttl:            s.cfg.SubmitLockTTL,
			log:            s.log,
		}
	}

	ls := &liveSession{client: client, subs: make(map[chan quiz.Event]struct{})}
	opts := []quiz.Option{
		quiz.WithLearner(key.learnerID),
		quiz.WithObserver(func(e quiz.Event) { s.observe(ls, e) }),
		quiz.WithTickInterval(s.cfg.TickInterval),
		quiz.WithSubmitTimeout(s.cfg.BackendTimeout),
		quiz.WithLogger(s.log),
	}
	opts = append(opts, s.deps.SessionOptions...)

	sess, err := quiz.Open(ctx, backend, key.assessmentID, opts...)
	if err != nil {
		s.log.Warn().Err(err).
			Int("learner_id", key.learnerID).
			Str("assessment_id", key.assessmentID.String()).
			Msg("Assessment load failed")
		return nil, err
	}
	ls.Session = sess

	s.mu.Lock()
	s.sessions[sess.ID()] = ls
	s.byLearner[key] = sess.ID()
	s.mu.Unlock()

	return ls, nil
}

func (s *SessionService) lookup(learnerID int, sessionID uuid.UUID) (*liveSession, error) {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || ls.LearnerID() != learnerID {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

// View returns the session state with its questions.
func (s *SessionService) View(learnerID int, sessionID uuid.UUID) (*model.SessionView, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return nil, err
	}
	return ls.view(), nil
}

// Record stores a choice for a question.
func (s *SessionService) Record(learnerID int, sessionID uuid.UUID, req model.RecordAnswerRequest) (model.SessionState, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return model.SessionState{}, err
	}
	if err := ls.Record(req.QuestionID, req.Choice); err != nil {
		return model.SessionState{}, err
	}
	return ls.State(), nil
}

// Navigate moves the session cursor.
func (s *SessionService) Navigate(learnerID int, sessionID uuid.UUID, req model.NavigateRequest) (model.SessionState, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return model.SessionState{}, err
	}
	switch req.Action {
	case model.NavigateNext:
		ls.Next()
	case model.NavigatePrevious:
		ls.Previous()
	case model.NavigateGoTo:
		ls.GoTo(req.Index)
	default:
		return model.SessionState{}, fmt.Errorf("unknown navigate action %q", req.Action)
	}
	return ls.State(), nil
}

// Submit is the learner's Finish or retry. A duplicate submission is not an
// error: the outcome reports AlreadySubmitted instead.
func (s *SessionService) Submit(ctx context.Context, learnerID int, sessionID uuid.UUID) (*model.SubmitOutcome, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return nil, err
	}

	sub, err := ls.Submit(ctx)
	if err != nil && !errors.Is(err, quiz.ErrAlreadySubmitted) {
		return nil, err
	}

	out := &model.SubmitOutcome{
		AlreadySubmitted: err != nil,
		State:            ls.State(),
	}
	if sub != nil {
		out.Result = sub.Result
	}
	return out, nil
}

// Result fetches the full scored attempt for the results display.
func (s *SessionService) Result(ctx context.Context, learnerID int, sessionID uuid.UUID) (*model.AttemptDetail, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return nil, err
	}
	sub := ls.Submission()
	if sub == nil || sub.Result == nil || sub.Result.ID == "" {
		return nil, ErrNotSubmitted
	}
	return ls.client.GetAttempt(ctx, sub.Result.ID)
}

// Close tears the session down without submitting.
func (s *SessionService) Close(learnerID int, sessionID uuid.UUID) (model.SessionState, error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return model.SessionState{}, err
	}
	ls.Close()
	return ls.State(), nil
}

// Subscribe streams the session's events until cancel is called or the
// session is evicted, after which the channel is closed. Slow subscribers
// miss events rather than stall the session clock.
func (s *SessionService) Subscribe(learnerID int, sessionID uuid.UUID) (<-chan quiz.Event, func(), error) {
	ls, err := s.lookup(learnerID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan quiz.Event, subscriberBuffer)
	ls.mu.Lock()
	ls.subs[ch] = struct{}{}
	ls.mu.Unlock()

	cancel := func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if _, ok := ls.subs[ch]; ok {
			delete(ls.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// LiveStates returns snapshots of this replica's sessions of an assessment
// that have not been closed.
func (s *SessionService) LiveStates(assessmentID model.ID) []model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]model.SessionState, 0)
	for _, ls := range s.sessions {
		if ls.Assessment().ID != assessmentID || ls.Phase() == model.SessionPhaseClosed {
			continue
		}
		states = append(states, ls.State())
	}
	return states
}

// Counts reports how many sessions this replica holds, by phase.
func (s *SessionService) Counts() map[model.SessionPhase]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.SessionPhase]int)
	for _, ls := range s.sessions {
		counts[ls.Phase()]++
	}
	return counts
}

// StartJanitor evicts settled sessions after the retention period. When ctx
// ends it closes every session still held.
func (s *SessionService) StartJanitor(ctx context.Context) {
	s.log.Info().Dur("retention", s.cfg.SessionRetention).Msg("Session janitor started")

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			if n := s.evict(s.now()); n > 0 {
				s.log.Info().Int("evicted", n).Msg("Evicted settled sessions")
			}
		}
	}
}

func (s *SessionService) evict(now time.Time) int {
	s.mu.Lock()
	var stale []*liveSession
	for id, ls := range s.sessions {
		ls.mu.Lock()
		settled, expired := ls.settledAt, ls.expiredAt
		ls.mu.Unlock()

		since := settled
		if since.IsZero() && ls.Phase() == model.SessionPhaseExpired {
			since = expired
		}
		if since.IsZero() || now.Sub(since) < s.cfg.SessionRetention {
			continue
		}

		delete(s.sessions, id)
		key := learnerKey{learnerID: ls.LearnerID(), assessmentID: ls.Assessment().ID}
		if s.byLearner[key] == id {
			delete(s.byLearner, key)
		}
		stale = append(stale, ls)
	}
	s.mu.Unlock()

	for _, ls := range stale {
		ls.Close()
		ls.closeSubscribers()
	}
	return len(stale)
}

func (s *SessionService) shutdown() {
	s.mu.Lock()
	all := make([]*liveSession, 0, len(s.sessions))
	for _, ls := range s.sessions {
		all = append(all, ls)
	}
	s.sessions = make(map[uuid.UUID]*liveSession)
	s.byLearner = make(map[learnerKey]uuid.UUID)
	s.mu.Unlock()

	for _, ls := range all {
		ls.Close()
		ls.closeSubscribers()
	}
	s.log.Info().Int("sessions", len(all)).Msg("Session janitor stopped, sessions closed")
}

// observe runs for every session event, possibly on the ticking goroutine.
func (s *SessionService) observe(ls *liveSession, e quiz.Event) {
	switch e.Type {
	case quiz.EventSubmitted, quiz.EventClosed:
		ls.mu.Lock()
		if ls.settledAt.IsZero() {
			ls.settledAt = s.now()
		}
		ls.mu.Unlock()
	case quiz.EventExpired:
		ls.mu.Lock()
		ls.expiredAt = s.now()
		ls.mu.Unlock()
	}

	if e.Type != quiz.EventTick {
		s.publish(e)
	}
	ls.broadcast(e)
}

// publish relays a non-tick event to staff monitors and, for settled
// submission calls, to the ledger queue.
func (s *SessionService) publish(e quiz.Event) {
	if s.deps.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.deps.Bus.Publish(ctx, e); err != nil {
			s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("Monitor publish failed")
		}
		cancel()
	}

	if s.deps.Ledger != nil && (e.Type == quiz.EventSubmitted || e.Type == quiz.EventSubmitFailed) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.deps.Ledger.Push(ctx, ledgerEntry(e)); err != nil {
			s.log.Error().Err(err).
				Str("session_id", e.SessionID.String()).
				Msg("Failed to queue ledger entry")
		}
		cancel()
	}
}

func ledgerEntry(e quiz.Event) model.LedgerEntry {
	entry := model.LedgerEntry{
		ID:            uuid.New(),
		SessionID:     e.SessionID,
		AssessmentID:  e.AssessmentID.String(),
		LearnerID:     e.LearnerID,
		Reason:        e.Reason,
		Outcome:       model.LedgerOutcomeFailed,
		TimeSpent:     e.TimeSpent,
		AnsweredCount: e.AnsweredCount,
		QuestionCount: e.QuestionCount,
		CreatedAt:     e.At,
	}
	if e.Type == quiz.EventSubmitted {
		entry.Outcome = model.LedgerOutcomeAccepted
		if e.Result != nil {
			attemptID := e.Result.ID.String()
			score := e.Result.Score
			passed := e.Result.Passed
			entry.AttemptID = &attemptID
			entry.Score = &score
			entry.Passed = &passed
		}
		return entry
	}
	msg := e.Error
	entry.ErrorMessage = &msg
	return entry
}

// lockedBackend holds the learner's submit lock around the backend call.
type lockedBackend struct {
	PlatformClient
	lock SubmitLock
	key  string
	ttl  time.Duration
	log  zerolog.Logger
}

func (b *lockedBackend) SubmitAssessment(ctx context.Context, id model.ID, req model.SubmitRequest) (*model.AttemptSummary, error) {
	token, ok, err := b.lock.Acquire(ctx, b.key, b.ttl)
	if err != nil {
		// Without Redis only the in-process finalizer guard applies.
		b.log.Warn().Err(err).Str("key", b.key).Msg("Submit lock unavailable, submitting without it")
		return b.PlatformClient.SubmitAssessment(ctx, id, req)
	}
	if !ok {
		return nil, ErrSubmitInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.lock.Release(releaseCtx, b.key, token); err != nil {
			b.log.Warn().Err(err).Str("key", b.key).Msg("Failed to release submit lock")
		}
	}()
	return b.PlatformClient.SubmitAssessment(ctx, id, req)
}
