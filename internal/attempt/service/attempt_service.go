// Package service drives grading attempts: it owns one state machine per attempt,
// runs test grading and formal submission in the background, and publishes every observation.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"codearena/internal/attempt/machine"
	"codearena/internal/attempt/model"
	"codearena/internal/attempt/repository"
	execmodel "codearena/internal/execution/model"
	gradingmodel "codearena/internal/grading/model"
	"codearena/internal/platform/challengeclient"
	"codearena/internal/platform/submissionclient"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRunTimeout   = 5 * time.Minute
	defaultWatchBuffer  = 8
	defaultMaxCodeBytes = 64 * 1024
)

var errInterrupted = errors.New("attempt was interrupted by a service restart")

// Grader grades one source file against test cases.
type Grader interface {
	Grade(ctx context.Context, input gradingmodel.GradeInput) (gradingmodel.Report, error)
}

// TimeoutConfig bounds calls to the side stores.
type TimeoutConfig struct {
	Store   time.Duration
	Events  time.Duration
	Archive time.Duration
}

// Config holds attempt service dependencies and settings.
// Store, Events and Archive are optional.
type Config struct {
	Grader    Grader
	TestCases challengeclient.TestCaseSource
	Recorder  submissionclient.Recorder

	Store   repository.ObservationRepository
	Events  repository.EventPublisher
	Archive repository.SourceArchive

	MaxCodeBytes int
	RunTimeout   time.Duration
	WatchBuffer  int
	Timeouts     TimeoutConfig

	// Dispatch runs background work. Defaults to a tracked goroutine.
	Dispatch func(func())
}

// AttemptService is safe for concurrent use.
type AttemptService struct {
	grader    Grader
	testCases challengeclient.TestCaseSource
	recorder  submissionclient.Recorder
	store     repository.ObservationRepository
	events    repository.EventPublisher
	archive   repository.SourceArchive

	maxCodeBytes int
	runTimeout   time.Duration
	watchBuffer  int
	timeouts     TimeoutConfig
	dispatch     func(func())
	inflight     sync.WaitGroup

	mu       sync.Mutex
	attempts map[string]*machine.Machine

	// pending holds the newest unsaved observation per attempt; flushing marks attempts with a writer running.
	persistMu sync.Mutex
	pending   map[string]model.Observation
	flushing  map[string]bool

	watchMu     sync.Mutex
	watchers    map[string]map[uint64]*watcher
	nextWatchID uint64
}

// watcher only ever receives increasing versions.
type watcher struct {
	ch   chan model.Observation
	last int64
	sent bool
}

// NewAttemptService creates a new attempt service.
func NewAttemptService(cfg Config) (*AttemptService, error) {
	if cfg.Grader == nil {
		return nil, fmt.Errorf("grader is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case source is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("submission recorder is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.WatchBuffer <= 0 {
		cfg.WatchBuffer = defaultWatchBuffer
	}
	s := &AttemptService{
		grader:       cfg.Grader,
		testCases:    cfg.TestCases,
		recorder:     cfg.Recorder,
		store:        cfg.Store,
		events:       cfg.Events,
		archive:      cfg.Archive,
		maxCodeBytes: cfg.MaxCodeBytes,
		runTimeout:   cfg.RunTimeout,
		watchBuffer:  cfg.WatchBuffer,
		timeouts:     cfg.Timeouts,
		dispatch:     cfg.Dispatch,
		attempts:     make(map[string]*machine.Machine),
		pending:      make(map[string]model.Observation),
		flushing:     make(map[string]bool),
		watchers:     make(map[string]map[uint64]*watcher),
	}
	if s.dispatch == nil {
		s.dispatch = s.goDispatch
	}
	return s, nil
}

// Languages returns the supported language catalog.
func (s *AttemptService) Languages() []execmodel.Language {
	return execmodel.Languages()
}

// Create starts a new idle attempt for challengeID, owned by the calling team.
func (s *AttemptService) Create(ctx context.Context, challengeID string) (model.Observation, error) {
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return model.Observation{}, appErr.ValidationError("challenge_id", "required")
	}
	attemptID := uuid.NewString()
	m := machine.New(attemptID, challengeID, s.observe)
	m.SetTeam(teamFromContext(ctx))

	s.mu.Lock()
	s.attempts[attemptID] = m
	s.mu.Unlock()

	obs := m.Snapshot()
	s.persist(obs)
	logger.Info(ctx, "attempt created",
		zap.String("attempt_id", attemptID),
		zap.String("challenge_id", challengeID),
	)
	return obs, nil
}

// Get returns the latest observation of an attempt.
func (s *AttemptService) Get(ctx context.Context, attemptID string) (model.Observation, error) {
	m, err := s.lookup(ctx, attemptID)
	if err != nil {
		return model.Observation{}, err
	}
	return m.Snapshot(), nil
}

// List returns the calling team's attempts, newest first.
func (s *AttemptService) List(ctx context.Context) ([]model.Observation, error) {
	teamID := teamFromContext(ctx)
	if teamID == "" {
		return nil, appErr.UnauthorizedError("team identity is required to list attempts")
	}
	if s.store != nil {
		return s.store.ListByTeam(ctx, teamID)
	}

	s.mu.Lock()
	machines := make([]*machine.Machine, 0, len(s.attempts))
	for _, m := range s.attempts {
		machines = append(machines, m)
	}
	s.mu.Unlock()

	out := make([]model.Observation, 0)
	for _, m := range machines {
		if obs := m.Snapshot(); obs.TeamID == teamID {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// RunTests starts grading source against the challenge's test cases.
// The returned observation is the testing state; the verdict arrives through Get or Watch.
func (s *AttemptService) RunTests(ctx context.Context, attemptID, source, language string) (model.Observation, error) {
	lang, err := s.validateSource(source, language)
	if err != nil {
		return model.Observation{}, err
	}
	m, err := s.lookup(ctx, attemptID)
	if err != nil {
		return model.Observation{}, err
	}
	if err := s.startOver(ctx, m); err != nil {
		return model.Observation{}, err
	}
	if err := m.BeginTesting(source, lang.Name); err != nil {
		return model.Observation{}, err
	}
	obs := m.Snapshot()
	logger.Info(ctx, "test run started",
		zap.String("attempt_id", obs.AttemptID),
		zap.String("language", lang.Name),
	)

	bg := context.WithValue(context.WithoutCancel(ctx), contextkey.AttemptID, obs.AttemptID)
	s.dispatch(func() {
		s.runTests(bg, m, obs.ChallengeID, source, lang)
	})
	return obs, nil
}

// Submit starts the formal submission of source. Passing tests first is not required.
func (s *AttemptService) Submit(ctx context.Context, attemptID, source, language string) (model.Observation, error) {
	lang, err := s.validateSource(source, language)
	if err != nil {
		return model.Observation{}, err
	}
	m, err := s.lookup(ctx, attemptID)
	if err != nil {
		return model.Observation{}, err
	}
	if err := s.startOver(ctx, m); err != nil {
		return model.Observation{}, err
	}
	if err := m.BeginSubmitting(source, lang.Name); err != nil {
		return model.Observation{}, err
	}
	obs := m.Snapshot()
	logger.Info(ctx, "submission started",
		zap.String("attempt_id", obs.AttemptID),
		zap.String("language", lang.Name),
	)

	bg := context.WithValue(context.WithoutCancel(ctx), contextkey.AttemptID, obs.AttemptID)
	s.dispatch(func() {
		s.submit(bg, m, obs, source, lang)
	})
	return obs, nil
}

// Reset returns a completed or failed attempt to idle. Resetting an idle attempt is a no-op.
func (s *AttemptService) Reset(ctx context.Context, attemptID string) (model.Observation, error) {
	m, err := s.lookup(ctx, attemptID)
	if err != nil {
		return model.Observation{}, err
	}
	if m.Status() == model.StatusIdle {
		return m.Snapshot(), nil
	}
	if err := m.Reset(); err != nil {
		return model.Observation{}, err
	}
	return m.Snapshot(), nil
}

// Watch subscribes to observations of an attempt. The current snapshot is delivered first.
// A slow watcher loses intermediate snapshots but keeps the newest one.
// The returned cancel func must be called to release the subscription.
func (s *AttemptService) Watch(ctx context.Context, attemptID string) (<-chan model.Observation, func(), error) {
	m, err := s.lookup(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}

	w := &watcher{ch: make(chan model.Observation, s.watchBuffer)}
	s.watchMu.Lock()
	s.nextWatchID++
	id := s.nextWatchID
	if s.watchers[attemptID] == nil {
		s.watchers[attemptID] = make(map[uint64]*watcher)
	}
	s.watchers[attemptID][id] = w
	s.watchMu.Unlock()

	// Snapshot after registering so no transition falls between the two.
	snap := m.Snapshot()
	s.watchMu.Lock()
	if _, ok := s.watchers[attemptID][id]; ok {
		w.deliver(snap)
	}
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			defer s.watchMu.Unlock()
			if subs, ok := s.watchers[attemptID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.watchers, attemptID)
				}
			}
			close(w.ch)
		})
	}
	return w.ch, cancel, nil
}

// Shutdown waits for in-flight background work or until ctx is done.
func (s *AttemptService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AttemptService) runTests(ctx context.Context, m *machine.Machine, challengeID, source string, lang execmodel.Language) {
	tc := withTimeout(ctx, s.runTimeout)
	defer tc.cancel()

	cases, err := s.testCases.TestCases(tc.ctx, challengeID)
	if err != nil {
		logger.Warn(ctx, "load test cases failed", zap.String("challenge_id", challengeID), zap.Error(err))
		s.settle(ctx, m.FailTesting(err))
		return
	}
	report, err := s.grader.Grade(tc.ctx, gradingmodel.GradeInput{
		SourceCode: source,
		LanguageID: lang.ID,
		TestCases:  cases,
	})
	if err != nil {
		logger.Warn(ctx, "grading failed", zap.Error(err))
		s.settle(ctx, m.FailTesting(err))
		return
	}
	s.settle(ctx, m.FinishTesting(report))
}

func (s *AttemptService) submit(ctx context.Context, m *machine.Machine, obs model.Observation, source string, lang execmodel.Language) {
	tc := withTimeout(ctx, s.runTimeout)
	defer tc.cancel()

	if s.archive != nil {
		actx := withTimeout(tc.ctx, s.timeouts.Archive)
		key, err := s.archive.Store(actx.ctx, repository.ArchiveEntry{
			AttemptID:   obs.AttemptID,
			ChallengeID: obs.ChallengeID,
			TeamID:      obs.TeamID,
			Language:    lang.Name,
			Source:      source,
		})
		actx.cancel()
		if err != nil {
			logger.Warn(ctx, "archive source failed", zap.Error(err))
		} else {
			logger.Debug(ctx, "source archived", zap.String("object_key", key))
		}
	}

	submissionID, err := s.recorder.SubmitCode(tc.ctx, obs.ChallengeID, source, lang.Name)
	if err != nil {
		logger.Warn(ctx, "record submission failed", zap.Error(err))
		s.settle(ctx, m.FailSubmission(err))
		return
	}
	s.settle(ctx, m.CompleteSubmission(submissionID))
}

// settle logs a transition that could not be applied, e.g. a reset that raced the run.
func (s *AttemptService) settle(ctx context.Context, err error) {
	if err != nil {
		logger.Warn(ctx, "attempt transition rejected", zap.Error(err))
	}
}

func (s *AttemptService) validateSource(source, language string) (execmodel.Language, error) {
	if strings.TrimSpace(source) == "" {
		return execmodel.Language{}, appErr.ValidationError("source_code", "must not be blank")
	}
	if len(source) > s.maxCodeBytes {
		return execmodel.Language{}, appErr.Newf(appErr.CodeTooLarge, "source exceeds %d bytes", s.maxCodeBytes)
	}
	lang, ok := execmodel.LanguageByName(language)
	if !ok {
		return execmodel.Language{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", language)
	}
	return lang, nil
}

// startOver resets a completed or failed attempt so a new action can start.
func (s *AttemptService) startOver(ctx context.Context, m *machine.Machine) error {
	if !m.Status().IsTerminal() {
		return nil
	}
	err := m.Reset()
	if err != nil && !appErr.Is(err, appErr.InvalidStateTransition) {
		return err
	}
	logger.Debug(ctx, "attempt reset for a new action")
	return nil
}

// lookup finds an attempt in memory or restores it from the store.
func (s *AttemptService) lookup(ctx context.Context, attemptID string) (*machine.Machine, error) {
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return nil, appErr.ValidationError("attempt_id", "required")
	}

	s.mu.Lock()
	m, ok := s.attempts[attemptID]
	s.mu.Unlock()
	if !ok {
		restored, err := s.restore(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		m = restored
	}

	if err := authorize(ctx, m.Snapshot()); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *AttemptService) restore(ctx context.Context, attemptID string) (*machine.Machine, error) {
	if s.store == nil {
		return nil, appErr.Newf(appErr.AttemptNotFound, "attempt %s not found", attemptID)
	}
	sctx := withTimeout(ctx, s.timeouts.Store)
	obs, err := s.store.Get(sctx.ctx, attemptID)
	sctx.cancel()
	if err != nil {
		return nil, err
	}
	// Reject other teams before the restore can change anything.
	if err := authorize(ctx, obs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.attempts[attemptID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	m := machine.Restore(obs, s.observe)
	s.attempts[attemptID] = m
	s.mu.Unlock()

	// Background work for a busy attempt died with the process that started it.
	if obs.Status.IsBusy() {
		if obs.Status == model.StatusTesting {
			s.settle(ctx, m.FailTesting(errInterrupted))
		} else {
			s.settle(ctx, m.FailSubmission(errInterrupted))
		}
	}
	logger.Info(ctx, "attempt restored", zap.String("attempt_id", attemptID), zap.String("status", string(obs.Status)))
	return m, nil
}

// observe runs under the machine lock for every transition. Store writes happen off the lock.
func (s *AttemptService) observe(obs model.Observation) {
	s.schedulePersist(obs)
	s.fanOut(obs)
	if obs.Status.IsTerminal() && s.events != nil {
		s.dispatch(func() {
			ctx := context.WithValue(context.Background(), contextkey.AttemptID, obs.AttemptID)
			ectx := withTimeout(ctx, s.timeouts.Events)
			defer ectx.cancel()
			if err := s.events.PublishTerminal(ectx.ctx, obs); err != nil {
				logger.Warn(ctx, "publish attempt event failed", zap.Error(err))
			}
		})
	}
}

// schedulePersist queues obs for the attempt's writer, starting one if none is running.
// Writes for one attempt are serialized and only the newest queued version is saved.
func (s *AttemptService) schedulePersist(obs model.Observation) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	if queued, ok := s.pending[obs.AttemptID]; !ok || obs.Version > queued.Version {
		s.pending[obs.AttemptID] = obs
	}
	if s.flushing[obs.AttemptID] {
		s.persistMu.Unlock()
		return
	}
	s.flushing[obs.AttemptID] = true
	s.persistMu.Unlock()

	s.dispatch(func() {
		s.flushPending(obs.AttemptID)
	})
}

func (s *AttemptService) flushPending(attemptID string) {
	for {
		s.persistMu.Lock()
		obs, ok := s.pending[attemptID]
		if !ok {
			delete(s.flushing, attemptID)
			s.persistMu.Unlock()
			return
		}
		delete(s.pending, attemptID)
		s.persistMu.Unlock()

		s.persist(obs)
	}
}

func (s *AttemptService) persist(obs model.Observation) {
	if s.store == nil {
		return
	}
	ctx := context.WithValue(context.Background(), contextkey.AttemptID, obs.AttemptID)
	sctx := withTimeout(ctx, s.timeouts.Store)
	defer sctx.cancel()
	if err := s.store.Save(sctx.ctx, obs); err != nil {
		logger.Warn(ctx, "persist observation failed", zap.Int64("version", obs.Version), zap.Error(err))
	}
}

func (s *AttemptService) fanOut(obs model.Observation) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, w := range s.watchers[obs.AttemptID] {
		w.deliver(obs)
	}
}

// deliver must be called with watchMu held.
func (w *watcher) deliver(obs model.Observation) {
	if w.sent && obs.Version <= w.last {
		return
	}
	w.last, w.sent = obs.Version, true
	select {
	case w.ch <- obs:
		return
	default:
	}
	// Full: drop the oldest snapshot so the newest one fits.
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- obs:
	default:
	}
}

func (s *AttemptService) goDispatch(fn func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
}

func authorize(ctx context.Context, obs model.Observation) error {
	teamID := teamFromContext(ctx)
	if obs.TeamID == "" || teamID == "" || obs.TeamID == teamID {
		return nil
	}
	return appErr.New(appErr.Forbidden).WithMessage("attempt belongs to another team")
}

func teamFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(contextkey.TeamID).(string); ok {
		return v
	}
	return ""
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
