package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/repositories"
	"github.com/ekaya-inc/ekaya-intake/pkg/retry"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
	"github.com/ekaya-inc/ekaya-intake/pkg/rules"
)

// Defaults for IntakeConfig fields left at zero.
const (
	DefaultMaxRounds         = 5
	DefaultMaxCommitAttempts = 3
	DefaultReasoningTimeout  = 90 * time.Second
)

// Upload is one artifact submitted for import.
type Upload struct {
	Data     []byte
	Filename string
	MIMEType string
}

// IntakeConfig holds the operational limits of the session lifecycle.
type IntakeConfig struct {
	MaxRounds         int
	MaxCommitAttempts int
	ReasoningTimeout  time.Duration
	// CommitRetry is the backoff used inside one commit attempt.
	CommitRetry *retry.Config
}

func (c IntakeConfig) withDefaults() IntakeConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxCommitAttempts <= 0 {
		c.MaxCommitAttempts = DefaultMaxCommitAttempts
	}
	if c.ReasoningTimeout <= 0 {
		c.ReasoningTimeout = DefaultReasoningTimeout
	}
	if c.CommitRetry == nil {
		c.CommitRetry = retry.DefaultConfig()
	}
	return c
}

// IntakeDeps are the collaborators of the intake service.
type IntakeDeps struct {
	Sessions   repositories.ImportSessionRepository
	Contexts   repositories.SessionContextRepository
	Patterns   repositories.LearnedPatternRepository
	Schemas    SchemaProvider
	Extractors *extraction.Registry
	Reasoner   Reasoner
	Sink       sink.CommitSink
	Learning   LearningScheduler
}

// IntakeService drives import sessions from upload to commit.
//
// Every method returns the session's read view. A user-visible failure is
// returned alongside the state as *apperrors.SessionError.
type IntakeService interface {
	// Create starts a session for an upload, or joins the non-terminal
	// session that already holds the same content fingerprint.
	Create(ctx context.Context, up Upload) (*models.SessionState, error)

	GetState(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error)

	// SubmitAnswer appends a user answer to the context and reanalyzes.
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, answer string) (*models.SessionState, error)

	// ResolveUnmappedColumn records the disposition of an unmapped column.
	// Resolving the last open column of a disposition-only round reanalyzes.
	ResolveUnmappedColumn(ctx context.Context, sessionID uuid.UUID, column string, disposition models.Disposition) (*models.SessionState, error)

	// ConfirmMapping pins a source field to a target field as a human override.
	ConfirmMapping(ctx context.Context, sessionID uuid.UUID, sourceField, targetField string) (*models.SessionState, error)

	// Reanalyze runs another analysis round, or retries one that timed out.
	Reanalyze(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error)

	// Confirm commits the session. digest must match the approval summary
	// the user was shown.
	Confirm(ctx context.Context, sessionID uuid.UUID, digest string) (*models.SessionState, error)

	// Cancel stops any in-flight work and cancels the session.
	Cancel(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error)

	// RetryCommit retries a failed commit attempt.
	RetryCommit(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error)
}

type intakeService struct {
	deps   IntakeDeps
	cfg    IntakeConfig
	logger *zap.Logger

	group singleflight.Group
	locks *sessionLocks
	runs  *inFlight
	now   func() time.Time
}

// NewIntakeService creates the session lifecycle service.
func NewIntakeService(deps IntakeDeps, cfg IntakeConfig, logger *zap.Logger) IntakeService {
	return &intakeService{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger.Named("intake-session"),
		locks:  newSessionLocks(),
		runs:   newInFlight(),
		now:    time.Now,
	}
}

var _ IntakeService = (*intakeService)(nil)

// errRunCancelled marks a run whose session was cancelled while it waited on
// extraction, reasoning or the sink.
var errRunCancelled = errors.New("run cancelled")

type createResult struct {
	state  *models.SessionState
	err    error
	owner  uuid.UUID
	joined bool
}

func (s *intakeService) Create(ctx context.Context, up Upload) (*models.SessionState, error) {
	fingerprint := models.ComputeFingerprint(up.Data)
	caller := uuid.New()

	v, err, _ := s.group.Do(fingerprint, func() (any, error) {
		return s.createOrJoin(ctx, up, fingerprint, caller)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*createResult)
	if res.state == nil {
		return nil, res.err
	}
	st := *res.state
	st.Coalesced = res.joined || res.owner != caller
	return &st, res.err
}

// createOrJoin returns infrastructure failures as its error; session failures
// travel inside the result so every coalesced caller sees them.
func (s *intakeService) createOrJoin(ctx context.Context, up Upload, fingerprint string, owner uuid.UUID) (*createResult, error) {
	existing, err := s.deps.Sessions.GetActiveByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("look up active session: %w", err)
	}
	if existing != nil {
		s.logger.Info("Upload coalesced into active session",
			zap.String("session_id", existing.ID.String()),
			zap.String("fingerprint", fingerprint))
		return &createResult{state: models.StateOf(existing), owner: owner, joined: true}, nil
	}

	schema, err := s.deps.Schemas.DescribeSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe destination schema: %w", err)
	}

	now := s.now()
	sess := &models.ImportSession{
		ID:                 uuid.New(),
		ContentFingerprint: fingerprint,
		Filename:           up.Filename,
		Status:             models.SessionStatusCreated,
		SchemaName:         schema.Name,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	prev, err := s.deps.Sessions.GetLatestFailedByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("look up failed session: %w", err)
	}
	if prev != nil {
		sess.RetryOf = &prev.ID
	}

	if err := s.deps.Sessions.Create(ctx, sess); err != nil {
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		// Another process won the race for this fingerprint.
		existing, lookupErr := s.deps.Sessions.GetActiveByFingerprint(ctx, fingerprint)
		if lookupErr != nil || existing == nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return &createResult{state: models.StateOf(existing), owner: owner, joined: true}, nil
	}

	s.logger.Info("Import session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("fingerprint", fingerprint),
		zap.String("filename", up.Filename),
		zap.Bool("retry", sess.RetryOf != nil))

	unlock := s.locks.Lock(sess.ID)
	defer unlock()
	runCtx, done := s.runs.Start(context.WithoutCancel(ctx), sess.ID)
	defer done()

	runErr := s.runPipeline(runCtx, sess, up, schema)
	if errors.Is(runErr, errRunCancelled) {
		runErr = nil
	}
	return &createResult{state: models.StateOf(sess), err: runErr, owner: owner}, nil
}

func (s *intakeService) GetState(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	sess, err := s.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return models.StateOf(sess), nil
}

func (s *intakeService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, answer string) (*models.SessionState, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is empty", apperrors.ErrInvalidArgument)
	}

	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		if !sess.Status.AcceptsUserInput() {
			return invalidTransition(sess, "answer")
		}
		if err := s.appendContext(runCtx, sess, models.ContextKindUserAnswer, answer); err != nil {
			return err
		}
		return s.startRound(runCtx, sess)
	})
}

func (s *intakeService) ResolveUnmappedColumn(ctx context.Context, sessionID uuid.UUID, column string, disposition models.Disposition) (*models.SessionState, error) {
	if !models.IsValidDisposition(disposition) {
		return nil, fmt.Errorf("%w: unknown disposition %q", apperrors.ErrInvalidArgument, disposition)
	}

	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		if !sess.Status.AcceptsUserInput() {
			return invalidTransition(sess, "resolve a column")
		}
		d := sess.Decision(column)
		if d == nil {
			return fmt.Errorf("%w: column %q is not unmapped", apperrors.ErrNotFound, column)
		}
		d.Disposition = disposition
		d.Resolved = true

		if err := s.appendContext(runCtx, sess, models.ContextKindColumnDisposition,
			fmt.Sprintf("Column %q: %s", column, disposition)); err != nil {
			return err
		}

		dispositionRound := models.OnlyUnmappedColumnQuestions(sess.Questions)
		sess.Questions = withoutQuestion(sess.Questions, "unmapped:"+column)

		if sess.Status == models.SessionStatusRoundPending && dispositionRound && len(sess.UnresolvedDecisions()) == 0 {
			return s.startRound(runCtx, sess)
		}
		return s.save(runCtx, sess)
	})
}

func (s *intakeService) ConfirmMapping(ctx context.Context, sessionID uuid.UUID, sourceField, targetField string) (*models.SessionState, error) {
	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		if !sess.Status.AcceptsUserInput() {
			return invalidTransition(sess, "confirm a mapping")
		}
		schema, err := s.deps.Schemas.DescribeSchema(runCtx)
		if err != nil {
			return fmt.Errorf("describe destination schema: %w", err)
		}
		if !schema.HasField(targetField) {
			return fmt.Errorf("%w: %q is not a field of %s", apperrors.ErrInvalidArgument, targetField, schema.Name)
		}
		p := sess.Proposal(sourceField)
		if p == nil {
			return fmt.Errorf("%w: no source field %q", apperrors.ErrNotFound, sourceField)
		}

		target := targetField
		p.TargetField = &target
		p.Status = models.ProposalStatusConfirmed
		p.Confidence = 1.0
		p.Reasoning = "confirmed by user"
		sess.Decisions = rules.SyncDecisions(sess.Proposals, sess.Decisions)
		sess.Questions = withoutQuestion(sess.Questions, "low_confidence:"+sourceField)
		sess.Questions = withoutQuestion(sess.Questions, "unmapped:"+sourceField)

		if err := s.appendContext(runCtx, sess, models.ContextKindMappingOverride,
			fmt.Sprintf("Column %q maps to %q (confirmed by user)", sourceField, targetField)); err != nil {
			return err
		}
		return s.save(runCtx, sess)
	})
}

func (s *intakeService) Reanalyze(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		switch sess.Status {
		case models.SessionStatusRoundPending, models.SessionStatusAnalyzing:
			return s.startRound(runCtx, sess)
		default:
			return invalidTransition(sess, "reanalyze")
		}
	})
}

func (s *intakeService) Confirm(ctx context.Context, sessionID uuid.UUID, digest string) (*models.SessionState, error) {
	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		if sess.Status != models.SessionStatusAwaitingApproval {
			return invalidTransition(sess, "confirm")
		}
		if sess.Summary == nil || digest == "" || digest != sess.Summary.Digest {
			return apperrors.NewSessionError(apperrors.ErrStaleApproval, sess.ID.String(), sess.ContentFingerprint, nil)
		}

		now := s.now()
		sess.Status = models.SessionStatusCommitting
		sess.ConfirmedAt = &now
		if err := s.save(runCtx, sess); err != nil {
			return err
		}
		return s.commit(runCtx, sess)
	})
}

func (s *intakeService) RetryCommit(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	return s.withSession(ctx, sessionID, func(runCtx context.Context, sess *models.ImportSession) error {
		if sess.Status != models.SessionStatusCommitting {
			return invalidTransition(sess, "retry the commit")
		}
		return s.commit(runCtx, sess)
	})
}

func (s *intakeService) Cancel(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	if s.runs.Cancel(sessionID) {
		s.logger.Info("Cancelled in-flight work", zap.String("session_id", sessionID.String()))
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionStatusCancelled {
		return models.StateOf(sess), nil
	}
	if err := s.markCancelled(ctx, sess); err != nil {
		return models.StateOf(sess), err
	}
	return models.StateOf(sess), nil
}

// withSession loads a session under its lock, runs fn with a cancellable run
// context and returns the resulting state.
func (s *intakeService) withSession(ctx context.Context, sessionID uuid.UUID, fn func(runCtx context.Context, sess *models.ImportSession) error) (*models.SessionState, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	runCtx, done := s.runs.Start(context.WithoutCancel(ctx), sessionID)
	defer done()

	err = fn(runCtx, sess)
	if errors.Is(err, errRunCancelled) {
		err = nil
	}
	return models.StateOf(sess), err
}

func (s *intakeService) load(ctx context.Context, sessionID uuid.UUID) (*models.ImportSession, error) {
	sess, err := s.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.deps.Contexts.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session context: %w", err)
	}
	sess.Context = entries
	return sess, nil
}

// save persists the snapshot. Persistence is not interrupted by Cancel.
func (s *intakeService) save(ctx context.Context, sess *models.ImportSession) error {
	sess.UpdatedAt = s.now()
	if err := s.deps.Sessions.Update(context.WithoutCancel(ctx), sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// appendContext adds one entry to the append-only context log.
func (s *intakeService) appendContext(ctx context.Context, sess *models.ImportSession, kind models.ContextEntryKind, content string) error {
	entry := models.ContextEntry{
		Seq:       sess.NextContextSeq(),
		Round:     sess.RoundNumber,
		Kind:      kind,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.deps.Contexts.Append(context.WithoutCancel(ctx), sess.ID, entry); err != nil {
		return fmt.Errorf("append %s to session %s: %w", kind, sess.ID, err)
	}
	sess.Context = append(sess.Context, entry)
	return nil
}

func (s *intakeService) transition(sess *models.ImportSession, target models.SessionStatus) error {
	if !sess.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, sess.Status, target)
	}
	s.logger.Debug("Session transition",
		zap.String("session_id", sess.ID.String()),
		zap.String("from", string(sess.Status)),
		zap.String("to", string(target)),
		zap.Int("round", sess.RoundNumber))
	sess.Status = target
	return nil
}

// fail moves the session to failed and returns the user-visible error.
func (s *intakeService) fail(ctx context.Context, sess *models.ImportSession, reason models.FailureReason, kind error, cause error) error {
	sess.Status = models.SessionStatusFailed
	sess.FailureReason = reason
	if cause != nil {
		sess.FailureDetail = cause.Error()
	}
	sess.Questions = nil

	s.logger.Warn("Import session failed",
		zap.String("session_id", sess.ID.String()),
		zap.String("fingerprint", sess.ContentFingerprint),
		zap.String("reason", string(reason)),
		zap.Error(cause))

	if err := s.save(ctx, sess); err != nil {
		return err
	}
	sessErr := apperrors.NewSessionError(kind, sess.ID.String(), sess.ContentFingerprint, cause)
	sessErr.Retryable = false
	return sessErr
}

func (s *intakeService) markCancelled(ctx context.Context, sess *models.ImportSession) error {
	if err := s.transition(sess, models.SessionStatusCancelled); err != nil {
		return err
	}
	sess.Questions = nil
	s.logger.Info("Import session cancelled", zap.String("session_id", sess.ID.String()))
	return s.save(ctx, sess)
}

// discardIfCancelled is called after every suspending call. A cancelled run
// drops whatever the call returned and leaves the session cancelled.
func (s *intakeService) discardIfCancelled(runCtx context.Context, sess *models.ImportSession) error {
	if runCtx.Err() == nil {
		return nil
	}
	if !sess.Status.IsTerminal() {
		if err := s.markCancelled(runCtx, sess); err != nil {
			return err
		}
	}
	return errRunCancelled
}

// runPipeline routes, extracts, seeds the context and runs the first round.
func (s *intakeService) runPipeline(runCtx context.Context, sess *models.ImportSession, up Upload, schema *models.DestinationSchema) error {
	if err := s.transition(sess, models.SessionStatusDetecting); err != nil {
		return err
	}
	route := router.Route(up.Data, up.MIMEType, up.Filename)
	if !route.Supported {
		return s.fail(runCtx, sess, models.FailureReasonUnsupportedSource, apperrors.ErrUnsupportedSourceType, errors.New(route.Reason))
	}
	sess.SourceType = route.SourceType
	sess.AdapterID = route.AdapterID

	if err := s.transition(sess, models.SessionStatusExtracting); err != nil {
		return err
	}
	if err := s.save(runCtx, sess); err != nil {
		return err
	}

	extractor, ok := s.deps.Extractors.Get(route.AdapterID)
	if !ok {
		return s.fail(runCtx, sess, models.FailureReasonUnsupportedSource, apperrors.ErrUnsupportedSourceType,
			fmt.Errorf("no extractor registered for %s", route.AdapterID))
	}
	res, err := extractor.Extract(runCtx, extraction.Source{
		Data:       up.Data,
		Filename:   up.Filename,
		MIMEType:   route.MIMEType,
		SourceType: route.SourceType,
		AdapterID:  route.AdapterID,
	}, schema)
	if cerr := s.discardIfCancelled(runCtx, sess); cerr != nil {
		return cerr
	}
	if err != nil {
		return s.fail(runCtx, sess, models.FailureReasonExtractionError, apperrors.ErrExtraction, err)
	}
	if len(res.Items) == 0 {
		return s.fail(runCtx, sess, models.FailureReasonExtractionError, apperrors.ErrExtraction,
			extraction.NewError(route.AdapterID, "no candidate items found", nil))
	}

	s.logger.Info("Extraction complete",
		zap.String("session_id", sess.ID.String()),
		zap.String("adapter", route.AdapterID),
		zap.String("result", res.Describe()))

	sess.SourceFields = res.SourceFields
	sess.FieldConfidence = res.FieldConfidence
	sess.Coverage = res.Coverage
	sess.SourceItems = res.Items
	sess.Items = models.CloneItems(res.Items)

	if err := s.transition(sess, models.SessionStatusAnalyzing); err != nil {
		return err
	}
	sess.RoundNumber = 1
	if err := s.seedContext(runCtx, sess, route, res, schema); err != nil {
		return err
	}
	if err := s.save(runCtx, sess); err != nil {
		return err
	}
	return s.analyze(runCtx, sess, schema)
}

// startRound moves a session back into analysis and runs it. Leaving
// round_pending opens a new round; retrying from analyzing does not.
func (s *intakeService) startRound(runCtx context.Context, sess *models.ImportSession) error {
	if sess.Status != models.SessionStatusAnalyzing {
		if err := s.transition(sess, models.SessionStatusAnalyzing); err != nil {
			return err
		}
		sess.RoundNumber++
	}
	schema, err := s.deps.Schemas.DescribeSchema(runCtx)
	if err != nil {
		return fmt.Errorf("describe destination schema: %w", err)
	}
	if err := s.save(runCtx, sess); err != nil {
		return err
	}
	return s.analyze(runCtx, sess, schema)
}

func (s *intakeService) commit(runCtx context.Context, sess *models.ImportSession) error {
	records := BuildRecords(sess)
	rc := *s.cfg.CommitRetry
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.logger.Debug("Retrying sink commit",
			zap.String("session_id", sess.ID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	// The write itself is not interruptible: once the sink accepts the batch
	// the session must end committed, even if Cancel arrived meanwhile.
	// Cancel can still stop the retry loop between attempts.
	writeCtx := context.WithoutCancel(runCtx)
	err := retry.DoIfRetryable(runCtx, &rc, func() error {
		return s.deps.Sink.CommitBatch(writeCtx, sess.ID, records)
	})

	if err != nil {
		if cerr := s.discardIfCancelled(runCtx, sess); cerr != nil {
			return cerr
		}
		sess.CommitAttempts++
		sess.LastError = apperrors.Code(apperrors.ErrCommit)
		s.logger.Warn("Commit attempt failed",
			zap.String("session_id", sess.ID.String()),
			zap.Int("attempt", sess.CommitAttempts),
			zap.Int("max_attempts", s.cfg.MaxCommitAttempts),
			zap.Error(err))
		if sess.CommitAttempts >= s.cfg.MaxCommitAttempts {
			return s.fail(runCtx, sess, models.FailureReasonCommitError, apperrors.ErrCommit, err)
		}
		if saveErr := s.save(runCtx, sess); saveErr != nil {
			return saveErr
		}
		return apperrors.NewSessionError(apperrors.ErrCommit, sess.ID.String(), sess.ContentFingerprint, err)
	}

	if err := s.transition(sess, models.SessionStatusCommitted); err != nil {
		return err
	}
	now := s.now()
	sess.CommittedAt = &now
	sess.LastError = ""
	if err := s.save(runCtx, sess); err != nil {
		return err
	}

	s.logger.Info("Import session committed",
		zap.String("session_id", sess.ID.String()),
		zap.Int("records", len(records)))

	if task, ok := BuildLearningTask(sess); ok && s.deps.Learning != nil {
		s.deps.Learning.Dispatch(task)
	}
	return nil
}

func invalidTransition(sess *models.ImportSession, action string) error {
	return fmt.Errorf("%w: cannot %s while session is %s", apperrors.ErrInvalidTransition, action, sess.Status)
}

func withoutQuestion(qs []models.PendingQuestion, id string) []models.PendingQuestion {
	var out []models.PendingQuestion
	for _, q := range qs {
		if q.ID != id {
			out = append(out, q)
		}
	}
	return out
}
