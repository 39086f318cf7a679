package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/config"
	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/repository"
	"github.com/bookline/bookline-backend/internal/semcache"
	"github.com/bookline/bookline-backend/internal/session"
	"github.com/bookline/bookline-backend/internal/sqlgen"
)

// QueryRunner executes a validated statement and returns its rows.
type QueryRunner interface {
	Run(ctx context.Context, userID string, q *sqlgen.Query) ([]map[string]any, error)
}

// ReadCompiler turns a question into a validated read-only statement.
type ReadCompiler interface {
	Compile(ctx context.Context, question, userID string) (*sqlgen.Query, error)
}

// MutationBuilder produces the validated statement for a booking action.
type MutationBuilder interface {
	Compile(ctx context.Context, action session.BookingAction, info session.AppointmentInfo, userID string) (*sqlgen.Query, error)
}

// TurnCache answers whether an equivalent question was already asked.
type TurnCache interface {
	Search(ctx context.Context, userID, question string) (*semcache.Hit, error)
}

// Deps are the injected collaborators. Nothing here is global state; every
// handle is constructed at process start.
type Deps struct {
	Sessions   repository.SessionStore
	Cache      TurnCache
	Compiler   ReadCompiler
	Mutations  MutationBuilder
	Executor   QueryRunner
	LLM        providers.CompletionProvider
	Embedder   providers.EmbeddingProvider
	Classifier Classifier
	Config     config.ChatConfig
	Log        *logrus.Logger

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator drives the per-user booking state machine. One inbound
// message is processed start-to-finish synchronously; the session record is
// written only after the whole transition has succeeded, so a failed turn
// leaves the stored state untouched.
type Orchestrator struct {
	sessions   repository.SessionStore
	cache      TurnCache
	compiler   ReadCompiler
	mutations  MutationBuilder
	executor   QueryRunner
	llm        providers.CompletionProvider
	embedder   providers.EmbeddingProvider
	classifier Classifier
	cfg        config.ChatConfig
	log        *logrus.Logger
	now        func() time.Time
}

// New creates the orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Classifier == nil {
		d.Classifier = KeywordClassifier{}
	}
	return &Orchestrator{
		sessions:   d.Sessions,
		cache:      d.Cache,
		compiler:   d.Compiler,
		mutations:  d.Mutations,
		executor:   d.Executor,
		llm:        d.LLM,
		embedder:   d.Embedder,
		classifier: d.Classifier,
		cfg:        d.Config,
		log:        d.Log,
		now:        d.Now,
	}
}

// HandleMessage processes one inbound utterance and returns the outgoing
// reply. Transient inference and execution failures propagate to the
// invocation boundary; everything else resolves into a normal reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return msgEmptyUtterance, nil
	}

	sess, err := o.sessions.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		sess = session.New(userID)
		if err := o.sessions.Put(ctx, sess); err != nil {
			return "", fmt.Errorf("failed to create session: %w", err)
		}
	}

	reply, err := o.dispatch(ctx, sess, text)
	if err != nil {
		// The session is not written, so the stored state is exactly
		// what it was before this turn.
		return "", err
	}

	if err := o.save(ctx, sess); err != nil {
		return "", err
	}
	return reply, nil
}

// save writes the session back with a conditional update. A lost race is
// resolved by refreshing the concurrency token and retrying with this turn's
// computed state (last computed turn wins).
func (o *Orchestrator) save(ctx context.Context, sess *session.Session) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := o.sessions.Update(ctx, sess)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("failed to save session: %w", err)
		}

		o.log.WithFields(logrus.Fields{
			"user_id": sess.UserID,
			"attempt": attempt + 1,
		}).Warn("session write conflict, refreshing token and retrying")

		fresh, gerr := o.sessions.Get(ctx, sess.UserID)
		if gerr != nil {
			return fmt.Errorf("failed to reload session after conflict: %w", gerr)
		}
		if fresh == nil {
			return o.sessions.Put(ctx, sess)
		}
		sess.UpdatedAt = fresh.UpdatedAt
	}
	return fmt.Errorf("session write conflict persisted after %d attempts", 3)
}

func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, text string) (string, error) {
	if isAbort(text) {
		sess.ResetBooking()
		return msgAborted, nil
	}

	switch sess.BookingState {
	case session.StateIdle, session.StateCompleted:
		return o.handleIdle(ctx, sess, text)
	case session.StateSelectingSlot:
		return o.handleSelectSlot(ctx, sess, text, false)
	case session.StateSelectingNewSlot:
		return o.handleSelectSlot(ctx, sess, text, true)
	case session.StateSelectingAppointment:
		return o.handleSelectAppointment(ctx, sess, text)
	case session.StateCollecting:
		return o.handleCollecting(ctx, sess, text)
	case session.StateConfirming:
		return o.handleConfirming(ctx, sess, text)
	case session.StateConfirmingRestart:
		return o.handleConfirmingRestart(ctx, sess, text)
	}

	// Unknown stored state: recover rather than wedge the user.
	o.log.WithFields(logrus.Fields{
		"user_id": sess.UserID,
		"state":   sess.BookingState,
	}).Error("session in unknown booking state, resetting")
	sess.ResetBooking()
	return o.handleIdle(ctx, sess, text)
}

// handleIdle either starts a booking flow (intent above threshold) or treats
// the utterance as a data question.
func (o *Orchestrator) handleIdle(ctx context.Context, sess *session.Session, text string) (string, error) {
	intent, err := o.detectIntent(ctx, text)
	if err != nil {
		return "", err
	}

	if intent != nil && intent.Confidence >= o.cfg.IntentThreshold {
		if sess.Info.Started() {
			// A prior unfinished flow exists; ask before discarding it.
			sess.Info.PendingAction = intent.Action
			sess.Info.ResumeState = resumeStateFor(sess.Info)
			sess.BookingState = session.StateConfirmingRestart
			return msgRestartChoice, nil
		}
		return o.startBookingFlow(ctx, sess, intent.Action)
	}

	return o.answerQuestion(ctx, sess, text)
}

// startBookingFlow enters the flow for the detected action, priming the
// relevant selection cache.
func (o *Orchestrator) startBookingFlow(ctx context.Context, sess *session.Session, action session.BookingAction) (string, error) {
	sess.Info = session.AppointmentInfo{BookingAction: action}

	switch action {
	case session.ActionCreate:
		slots, err := o.refreshSlots(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			sess.ResetBooking()
			return msgNoOpenSlots, nil
		}
		sess.BookingState = session.StateSelectingSlot
		return renderSlotList(slots, false), nil

	case session.ActionUpdate, session.ActionCancel:
		appts, err := o.refreshAppointments(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(appts) == 0 {
			sess.ResetBooking()
			return msgNoBookings, nil
		}
		sess.BookingState = session.StateSelectingAppointment
		return renderAppointmentList(appts, action), nil
	}

	sess.ResetBooking()
	return msgCannotAnswer, nil
}

// handleSelectSlot resolves a 1-based index against the cached slot list.
// A stale cache is never used for selection; the listing is re-run first.
func (o *Orchestrator) handleSelectSlot(ctx context.Context, sess *session.Session, text string, toConfirm bool) (string, error) {
	if !sess.SlotsFresh(o.cfg.SlotCacheMaxAge, o.now()) {
		slots, err := o.refreshSlots(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			sess.ResetBooking()
			return msgNoOpenSlots, nil
		}
		return renderSlotList(slots, true), nil
	}

	idx, isIndex := parseIndex(text)
	if isIndex {
		if idx < 1 || idx > len(sess.CachedSlots) {
			return fmt.Sprintf("Please pick a number between 1 and %d.", len(sess.CachedSlots)), nil
		}
		slot := sess.CachedSlots[idx-1]
		sess.Info.SlotID = slot.SlotID
		sess.Info.ConsultantID = slot.ConsultantID
		sess.Info.Consultant = slot.ConsultantName
		sess.Info.Date = slot.Date
		sess.Info.Time = slot.StartTime

		if toConfirm {
			sess.BookingState = session.StateConfirming
			return renderConfirmation(sess.Info), nil
		}
		sess.BookingState = session.StateCollecting
		return promptMissing(sess.Info), nil
	}

	// Not a selection: answer side questions without leaving the state.
	if o.classifier.Classify(text) == ClassQuery {
		return o.answerQuestion(ctx, sess, text)
	}
	return fmt.Sprintf("Please reply with a slot number (1-%d), or ask me a question about the slots.", len(sess.CachedSlots)), nil
}

// handleSelectAppointment resolves a 1-based index against the cached
// appointment list.
func (o *Orchestrator) handleSelectAppointment(ctx context.Context, sess *session.Session, text string) (string, error) {
	if !sess.AppointmentsFresh(o.cfg.SlotCacheMaxAge, o.now()) {
		appts, err := o.refreshAppointments(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(appts) == 0 {
			sess.ResetBooking()
			return msgNoBookings, nil
		}
		return renderAppointmentList(appts, sess.Info.BookingAction), nil
	}

	idx, isIndex := parseIndex(text)
	if isIndex {
		if idx < 1 || idx > len(sess.CachedAppointments) {
			return fmt.Sprintf("Please pick a number between 1 and %d.", len(sess.CachedAppointments)), nil
		}
		appt := sess.CachedAppointments[idx-1]
		sess.Info.AppointmentID = appt.AppointmentID
		sess.Info.CustomerID = appt.CustomerID
		sess.Info.Consultant = appt.ConsultantName
		sess.Info.Date = appt.Date
		sess.Info.Time = appt.Time

		if sess.Info.BookingAction == session.ActionCancel {
			sess.BookingState = session.StateConfirming
			return renderConfirmation(sess.Info), nil
		}

		// Update: pick the replacement slot next.
		slots, err := o.refreshSlots(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			sess.ResetBooking()
			return msgNoOpenSlots, nil
		}
		sess.BookingState = session.StateSelectingNewSlot
		return renderSlotList(slots, false), nil
	}

	if o.classifier.Classify(text) == ClassQuery {
		return o.answerQuestion(ctx, sess, text)
	}
	return fmt.Sprintf("Please reply with a booking number (1-%d).", len(sess.CachedAppointments)), nil
}

// handleCollecting merges extracted fields and moves on once nothing
// required is missing.
func (o *Orchestrator) handleCollecting(ctx context.Context, sess *session.Session, text string) (string, error) {
	if o.classifier.Classify(text) == ClassQuery {
		return o.answerQuestion(ctx, sess, text)
	}

	patch, err := o.extractFields(ctx, text)
	if err != nil {
		return "", err
	}
	sess.Info.Apply(patch)

	if len(sess.Info.Missing()) == 0 {
		sess.BookingState = session.StateConfirming
		return renderConfirmation(sess.Info), nil
	}
	return promptMissing(sess.Info), nil
}

// handleConfirming executes the stored action on an affirmative, merges
// field corrections otherwise.
func (o *Orchestrator) handleConfirming(ctx context.Context, sess *session.Session, text string) (string, error) {
	if isAffirmative(text) {
		q, err := o.mutations.Compile(ctx, sess.Info.BookingAction, sess.Info, sess.UserID)
		if err != nil {
			if _, ok := sqlgen.IsCompileError(err); ok {
				// Stay in confirming; the user can try again.
				return msgMutationFailed, nil
			}
			return "", err
		}

		if _, err := o.executor.Run(ctx, sess.UserID, q); err != nil {
			// Not applied; stored state stays in confirming.
			return "", err
		}

		action := sess.Info.BookingAction
		sess.BookingState = session.StateCompleted
		sess.ResetBooking() // completed folds straight back to idle
		return completionMessage(action), nil
	}

	patch, err := o.extractFields(ctx, text)
	if err != nil {
		return "", err
	}
	if !patch.Empty() {
		sess.Info.Apply(patch)
		return renderConfirmation(sess.Info), nil
	}
	return msgConfirmHint, nil
}

// handleConfirmingRestart resolves the continue-or-restart decision.
func (o *Orchestrator) handleConfirmingRestart(ctx context.Context, sess *session.Session, text string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(lower, "continue") || strings.Contains(lower, "resume"):
		resume := sess.Info.ResumeState
		if !resume.Valid() || resume == session.StateIdle {
			resume = resumeStateFor(sess.Info)
		}
		sess.Info.PendingAction = ""
		sess.Info.ResumeState = ""
		sess.BookingState = resume
		return o.resumePrompt(ctx, sess)

	case strings.Contains(lower, "restart") || strings.Contains(lower, "start over") || strings.Contains(lower, "start fresh"):
		pending := sess.Info.PendingAction
		sess.ResetBooking()
		if pending != "" {
			return o.startBookingFlow(ctx, sess, pending)
		}
		return "Okay, we're starting fresh. What would you like to do?", nil
	}

	return msgRestartChoice, nil
}

// resumePrompt re-renders whatever the resumed state was waiting for.
func (o *Orchestrator) resumePrompt(ctx context.Context, sess *session.Session) (string, error) {
	switch sess.BookingState {
	case session.StateSelectingSlot, session.StateSelectingNewSlot:
		if !sess.SlotsFresh(o.cfg.SlotCacheMaxAge, o.now()) {
			slots, err := o.refreshSlots(ctx, sess)
			if err != nil {
				return "", err
			}
			return renderSlotList(slots, true), nil
		}
		return renderSlotList(sess.CachedSlots, false), nil
	case session.StateSelectingAppointment:
		if !sess.AppointmentsFresh(o.cfg.SlotCacheMaxAge, o.now()) {
			appts, err := o.refreshAppointments(ctx, sess)
			if err != nil {
				return "", err
			}
			return renderAppointmentList(appts, sess.Info.BookingAction), nil
		}
		return renderAppointmentList(sess.CachedAppointments, sess.Info.BookingAction), nil
	case session.StateConfirming:
		return renderConfirmation(sess.Info), nil
	default:
		return promptMissing(sess.Info), nil
	}
}

// answerQuestion serves a data question: semantic cache first, then the
// compile-execute-format pipeline. The resulting turn is appended to the
// context window on a miss.
func (o *Orchestrator) answerQuestion(ctx context.Context, sess *session.Session, text string) (string, error) {
	hit, err := o.cache.Search(ctx, sess.UserID, text)
	if err != nil {
		return "", err
	}
	if hit != nil {
		o.log.WithFields(logrus.Fields{
			"user_id":    sess.UserID,
			"similarity": hit.Similarity,
		}).Debug("semantic cache hit")
		return hit.Answer, nil
	}

	q, err := o.compiler.Compile(ctx, text, authedID(sess))
	if err != nil {
		if _, ok := sqlgen.IsCompileError(err); ok {
			return msgCannotAnswer, nil
		}
		return "", err
	}

	rows, err := o.executor.Run(ctx, sess.UserID, q)
	if err != nil {
		return "", err
	}

	answer, err := o.formatAnswer(ctx, text, rows)
	if err != nil {
		return "", err
	}

	// Cache the turn for next time. A failed embedding only costs the
	// cache entry its vector.
	vector, eerr := o.embedder.Embed(ctx, text)
	if eerr != nil {
		o.log.WithField("user_id", sess.UserID).WithError(eerr).Warn("embedding failed, caching turn without vector")
		vector = nil
	}
	sess.AppendTurn(session.Turn{
		UserText:      text,
		AssistantText: answer,
		Vector:        vector,
		Metadata: map[string]any{
			"sql":       q.SQL,
			"row_count": len(rows),
		},
		Timestamp: o.now(),
	}, o.cfg.ContextWindow)

	return answer, nil
}

// authedID returns the user id for my/mine filtering, empty when the session
// is not authenticated.
func authedID(sess *session.Session) string {
	if sess.IsAuthenticated {
		return sess.UserID
	}
	return ""
}

// resumeStateFor derives where an unfinished flow should pick up from what
// it has already collected.
func resumeStateFor(info session.AppointmentInfo) session.BookingState {
	if len(info.Missing()) == 0 {
		return session.StateConfirming
	}
	if info.SlotID != 0 {
		return session.StateCollecting
	}
	switch info.BookingAction {
	case session.ActionUpdate, session.ActionCancel:
		if info.AppointmentID != 0 {
			if info.BookingAction == session.ActionCancel {
				return session.StateConfirming
			}
			return session.StateSelectingNewSlot
		}
		return session.StateSelectingAppointment
	default:
		return session.StateSelectingSlot
	}
}

func completionMessage(action session.BookingAction) string {
	switch action {
	case session.ActionCancel:
		return "Done — your booking has been cancelled."
	case session.ActionUpdate:
		return "Done — your booking has been moved. See you then!"
	default:
		return "All set! Your appointment is booked and pending confirmation."
	}
}

var abortPhrases = []string{
	"never mind", "nevermind", "forget it", "cancel this", "cancel that",
	"stop this", "abort", "drop it",
}

// isAbort detects flow-abandonment phrasing. Checked before anything else in
// every state.
func isAbort(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range abortPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var affirmatives = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true,
	"ok": true, "okay": true, "sure": true, "confirm": true,
	"go ahead": true, "do it": true, "correct": true,
}

func isAffirmative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimRight(lower, ".!")
	return affirmatives[lower]
}

// parseIndex reads a bare 1-based selection like "2" or "#2".
func parseIndex(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "#")
	trimmed = strings.TrimSuffix(trimmed, ".")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return n, true
}
