package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spboyer/servicecounter/internal/agents"
	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
	"github.com/spboyer/servicecounter/internal/results"
	"github.com/spboyer/servicecounter/internal/session"
	"github.com/spboyer/servicecounter/internal/transcript"
)

// DefaultPollInterval is how long the loop waits between polls of an idle front end.
const DefaultPollInterval = 100 * time.Millisecond

// FrontEnd is what the loop needs from the customer-facing UI.
type FrontEnd interface {
	// Poll returns the next customer turn without blocking.
	Poll() (models.CustomerTurn, bool)
	Display(reply string) error
	SetBusy(busy bool)
	Closed() bool
}

// Result is the outcome of one finished session.
type Result struct {
	State   models.SessionState
	Outcome *models.ReviewOutcome
	// Reviews holds every correctness review made during the session, in order.
	Reviews        []models.CorrectnessReview
	Ledger         *ledger.Ledger
	TranscriptPath string
}

// Loop drives one customer session through the counter, its collaborators
// and the observer, and scores it at the end. A Loop runs once.
type Loop struct {
	job      *models.JobDescription
	catalog  *models.TaskCatalog
	frontEnd FrontEnd
	store    results.Store

	counter  *agents.Counter
	broker   *agents.Broker
	reviewer *agents.Reviewer
	observer *agents.Observer

	info          models.SessionInfo
	pollInterval  time.Duration
	events        session.Logger
	transcriptDir string
	now           func() time.Time

	listenerMu sync.Mutex
	listeners  []StateListener

	state   models.SessionState
	ledger  *ledger.Ledger
	reviews []models.CorrectnessReview
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithSessionInfo sets the values computed once at session start.
func WithSessionInfo(info models.SessionInfo) LoopOption {
	return func(l *Loop) {
		l.info = info
	}
}

// WithPollInterval sets how long to wait when the front end has no input.
func WithPollInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithEventLogger records session events to logger.
func WithEventLogger(logger session.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.events = logger
		}
	}
}

// WithTranscriptDir exports the finished session's transcript into dir.
func WithTranscriptDir(dir string) LoopOption {
	return func(l *Loop) {
		l.transcriptDir = dir
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		l.now = now
	}
}

// NewLoop creates a session loop. Every agent talks to o.
func NewLoop(o oracle.Oracle, job *models.JobDescription, catalog *models.TaskCatalog, frontEnd FrontEnd, store results.Store, opts ...LoopOption) *Loop {
	l := &Loop{
		job:          job,
		catalog:      catalog,
		frontEnd:     frontEnd,
		store:        store,
		pollInterval: DefaultPollInterval,
		events:       session.NopLogger{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.info.StartedAt.IsZero() {
		l.info.StartedAt = l.now()
	}

	l.counter = agents.NewCounter(o, job)
	l.broker = agents.NewBroker(o, job)
	l.reviewer = agents.NewReviewer(o, job, l.info.StartedAt)
	l.observer = agents.NewObserver(o, job)
	return l
}

// OnStateChange registers a state listener.
func (l *Loop) OnStateChange(listener StateListener) {
	l.listenerMu.Lock()
	defer l.listenerMu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// Run converses with the customer until the observer ends the session, the
// front end closes or ctx is cancelled, then scores the session, appends it
// to the result store and exports its transcript.
//
// Oracle timeouts and unparseable analysis, delegation or observation
// responses end the session with an error and nothing is stored.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	l.state = models.SessionState{Running: true}
	l.ledger = ledger.New()
	l.reviews = nil

	taskCount := 0
	if l.catalog != nil {
		taskCount = l.catalog.Len()
	}
	slog.Info("Session started", "session", l.info.ID, "workplace", l.job.Workplace, "jobType", l.job.JobType)
	l.emit(session.EventSessionStart, session.SessionStartData(l.job.Workplace, l.job.JobType, l.info.Model, taskCount))

	if err := l.converse(ctx); err != nil {
		slog.Error("Session failed", "session", l.info.ID, "turns", l.state.Turns, "error", err)
		l.emit(session.EventError, session.ErrorData(err.Error(), map[string]any{"turns": l.state.Turns}))
		return l.result(nil, ""), err
	}

	return l.terminate(context.WithoutCancel(ctx))
}

func (l *Loop) converse(ctx context.Context) error {
	for l.state.Running {
		if ctx.Err() != nil {
			slog.Info("Session cancelled", "session", l.info.ID)
			return nil
		}
		if l.frontEnd.Closed() {
			slog.Info("Front end closed", "session", l.info.ID)
			return nil
		}

		turn, ok := l.frontEnd.Poll()
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(l.pollInterval):
			}
			continue
		}

		if err := l.handleTurn(ctx, turn); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				slog.Info("Session cancelled mid-turn", "session", l.info.ID)
				return nil
			}
			return err
		}
	}
	return nil
}

func (l *Loop) handleTurn(ctx context.Context, turn models.CustomerTurn) error {
	l.state.Turns++
	l.enter(StateWaitingForInput)

	l.frontEnd.SetBusy(true)
	defer l.frontEnd.SetBusy(false)

	slog.Debug("Customer turn received", "turn", l.state.Turns, "hasImage", turn.ImagePath != "")
	l.emit(session.EventTurnStart, session.TurnStartData(l.state.Turns, turn.Text, turn.ImagePath != ""))

	msg := ledger.Message{Role: models.RoleCustomer, Content: turn.Text}
	if turn.ImagePath != "" {
		msg.Images = []string{turn.ImagePath}
	}
	l.ledger = l.ledger.Extend(msg)

	l.enter(StateAnalyzing)
	analysis, next, err := l.counter.AnalyzeSituation(ctx, turn.Text, turn.ImagePath, l.ledger)
	l.adopt(next)
	if err != nil {
		return fmt.Errorf("analyzing customer turn: %w", err)
	}

	target, ok := models.ParseDelegationTarget(analysis.NeedHelpColleague)
	if !ok || target != models.DelegateNone {
		l.enter(StateDelegating)
		if err := l.delegate(ctx, turn, target, ok, analysis.NeedHelpColleague); err != nil {
			return err
		}
	}

	l.enter(StateResponding)
	if err := l.respond(ctx, turn); err != nil {
		return err
	}
	if !l.state.Running {
		return nil
	}

	l.enter(StateObserving)
	return l.observe(ctx)
}

func (l *Loop) delegate(ctx context.Context, turn models.CustomerTurn, target models.DelegationTarget, ok bool, tag string) error {
	if !ok {
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleCounter,
			Field:  "need_help_colleague",
			Value:  tag,
			Detail: "unknown collaborator",
		})
		return nil
	}
	if target != models.DelegateNone && !l.onRoster(target) {
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleCounter,
			Field:  "need_help_colleague",
			Value:  tag,
			Detail: "collaborator is not available at this counter",
		})
		return nil
	}

	switch target {
	case models.DelegateBroker:
		return l.identifyTask(ctx, turn)
	case models.DelegateReviewer:
		return l.reviewSubmission(ctx, turn)
	default:
		return nil
	}
}

func (l *Loop) onRoster(target models.DelegationTarget) bool {
	if len(l.job.Collaborators) == 0 {
		return true
	}
	for _, c := range l.job.Collaborators {
		if t, ok := models.ParseDelegationTarget(c); ok && t == target {
			return true
		}
	}
	return false
}

func (l *Loop) identifyTask(ctx context.Context, turn models.CustomerTurn) error {
	l.emit(session.EventDelegation, session.DelegationData(models.DelegateBroker.String(), l.activeTaskID()))

	identification, next, err := l.broker.IdentifyTask(ctx, turn.Text, l.catalog, l.ledger)
	l.adopt(next)
	if err != nil {
		return fmt.Errorf("identifying task: %w", err)
	}

	id, kind := parseTaskNumber(identification.TaskNumber)
	switch kind {
	case taskNumberNone:
		slog.Debug("Broker found no matching task", "nextAction", identification.NextAction)
		return nil
	case taskNumberInvalid:
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleBroker,
			Field:  "task_number",
			Value:  fmt.Sprint(identification.TaskNumber),
			Detail: "not a positive integer",
		})
		return nil
	}

	if _, found := l.catalog.Lookup(id); !found {
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleBroker,
			Field:  "task_number",
			Value:  fmt.Sprint(identification.TaskNumber),
			Detail: "no such task in the catalog",
		})
		return nil
	}

	slog.Info("Active task set", "task", id)
	l.state.ActiveTask = &id
	return nil
}

func (l *Loop) reviewSubmission(ctx context.Context, turn models.CustomerTurn) error {
	if l.state.ActiveTask == nil {
		l.recordIssue(models.Issue{
			Kind:   models.IssueMissingPrecondition,
			Role:   models.RoleReviewer,
			Field:  "active_task",
			Detail: "no task has been identified yet",
		})
		return nil
	}

	task, _ := l.catalog.Lookup(*l.state.ActiveTask)
	l.emit(session.EventDelegation, session.DelegationData(models.DelegateReviewer.String(), task.ID))

	if turn.ImagePath == "" {
		l.recordIssue(models.Issue{
			Kind:   models.IssueResourceUnavailable,
			Role:   models.RoleReviewer,
			Field:  "submission",
			Detail: "no image was attached to this turn",
		})
	}

	assessment, next, err := l.reviewer.ReviewCorrectnessWithImage(ctx, task, turn.ImagePath, l.ledger)
	l.adopt(next)
	if err != nil {
		return fmt.Errorf("reviewing submission: %w", err)
	}

	review := models.CorrectnessReview{
		Score:          assessment.Score,
		Reason:         assessment.Reason,
		NeedCorrection: assessment.NeedCorrection,
	}
	approved, ok := binaryFlag(assessment.IsApproved)
	if !ok {
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleReviewer,
			Field:  "is_approved",
			Value:  fmt.Sprint(assessment.IsApproved),
			Detail: "expected 0 or 1, treated as rejected",
		})
	}
	review.Approved = approved && ok

	slog.Info("Submission reviewed", "task", task.ID, "approved", review.Approved, "score", review.Score)
	l.reviews = append(l.reviews, review)
	return nil
}

func (l *Loop) respond(ctx context.Context, turn models.CustomerTurn) error {
	reply, next, err := l.counter.RespondWithContext(ctx, turn.Text, l.ledger)
	l.adopt(next)
	if err != nil {
		if errors.Is(err, oracle.ErrTimeout) || ctx.Err() != nil {
			return fmt.Errorf("responding to customer: %w", err)
		}
		slog.Warn("Counter produced no reply", "turn", l.state.Turns, "error", err)
		return nil
	}

	l.emit(session.EventReply, session.ReplyData(reply.Response))
	if err := l.frontEnd.Display(reply.Response); err != nil {
		l.recordIssue(models.Issue{
			Kind:   models.IssueResourceUnavailable,
			Role:   models.RoleCounter,
			Field:  "display",
			Detail: err.Error(),
		})
		l.state.Running = false
	}
	return nil
}

func (l *Loop) observe(ctx context.Context) error {
	observation, next, err := l.observer.ObserveToContinueInteraction(ctx, l.taskContext(), l.ledger)
	l.adopt(next)
	if err != nil {
		return fmt.Errorf("observing conversation: %w", err)
	}

	keepGoing, ok := binaryFlag(observation.Flag)
	if !ok {
		l.recordIssue(models.Issue{
			Kind:   models.IssueInvalidFieldValue,
			Role:   models.RoleObserver,
			Field:  "is_need_of_continuation",
			Value:  fmt.Sprint(observation.Flag),
			Detail: "expected 0 or 1",
		})
		return nil
	}

	slog.Debug("Observer verdict", "continue", keepGoing, "reason", observation.Reason)
	l.emit(session.EventVerdict, session.VerdictData(keepGoing, observation.Reason))
	l.state.Running = keepGoing
	return nil
}

// terminate runs the final review exactly once, then stores and exports
// the session.
func (l *Loop) terminate(ctx context.Context) (*Result, error) {
	l.state.Running = false
	l.enter(StateTerminated)

	outcome, next, err := l.reviewer.ReviewScore(ctx, l.job.Indicators, l.ledger)
	l.adopt(next)
	if err != nil {
		err = fmt.Errorf("scoring session: %w", err)
		l.emit(session.EventError, session.ErrorData(err.Error(), nil))
		return l.result(nil, ""), err
	}

	completedAt := l.now()
	entry := results.Entry{
		GeneratedAt: completedAt,
		SessionID:   l.info.ID,
		Model:       l.info.Model,
		Workplace:   l.job.Workplace,
		JobType:     l.job.JobType,
		ActiveTask:  l.state.ActiveTask,
		Turns:       l.state.Turns,
		Outcome:     outcome,
	}
	if err := l.store.Append(entry); err != nil {
		return l.result(outcome, ""), fmt.Errorf("storing result: %w", err)
	}

	var transcriptPath string
	if l.transcriptDir != "" {
		record := transcript.BuildSessionTranscript(l.info, l.job, &l.state, l.ledger, outcome, completedAt)
		transcriptPath, err = transcript.Write(l.transcriptDir, record)
		if err != nil {
			return l.result(outcome, ""), err
		}
		slog.Debug("Transcript written", "path", transcriptPath)
	}

	slog.Info("Session complete", "session", l.info.ID, "turns", l.state.Turns, "score", outcome.TotalScore)
	l.emit(session.EventSessionEnd, session.SessionCompleteData(
		l.state.Turns, len(l.state.Issues), outcome.TotalScore, completedAt.Sub(l.info.StartedAt).Milliseconds()))

	return l.result(outcome, transcriptPath), nil
}

// recordIssue keeps a non-fatal problem in the session state and as a
// system turn in the ledger.
func (l *Loop) recordIssue(issue models.Issue) {
	issue.Step = l.state.StepCount
	l.state.Issues = append(l.state.Issues, issue)
	l.ledger = l.ledger.Note("issue: " + issue.Error())

	slog.Warn("Issue recorded", "kind", issue.Kind, "role", issue.Role, "field", issue.Field, "value", issue.Value)
	l.emit(session.EventIssue, session.IssueData(string(issue.Kind), string(issue.Role), issue.Field, issue.Value, issue.Detail))
}

func (l *Loop) enter(s State) {
	l.state.StepCount++
	slog.Debug("Entering state", "state", s, "step", l.state.StepCount)

	l.listenerMu.Lock()
	listeners := make([]StateListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.listenerMu.Unlock()

	change := StateChange{State: s, Step: l.state.StepCount, Turn: l.state.Turns}
	for _, listener := range listeners {
		listener(change)
	}
}

// adopt takes the ledger an agent returned, which may be nil on failure.
func (l *Loop) adopt(next *ledger.Ledger) {
	if next != nil {
		l.ledger = next
	}
}

func (l *Loop) activeTaskID() int {
	if l.state.ActiveTask == nil {
		return 0
	}
	return *l.state.ActiveTask
}

func (l *Loop) taskContext() string {
	if l.state.ActiveTask == nil {
		return ""
	}
	task, ok := l.catalog.Lookup(*l.state.ActiveTask)
	if !ok {
		return ""
	}
	if task.Content == "" {
		return fmt.Sprintf("%d: %s", task.ID, task.Name)
	}
	return fmt.Sprintf("%d: %s - %s", task.ID, task.Name, task.Content)
}

func (l *Loop) emit(t session.EventType, data map[string]any) {
	if err := l.events.Log(session.NewEvent(t, data)); err != nil {
		slog.Debug("Failed to write session event", "type", t, "error", err)
	}
}

func (l *Loop) result(outcome *models.ReviewOutcome, transcriptPath string) *Result {
	state := l.state
	state.Issues = append([]models.Issue(nil), l.state.Issues...)
	return &Result{
		State:          state,
		Outcome:        outcome,
		Reviews:        append([]models.CorrectnessReview(nil), l.reviews...),
		Ledger:         l.ledger,
		TranscriptPath: transcriptPath,
	}
}
