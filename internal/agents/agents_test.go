package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
	"github.com/spboyer/servicecounter/internal/oracle/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testJob() *models.JobDescription {
	return &models.JobDescription{
		Workplace:     "City Hall",
		JobType:       "resident services",
		Language:      "English",
		Collaborators: []string{"broker", "reviewer"},
		Indicators: []models.Indicator{
			{Name: "politeness", Definition: "speaks courteously"},
			{Name: "accuracy", Definition: "gives correct guidance"},
		},
	}
}

// answer returns a DoAndReturn func that responds with raw and records the
// exchange the way real oracles do.
func answer(raw string, seen *oracle.Request) func(context.Context, *oracle.Request) (*oracle.Response, error) {
	return func(_ context.Context, req *oracle.Request) (*oracle.Response, error) {
		if seen != nil {
			*seen = *req
		}
		return &oracle.Response{Raw: raw, Ledger: oracle.Record(req, raw)}, nil
	}
}

func fenced(body string) string {
	return "Here you go.\n\n```json\n" + body + "\n```\n"
}

func TestCounterAnalyzeSituation(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"desire": ["renew permit", "ask fees"],
		"current_situation": "just arrived",
		"language": "English",
		"own_thought": "need the procedure",
		"need_help_colleague": "broker"
	}`), &seen))

	start := ledger.New().Extend(ledger.Message{Role: models.RoleCustomer, Content: "I want to renew my permit"})

	analysis, next, err := NewCounter(o, testJob()).AnalyzeSituation(context.Background(), "I want to renew my permit", "", start)
	require.NoError(t, err)

	require.Equal(t, "renew permit; ask fees", analysis.Desire)
	require.Equal(t, "broker", analysis.NeedHelpColleague)
	require.Equal(t, 2, next.Len())
	require.Equal(t, 1, start.Len(), "input ledger must not change")
	require.Len(t, next.Transcript(), next.Len())

	require.Equal(t, models.RoleCounter, seen.Role)
	require.Contains(t, seen.SystemInstruction, "City Hall")
	require.Contains(t, seen.SystemInstruction, "broker, reviewer")
	require.Contains(t, seen.UserInstruction, "I want to renew my permit")
	require.Empty(t, seen.ImagePaths)
}

func TestCounterAnalyzeSituationWithImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"desire": "check my form", "current_situation": "form submitted",
		"language": "English", "own_thought": "", "need_help_colleague": "reviewer"
	}`), &seen))

	_, _, err := NewCounter(o, testJob()).AnalyzeSituation(context.Background(), "here is my form", "/tmp/form.png", ledger.New())
	require.NoError(t, err)
	require.Equal(t, []string{"/tmp/form.png"}, seen.ImagePaths)
	require.Contains(t, seen.UserInstruction, "submitted")
}

func TestCounterAnalyzeSituationMissingField(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	raw := fenced(`{"desire": "x", "language": "English"}`)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(raw, nil))

	analysis, next, err := NewCounter(o, testJob()).AnalyzeSituation(context.Background(), "hi", "", ledger.New())
	require.Nil(t, analysis)

	var schemaErr *SchemaExtractionError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, models.RoleCounter, schemaErr.Role)
	require.Equal(t, raw, schemaErr.Payload)

	// the exchange is still part of the record
	require.Equal(t, 1, next.Len())
}

func TestCounterAnalyzeSituationNoJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer("I am not sure what to say.", nil))

	_, _, err := NewCounter(o, testJob()).AnalyzeSituation(context.Background(), "hi", "", ledger.New())

	var schemaErr *SchemaExtractionError
	require.ErrorAs(t, err, &schemaErr)
	require.ErrorIs(t, err, oracle.ErrNoJSONBlock)
}

func TestCounterOracleErrorPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, oracle.ErrTimeout)

	_, next, err := NewCounter(o, testJob()).RespondWithContext(context.Background(), "hi", ledger.New())
	require.ErrorIs(t, err, oracle.ErrTimeout)
	require.Nil(t, next)

	var schemaErr *SchemaExtractionError
	require.False(t, errors.As(err, &schemaErr))
}

func TestCounterRespondWithContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(
		`{"response": "Please fill in form A.", "language": "English", "own_thought": "task 1"}`, nil))

	reply, next, err := NewCounter(o, testJob()).RespondWithContext(context.Background(), "what now?", ledger.New())
	require.NoError(t, err)
	require.Equal(t, "Please fill in form A.", reply.Response)
	require.Equal(t, 1, next.Len())
}

func TestCounterRespondWithContextEmptyResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(
		fenced(`{"response": "", "language": "English", "own_thought": ""}`), nil))

	reply, _, err := NewCounter(o, testJob()).RespondWithContext(context.Background(), "what now?", ledger.New())
	require.Nil(t, reply)

	var schemaErr *SchemaExtractionError
	require.ErrorAs(t, err, &schemaErr)
}

func TestBrokerIdentifyTask(t *testing.T) {
	catalog, err := models.NewTaskCatalog(
		models.Task{ID: 1, Name: "Renew permit", Content: "renewal of a residence permit"},
		models.Task{ID: 2, Name: "Change address"},
	)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"task_number": 1, "requirements": "form A", "status": "started",
		"next_action": "fill in form A", "own_thought": ""
	}`), &seen))

	task, next, err := NewBroker(o, testJob()).IdentifyTask(context.Background(), "renew my permit", catalog, ledger.New())
	require.NoError(t, err)
	require.Equal(t, json.Number("1"), task.TaskNumber)
	require.Equal(t, "fill in form A", task.NextAction)
	require.Equal(t, 1, next.Len())

	require.Equal(t, models.RoleBroker, seen.Role)
	require.Contains(t, seen.UserInstruction, "1: Renew permit - renewal of a residence permit")
	require.Contains(t, seen.UserInstruction, "2: Change address")
}

func TestBrokerIdentifyTaskNone(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"task_number": "none", "requirements": "", "status": "",
		"next_action": "ask more", "own_thought": ""
	}`), nil))

	task, _, err := NewBroker(o, testJob()).IdentifyTask(context.Background(), "hello", nil, ledger.New())
	require.NoError(t, err)
	require.Equal(t, "none", task.TaskNumber)
}

func TestObserverObserveToContinueInteraction(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"is_need_of_continuation": 0, "reason": "customer said goodbye", "own_thought": ""
	}`), &seen))

	obs, next, err := NewObserver(o, testJob()).ObserveToContinueInteraction(context.Background(), "Renew permit", ledger.New())
	require.NoError(t, err)
	require.Equal(t, json.Number("0"), obs.Flag)
	require.Equal(t, "customer said goodbye", obs.Reason)
	require.Equal(t, 1, next.Len())
	require.Equal(t, models.RoleObserver, seen.Role)
	require.Contains(t, seen.UserInstruction, "Active procedure: Renew permit")
}

func TestObserverMissingFlag(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{"reason": "?"}`), nil))

	_, _, err := NewObserver(o, testJob()).ObserveToContinueInteraction(context.Background(), "", ledger.New())

	var schemaErr *SchemaExtractionError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, models.RoleObserver, schemaErr.Role)
}

func TestReviewerCorrectness(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"is_approved": 1, "correctness_score": 92, "reason": "complete", "need_correction": ""
	}`), &seen))

	task := models.Task{ID: 1, Name: "Renew permit", Reference: "/refs/form-a.png"}
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	review, next, err := NewReviewer(o, testJob(), start).ReviewCorrectnessWithImage(context.Background(), task, "/uploads/mine.png", ledger.New())
	require.NoError(t, err)
	require.Equal(t, json.Number("1"), review.IsApproved)
	require.Equal(t, 92.0, review.Score)
	require.Equal(t, 1, next.Len())

	require.Equal(t, []string{"/refs/form-a.png", "/uploads/mine.png"}, seen.ImagePaths)
	require.Contains(t, seen.SystemInstruction, "2026-03-14")
	require.Contains(t, seen.UserInstruction, "first attached image is the reference")
}

func TestReviewerCorrectnessWithoutReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"is_approved": 0, "correctness_score": 10, "reason": "blank", "need_correction": "fill it in"
	}`), &seen))

	task := models.Task{ID: 2, Name: "Change address"}
	_, _, err := NewReviewer(o, testJob(), time.Now()).ReviewCorrectnessWithImage(context.Background(), task, "/uploads/mine.png", ledger.New())
	require.NoError(t, err)
	require.Equal(t, []string{"/uploads/mine.png"}, seen.ImagePaths)
	require.Contains(t, seen.UserInstruction, "No reference document exists")
}

func TestReviewerCorrectnessEmptySubmission(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	// no EXPECT: any oracle call fails the test

	task := models.Task{ID: 1, Name: "Renew permit", Reference: "/refs/form-a.png"}
	start := ledger.New().Extend(ledger.Message{Role: models.RoleCustomer, Content: "check it"})

	review, next, err := NewReviewer(o, testJob(), time.Now()).ReviewCorrectnessWithImage(context.Background(), task, "", start)
	require.NoError(t, err)
	require.Equal(t, 0, review.IsApproved)
	require.Zero(t, review.Score)

	require.Equal(t, 2, next.Len())
	require.Len(t, next.Transcript(), 2)
	last, ok := next.Last()
	require.True(t, ok)
	require.Equal(t, models.RoleReviewer, last.Role)
	require.Contains(t, last.Content, `"correctness_score":0`)
}

func TestReviewerReviewScore(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"indicators": {
			"politeness": {"score": 4, "reason": "kind", "need_correction": ""},
			"accuracy": {"score": 3.5, "reason": "mostly right", "need_correction": "mention fees"}
		},
		"total_score": 3.75,
		"total_reason": "good"
	}`), &seen))

	l := ledger.New().
		Extend(ledger.Message{Role: models.RoleCustomer, Content: "hello"}).
		Extend(ledger.Message{Role: models.RoleCounter, Content: "welcome"})

	job := testJob()
	outcome, next, err := NewReviewer(o, job, time.Now()).ReviewScore(context.Background(), job.Indicators, l)
	require.NoError(t, err)
	require.Equal(t, 3.75, outcome.TotalScore)
	require.Equal(t, "good", outcome.TotalReason)
	require.Equal(t, 4.0, outcome.Indicators["politeness"].Score)
	require.Equal(t, "mention fees", outcome.Indicators["accuracy"].NeedCorrection)
	require.Equal(t, 3, next.Len())

	require.Contains(t, seen.UserInstruction, "- politeness: speaks courteously")
	require.Contains(t, seen.UserInstruction, `"accuracy": {"score": 0`)
}

func TestReviewerReviewScoreQuotesIndicatorNames(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	name := `says "please" \ thanks`
	var seen oracle.Request
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"indicators": {"says \"please\" \\ thanks": {"score": 5, "reason": "always"}},
		"total_score": 5,
		"total_reason": "great"
	}`), &seen))

	job := testJob()
	job.Indicators = []models.Indicator{{Name: name}}
	outcome, _, err := NewReviewer(o, job, time.Now()).ReviewScore(context.Background(), job.Indicators, ledger.New())
	require.NoError(t, err)
	require.Equal(t, 5.0, outcome.Indicators[name].Score)

	example, err := oracle.ExtractJSON(seen.UserInstruction)
	require.NoError(t, err, "the answer template in the prompt is valid JSON")
	indicators, ok := example["indicators"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, indicators, name)
}

func TestReviewerReviewScoreMissingIndicator(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	o.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(answer(fenced(`{
		"indicators": {"politeness": {"score": 4, "reason": "kind"}},
		"total_score": 4,
		"total_reason": "good"
	}`), nil))

	job := testJob()
	_, _, err := NewReviewer(o, job, time.Now()).ReviewScore(context.Background(), job.Indicators, ledger.New())

	var schemaErr *SchemaExtractionError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, models.RoleReviewer, schemaErr.Role)
}

func TestReviewerReviewScoreNoIndicators(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)

	_, _, err := NewReviewer(o, testJob(), time.Now()).ReviewScore(context.Background(), nil, ledger.New())
	require.ErrorIs(t, err, ErrNoIndicators)
}

func TestSchemaExtractionErrorTruncatesPayload(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &SchemaExtractionError{Role: models.RoleBroker, Payload: string(long), Err: oracle.ErrNoJSONBlock}
	require.Contains(t, err.Error(), "broker response could not be parsed")
	require.Less(t, len(err.Error()), 300)
	require.ErrorIs(t, err, oracle.ErrNoJSONBlock)
}
