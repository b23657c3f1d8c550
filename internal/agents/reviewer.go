package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
)

// CorrectnessAssessment is the reviewer's raw verdict on a submission.
// IsApproved is left untyped; the session loop checks it is a binary flag.
type CorrectnessAssessment struct {
	IsApproved     any     `mapstructure:"is_approved" json:"is_approved"`
	Score          float64 `mapstructure:"correctness_score" json:"correctness_score"`
	Reason         string  `mapstructure:"reason" json:"reason"`
	NeedCorrection string  `mapstructure:"need_correction" json:"need_correction"`
}

// ErrNoIndicators is returned by ReviewScore when there is nothing to score.
var ErrNoIndicators = errors.New("no indicators to score")

var correctnessSchema = mustCompileSchema("reviewer_correctness.json",
	requiredFields("is_approved", "correctness_score", "reason"))

// Reviewer grades submissions and, at the end of a session, the session itself.
type Reviewer struct {
	oracle oracle.Oracle
	system string
}

// NewReviewer creates a reviewer. sessionStart supplies the date the
// reviewer is told about.
func NewReviewer(o oracle.Oracle, job *models.JobDescription, sessionStart time.Time) *Reviewer {
	return &Reviewer{
		oracle: o,
		system: render("reviewer_system", map[string]any{
			"Workplace": job.Workplace,
			"JobType":   job.JobType,
			"Date":      sessionStart.Format("2006-01-02"),
		}),
	}
}

// ReviewCorrectnessWithImage compares submission against the task's
// reference artifact. The reference is attached first and the submission
// second. An empty submission is rejected without calling the oracle.
func (r *Reviewer) ReviewCorrectnessWithImage(ctx context.Context, task models.Task, submission string, l *ledger.Ledger) (*CorrectnessAssessment, *ledger.Ledger, error) {
	instruction := render("reviewer_correctness", map[string]any{
		"Task":      task,
		"Reference": task.Reference,
	})

	if submission == "" {
		rejected := &CorrectnessAssessment{
			IsApproved:     0,
			Score:          0,
			Reason:         "no document was submitted",
			NeedCorrection: "submit the completed document",
		}
		content, err := json.Marshal(rejected)
		if err != nil {
			return nil, nil, err
		}
		next := l.Extend(ledger.Message{
			Role:    models.RoleReviewer,
			Prompt:  instruction,
			Content: string(content),
		})
		return rejected, next, nil
	}

	req := &oracle.Request{
		Role:              models.RoleReviewer,
		SystemInstruction: r.system,
		UserInstruction:   instruction,
		Ledger:            l,
	}
	if task.Reference != "" {
		req.ImagePaths = []string{task.Reference, submission}
	} else {
		req.ImagePaths = []string{submission}
	}
	return invoke[CorrectnessAssessment](ctx, r.oracle, req, correctnessSchema)
}

// ReviewScore grades the whole conversation in l on every indicator. The
// response must contain a score for each indicator by name.
func (r *Reviewer) ReviewScore(ctx context.Context, indicators []models.Indicator, l *ledger.Ledger) (*models.ReviewOutcome, *ledger.Ledger, error) {
	if len(indicators) == 0 {
		return nil, nil, ErrNoIndicators
	}

	schema, err := scoreSchema(indicators)
	if err != nil {
		return nil, nil, err
	}

	req := &oracle.Request{
		Role:              models.RoleReviewer,
		SystemInstruction: r.system,
		UserInstruction:   render("reviewer_score", map[string]any{"Indicators": indicators}),
		Ledger:            l,
	}
	return invoke[models.ReviewOutcome](ctx, r.oracle, req, schema)
}

// scoreSchema requires an entry with a score for every indicator name.
func scoreSchema(indicators []models.Indicator) (*jsonschema.Schema, error) {
	properties := map[string]any{}
	names := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		properties[ind.Name] = map[string]any{
			"type":     "object",
			"required": []any{"score"},
			"properties": map[string]any{
				"score": map[string]any{"type": "number"},
			},
		}
		names = append(names, ind.Name)
	}

	indicatorsSchema := requiredFields(names...)
	indicatorsSchema["properties"] = properties

	root := requiredFields("indicators", "total_score")
	root["properties"] = map[string]any{
		"indicators":  indicatorsSchema,
		"total_score": map[string]any{"type": "number"},
	}

	schema, err := compileSchema("reviewer_score.json", root)
	if err != nil {
		return nil, fmt.Errorf("building score schema: %w", err)
	}
	return schema, nil
}
