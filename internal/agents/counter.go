package agents

import (
	"context"
	"errors"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
)

// SituationAnalysis is the counter's reading of a customer turn.
type SituationAnalysis struct {
	Desire            string `mapstructure:"desire" json:"desire"`
	CurrentSituation  string `mapstructure:"current_situation" json:"current_situation"`
	Language          string `mapstructure:"language" json:"language"`
	OwnThought        string `mapstructure:"own_thought" json:"own_thought"`
	NeedHelpColleague string `mapstructure:"need_help_colleague" json:"need_help_colleague"`
}

// CounterReply is what the counter says back to the customer.
type CounterReply struct {
	Response   string `mapstructure:"response" json:"response"`
	Language   string `mapstructure:"language" json:"language"`
	OwnThought string `mapstructure:"own_thought" json:"own_thought"`
}

var (
	analysisSchema = mustCompileSchema("counter_analysis.json",
		requiredFields("desire", "current_situation", "language", "own_thought", "need_help_colleague"))
	replySchema = mustCompileSchema("counter_reply.json",
		requiredFields("response", "language", "own_thought"))
)

// Counter is the front-line agent the customer talks to.
type Counter struct {
	oracle oracle.Oracle
	system string
}

func NewCounter(o oracle.Oracle, job *models.JobDescription) *Counter {
	return &Counter{
		oracle: o,
		system: render("counter_system", job),
	}
}

// AnalyzeSituation reads the customer's latest utterance and an optional
// submitted image, and decides whether a colleague should act.
func (c *Counter) AnalyzeSituation(ctx context.Context, text, imagePath string, l *ledger.Ledger) (*SituationAnalysis, *ledger.Ledger, error) {
	req := &oracle.Request{
		Role:              models.RoleCounter,
		SystemInstruction: c.system,
		UserInstruction: render("counter_analyze", map[string]any{
			"Text":      text,
			"ImagePath": imagePath,
		}),
		Ledger: l,
	}
	if imagePath != "" {
		req.ImagePaths = []string{imagePath}
	}
	return invoke[SituationAnalysis](ctx, c.oracle, req, analysisSchema)
}

// RespondWithContext produces the reply to the customer, taking into account
// whatever colleagues added to the ledger during this turn.
func (c *Counter) RespondWithContext(ctx context.Context, text string, l *ledger.Ledger) (*CounterReply, *ledger.Ledger, error) {
	req := &oracle.Request{
		Role:              models.RoleCounter,
		SystemInstruction: c.system,
		UserInstruction:   render("counter_respond", map[string]any{"Text": text}),
		Ledger:            l,
	}
	reply, next, err := invoke[CounterReply](ctx, c.oracle, req, replySchema)
	if err != nil {
		return nil, next, err
	}
	if reply.Response == "" {
		return nil, next, &SchemaExtractionError{Role: models.RoleCounter, Err: errors.New("empty response field")}
	}
	return reply, next, nil
}
