package agents

import (
	"context"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
)

// Observation is the observer's raw verdict. Flag is coerced by the session loop.
type Observation struct {
	Flag       any    `mapstructure:"is_need_of_continuation" json:"is_need_of_continuation"`
	Reason     string `mapstructure:"reason" json:"reason"`
	OwnThought string `mapstructure:"own_thought" json:"own_thought"`
}

var observationSchema = mustCompileSchema("observer_continue.json",
	requiredFields("is_need_of_continuation", "reason"))

// Observer judges whether the conversation should go on.
type Observer struct {
	oracle oracle.Oracle
	system string
}

func NewObserver(o oracle.Oracle, job *models.JobDescription) *Observer {
	return &Observer{
		oracle: o,
		system: render("observer_system", job),
	}
}

// ObserveToContinueInteraction looks at the conversation so far. taskContext
// describes the active task and may be empty.
func (o *Observer) ObserveToContinueInteraction(ctx context.Context, taskContext string, l *ledger.Ledger) (*Observation, *ledger.Ledger, error) {
	req := &oracle.Request{
		Role:              models.RoleObserver,
		SystemInstruction: o.system,
		UserInstruction:   render("observer_continue", map[string]any{"TaskContext": taskContext}),
		Ledger:            l,
	}
	return invoke[Observation](ctx, o.oracle, req, observationSchema)
}
