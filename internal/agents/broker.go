package agents

import (
	"context"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
)

// TaskIdentification is the broker's answer. TaskNumber is left untyped;
// the session loop decides whether it names a catalog entry.
type TaskIdentification struct {
	TaskNumber   any    `mapstructure:"task_number" json:"task_number"`
	Requirements string `mapstructure:"requirements" json:"requirements"`
	Status       string `mapstructure:"status" json:"status"`
	NextAction   string `mapstructure:"next_action" json:"next_action"`
	OwnThought   string `mapstructure:"own_thought" json:"own_thought"`
}

var taskSchema = mustCompileSchema("broker_task.json",
	requiredFields("task_number", "requirements", "status", "next_action", "own_thought"))

// Broker classifies customer requests against the task catalog.
type Broker struct {
	oracle oracle.Oracle
	system string
}

func NewBroker(o oracle.Oracle, job *models.JobDescription) *Broker {
	return &Broker{
		oracle: o,
		system: render("broker_system", job),
	}
}

// IdentifyTask asks which catalog entry, if any, matches what the customer wants.
func (b *Broker) IdentifyTask(ctx context.Context, text string, catalog *models.TaskCatalog, l *ledger.Ledger) (*TaskIdentification, *ledger.Ledger, error) {
	var tasks []models.Task
	if catalog != nil {
		tasks = catalog.Tasks()
	}

	req := &oracle.Request{
		Role:              models.RoleBroker,
		SystemInstruction: b.system,
		UserInstruction: render("broker_identify", map[string]any{
			"Text":  text,
			"Tasks": tasks,
		}),
		Ledger: l,
	}
	return invoke[TaskIdentification](ctx, b.oracle, req, taskSchema)
}
