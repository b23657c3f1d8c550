package agents

import (
	"fmt"

	"github.com/spboyer/servicecounter/internal/models"
)

// maxPayloadInError bounds how much of a bad response ends up in an error message.
const maxPayloadInError = 200

// SchemaExtractionError is returned when a model response holds no structured
// block, or the block is missing fields the role requires.
type SchemaExtractionError struct {
	Role    models.Role
	Payload string
	Err     error
}

func (e *SchemaExtractionError) Error() string {
	payload := e.Payload
	if len(payload) > maxPayloadInError {
		payload = payload[:maxPayloadInError] + "..."
	}
	return fmt.Sprintf("%s response could not be parsed: %v (payload: %q)", e.Role, e.Err, payload)
}

func (e *SchemaExtractionError) Unwrap() error {
	return e.Err
}
