// Package schemas embeds the JSON Schemas for servicecounter's input documents.
package schemas

import _ "embed"

//go:embed job.schema.json
var JobSchemaJSON string

//go:embed tasks.schema.json
var TasksSchemaJSON string
