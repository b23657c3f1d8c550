package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/schemas"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// jobSchema is the compiled JSON Schema for job description files.
var jobSchema *jsonschema.Schema

// tasksSchema is the compiled JSON Schema for task catalog files.
var tasksSchema *jsonschema.Schema

func init() {
	jobSchema = mustCompileSchema(schemas.JobSchemaJSON, "job.schema.json")
	tasksSchema = mustCompileSchema(schemas.TasksSchemaJSON, "tasks.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// Report collects the problems found in a job description and task catalog.
type Report struct {
	JobErrors  []string
	TaskErrors []string
}

// OK reports whether no problems were found.
func (r *Report) OK() bool {
	return len(r.JobErrors) == 0 && len(r.TaskErrors) == 0
}

// CheckDocuments validates both input documents against their schemas and
// then, when the schemas pass, against the rules the loaders enforce:
// indicator names, collaborator tags, task IDs and reference files.
// Only unreadable files are returned as an error.
func CheckDocuments(jobPath, tasksPath string) (*Report, error) {
	report := &Report{}

	jobData, err := os.ReadFile(jobPath)
	if err != nil {
		return nil, fmt.Errorf("reading job description: %w", err)
	}
	tasksData, err := os.ReadFile(tasksPath)
	if err != nil {
		return nil, fmt.Errorf("reading task catalog: %w", err)
	}

	report.JobErrors = ValidateJobBytes(jobData)
	if len(report.JobErrors) == 0 {
		if _, err := models.LoadJobDescription(jobPath); err != nil {
			report.JobErrors = append(report.JobErrors, err.Error())
		}
	}

	report.TaskErrors = ValidateTasksBytes(tasksData)
	if len(report.TaskErrors) == 0 {
		catalog, err := models.LoadTaskCatalog(tasksPath)
		if err != nil {
			report.TaskErrors = append(report.TaskErrors, err.Error())
		} else {
			report.TaskErrors = append(report.TaskErrors, missingReferences(catalog)...)
		}
	}

	return report, nil
}

func missingReferences(catalog *models.TaskCatalog) []string {
	var errs []string
	for _, task := range catalog.Tasks() {
		if task.Reference == "" {
			continue
		}
		if _, err := os.Stat(task.Reference); err != nil {
			errs = append(errs, fmt.Sprintf("/tasks/%d/reference: %s not found", task.ID, filepath.Base(task.Reference)))
		}
	}
	return errs
}

// ValidateJobBytes validates raw YAML (or JSON) bytes against the job schema.
func ValidateJobBytes(data []byte) []string {
	return validateYAMLBytes(jobSchema, data)
}

// ValidateTasksBytes validates raw YAML (or JSON) bytes against the task catalog schema.
func ValidateTasksBytes(data []byte) []string {
	return validateYAMLBytes(tasksSchema, data)
}

func validateYAMLBytes(schema *jsonschema.Schema, data []byte) []string {
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	return validateAgainstSchema(schema, convertToJSONCompatible(yamlDoc))
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible converts YAML-decoded values to JSON-compatible
// types. Task catalogs use numeric keys, which yaml.v3 decodes into
// map[any]any; those keys are turned back into strings.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case map[any]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[fmt.Sprint(k)] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}
