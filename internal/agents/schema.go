package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/oracle"
)

// requiredFields builds an object schema that only demands the presence of
// fields. Value checks belong to the session loop, not to extraction.
func requiredFields(fields ...string) map[string]any {
	required := make([]any, len(fields))
	for i, f := range fields {
		required[i] = f
	}
	return map[string]any{
		"type":     "object",
		"required": required,
	}
}

// compileSchema compiles a schema written as a Go map. The map is round
// tripped through JSON so the compiler only sees JSON-native values.
func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", name, err)
	}

	var schemaValue any
	if err := json.Unmarshal(data, &schemaValue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaValue); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}
	return compiler.Compile(name)
}

func mustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	schema, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return schema
}

// decodeResponse extracts the JSON block from raw, validates it against
// schema and decodes it into out.
func decodeResponse(raw string, schema *jsonschema.Schema, out any) error {
	obj, err := oracle.ExtractJSON(raw)
	if err != nil {
		return err
	}

	if err := schema.Validate(obj); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       stringifyHook,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(obj)
}

// stringifyHook lets string fields absorb lists and numbers, which models
// tend to produce for free-text fields.
func stringifyHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() == reflect.String {
		return data, nil
	}

	switch v := data.(type) {
	case json.Number:
		return v.String(), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case nil:
			case string:
				parts = append(parts, it)
			default:
				parts = append(parts, fmt.Sprint(it))
			}
		}
		return strings.Join(parts, "; "), nil
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return data, nil
	}
}

// invoke makes one oracle call and decodes its answer into T. When the
// answer cannot be decoded the ledger holding the exchange is still
// returned next to the *SchemaExtractionError.
func invoke[T any](ctx context.Context, o oracle.Oracle, req *oracle.Request, schema *jsonschema.Schema) (*T, *ledger.Ledger, error) {
	resp, err := o.Call(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	next := resp.Ledger
	if next == nil {
		next = oracle.Record(req, resp.Raw)
	}

	var out T
	if err := decodeResponse(resp.Raw, schema, &out); err != nil {
		return nil, next, &SchemaExtractionError{Role: req.Role, Payload: resp.Raw, Err: err}
	}
	return &out, next, nil
}
