package history

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema describes a persisted record. Records written before IDs
// were stored in the document lack "id", so it is optional.
const recordSchema = `{
  "type": "object",
  "required": ["timestamp", "problem_text", "consensus", "explanation", "raw_answers", "raw_responses"],
  "properties": {
    "id": {"type": "string"},
    "timestamp": {"type": "string"},
    "problem_text": {"type": "string"},
    "available_models": {"type": ["array", "null"], "items": {"type": "string"}},
    "consensus": {
      "type": "object",
      "required": ["status", "confidence"],
      "properties": {
        "status": {"enum": ["no_models", "no_consensus", "single_model", "full_consensus", "majority_consensus"]},
        "confidence": {"enum": ["low", "medium", "high"]},
        "answer": {"type": "string"},
        "model": {"type": "string"},
        "agreeing_models": {"type": "array", "items": {"type": "string"}}
      }
    },
    "explanation": {"type": ["object", "string"]},
    "raw_answers": {
      "type": "object",
      "additionalProperties": {"type": ["string", "null"]}
    },
    "raw_responses": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var schemaLoader = func() gojsonschema.JSONLoader {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(recordSchema), &m); err != nil {
		panic(fmt.Sprintf("history: bad record schema: %v", err))
	}
	return gojsonschema.NewGoLoader(m)
}()

// Validate checks a serialized record against the record schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(errs, "; "))
	}
	return nil
}
