package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// batchSchema is the boundary contract for a decision batch: a JSON array
// of objects with a known signal, confidence in [0,1] and a non-negative
// quantity. The advisory process is expected to clamp confidence before it
// reaches this core; the schema enforces it.
const batchSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["symbol", "signal", "confidence"],
    "properties": {
      "symbol": {"type": "string", "minLength": 1},
      "signal": {"type": "string", "enum": ["BUY", "SELL", "HOLD", "CLOSE"]},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1},
      "quantity": {"type": "number", "minimum": 0},
      "take_profit": {"type": "number", "minimum": 0},
      "stop_loss": {"type": "number", "minimum": 0}
    }
  }
}`

var compiledBatchSchema = mustCompileSchema(batchSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decisions.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("decisions.json")
}

// ParseBatch validates a raw decision payload and returns the batch keyed
// by upper-cased symbol. When the same symbol appears more than once the
// last entry wins.
func ParseBatch(raw []byte) (map[string]Decision, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("decision payload is empty")
	}
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("decision payload is not valid JSON")
	}
	if !gjson.Parse(trimmed).IsArray() {
		return nil, fmt.Errorf("decision payload root must be a JSON array")
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("decoding decision payload failed: %w", err)
	}
	if err := compiledBatchSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("decision payload rejected by schema: %w", err)
	}

	var list []Decision
	if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		return nil, fmt.Errorf("decoding decisions failed: %w", err)
	}

	out := make(map[string]Decision, len(list))
	for _, d := range list {
		d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
		if d.Symbol == "" {
			continue
		}
		d.Confidence = clamp01(d.Confidence)
		out[d.Symbol] = d
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decision batch is empty")
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
