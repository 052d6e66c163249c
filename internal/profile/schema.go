package profile

import (
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// 档案文件的结构约束：费率必须是 [0,1) 的数，未知键直接拒绝。
const fileSchema = `{
  "type": "object",
  "properties": {
    "profiles": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "display_name": {"type": "string"},
          "buy_fee_rate": {"type": "number", "minimum": 0, "exclusiveMaximum": 1},
          "sell_fee_rate": {"type": "number", "minimum": 0, "exclusiveMaximum": 1},
          "use_kr_fee_model": {"type": "boolean"},
          "default": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "required": ["profiles"],
  "additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("profiles.schema.json", fileSchema)

// validateFile 在 mapstructure 解码之前用 JSON Schema 拦截畸形档案文件。
func validateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles file failed: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse profiles yaml failed: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("profiles file is empty")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("profiles schema violation: %w", err)
	}
	return nil
}
