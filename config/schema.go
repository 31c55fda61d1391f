package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/wippyai/lacewing/errors"
)

// Schema returns the JSON schema of the configuration document.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "lwshell configuration"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "marshal schema")
	}
	return out, nil
}
