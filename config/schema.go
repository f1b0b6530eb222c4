package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/wippyai/witbind/errors"
)

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "witbind configuration"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "marshal schema")
	}
	return out, nil
}
