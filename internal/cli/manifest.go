package cli

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	nativeext "github.com/contriboss/native-extension-go"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

// renderOutcome encodes the outcome for the packaging step.
func renderOutcome(outcome *nativeext.BuildOutcome, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return append(data, '\n'), nil
	case formatYAML, "yml":
		data, err := yaml.Marshal(outcome)
		if err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return data, nil
	case formatTOML:
		data, err := toml.Marshal(outcome)
		if err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want json, yaml or toml)", format)
	}
}
