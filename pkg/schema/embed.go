package schema

import (
	_ "embed"
)

//go:embed models/holo.yaml
var defaultModel []byte

// LoadDefault loads the model description embedded in the binary.
func LoadDefault() (*Model, error) {
	return Load(defaultModel)
}
