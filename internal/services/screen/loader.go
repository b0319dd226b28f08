package screen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bobmcallan/fnoscreen/internal/models"
)

// definitionsFile is the on-disk layout of custom screens.
type definitionsFile struct {
	Screens []models.ScreenDefinition `yaml:"screens"`
}

// LoadDefinitions reads custom screens from a YAML file. Unknown keys are rejected
// so a typo fails startup instead of silently widening a screen.
func LoadDefinitions(path string) ([]models.ScreenDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open screen definitions %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var file definitionsFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse screen definitions %s: %w", path, err)
	}
	return file.Screens, nil
}
