package facts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// factsFile is the on-disk handoff format produced by the fact extractor.
type factsFile struct {
	Inputs []string `yaml:"inputs"`
	Flows  []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"flows"`
	Memory []struct {
		Var  string `yaml:"var"`
		Loc  string `yaml:"loc"`
		File string `yaml:"file"`
		Line int    `yaml:"line"`
	} `yaml:"memory"`
}

// LoadFile reads an extractor handoff file. An unreadable or malformed file
// is a fatal, non-retryable campaign-start error.
func LoadFile(path string) (Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("read facts file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes the extractor handoff from YAML.
func Parse(data []byte) (Extraction, error) {
	var ff factsFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return Extraction{}, fmt.Errorf("parse facts file: %w", err)
	}

	ex := Extraction{Locations: make(map[string]SourceLocation)}
	for _, v := range ff.Inputs {
		if v == "" {
			return Extraction{}, fmt.Errorf("facts file: empty input variable")
		}
		ex.Facts = append(ex.Facts, Input(v))
	}
	for _, fl := range ff.Flows {
		if fl.From == "" || fl.To == "" {
			return Extraction{}, fmt.Errorf("facts file: flow with empty endpoint")
		}
		ex.Facts = append(ex.Facts, Flow(fl.From, fl.To))
	}
	for _, m := range ff.Memory {
		if m.Var == "" || m.Loc == "" {
			return Extraction{}, fmt.Errorf("facts file: memory op with empty var or loc")
		}
		ex.Facts = append(ex.Facts, Memory(m.Var, m.Loc))
		ex.Locations[m.Loc] = SourceLocation{File: m.File, Line: m.Line}
	}
	if len(ex.Facts) == 0 {
		return Extraction{}, fmt.Errorf("facts file: no facts")
	}
	return ex, nil
}
