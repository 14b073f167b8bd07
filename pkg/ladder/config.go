package ladder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/draftline/autorun/pkg/core"
)

// fileConfig is the YAML shape for ladder overrides:
//
//	ladders:
//	  film: [idea, concept, blueprint, script]
//	default: [idea, concept, blueprint, script]
//	approval:
//	  character_bible: series_writer
type fileConfig struct {
	Ladders  map[string][]string `yaml:"ladders"`
	Default  []string            `yaml:"default"`
	Approval map[string]string   `yaml:"approval"`
}

// Load reads a ladder set from a YAML file. Sections omitted from the
// file keep their built-in defaults.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ladder: read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a ladder set from YAML bytes.
func Parse(data []byte) (*Set, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ladder: parse config: %w", err)
	}

	s := Default()
	for format, stages := range cfg.Ladders {
		if len(stages) == 0 {
			return nil, fmt.Errorf("ladder: format %q has an empty ladder", format)
		}
		s.ladders[format] = stages
	}
	if len(cfg.Default) > 0 {
		s.fallback = cfg.Default
	}
	if cfg.Approval != nil {
		approval := make(map[string]core.ApprovalType, len(cfg.Approval))
		for stage, t := range cfg.Approval {
			switch core.ApprovalType(t) {
			case core.ApprovalConvert, core.ApprovalSeriesWriter:
				approval[stage] = core.ApprovalType(t)
			default:
				return nil, fmt.Errorf("ladder: unknown approval type %q for stage %q", t, stage)
			}
		}
		s.approval = approval
	}
	return s, nil
}
