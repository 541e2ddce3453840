package orchestrator

// PrecisionOptions holds the precision stage sub-options.
type PrecisionOptions struct {
	// Aggressive resizes images and converts PNG to JPEG.
	Aggressive bool `json:"aggressive,omitempty"`

	// XMLCleanup removes auxiliary XML parts such as calcChain and printer settings.
	XMLCleanup bool `json:"xmlCleanup,omitempty"`

	// ForceCustomXMLRemoval removes hidden customXml data.
	ForceCustomXMLRemoval bool `json:"forceCustomXmlRemoval,omitempty"`
}

// PipelineConfig selects which stages run for a single invocation. It is
// built once per run and never mutated afterwards.
type PipelineConfig struct {
	Clean     bool `json:"clean"`
	Image     bool `json:"image"`
	Precision bool `json:"precision"`

	PrecisionOptions PrecisionOptions `json:"precisionOptions"`
}

// DefaultPipelineConfig mirrors the selection a fresh user session starts with:
// clean and image enabled, precision disabled.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{Clean: true, Image: true}
}

// Enabled reports whether the given stage kind is selected.
func (c PipelineConfig) Enabled(kind StageKind) bool {
	switch kind {
	case StageClean:
		return c.Clean
	case StageImage:
		return c.Image
	case StagePrecision:
		return c.Precision
	default:
		return false
	}
}

// Stages returns the selected stage kinds in precedence order.
func (c PipelineConfig) Stages() []StageKind {
	var out []StageKind
	for _, k := range AllStages {
		if c.Enabled(k) {
			out = append(out, k)
		}
	}
	return out
}

// Empty reports whether no stage is selected.
func (c PipelineConfig) Empty() bool {
	return len(c.Stages()) == 0
}
