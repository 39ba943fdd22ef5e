package llm

// Hardcoded fallbacks when neither an override nor an environment default is set.
var fallbackModels = map[Kind]string{
	Gemini: "gemini-2.5-flash",
	OpenAI: "openai/gpt-4o-mini",
	Mock:   "mock",
}

// ModelResolver picks a model name per backend:
// request override > configured override > environment default > fallback.
type ModelResolver struct {
	Overrides   map[Kind]string
	Environment string
	Defaults    map[Kind]map[string]string
}

// Resolve returns the model to use for kind.
func (m ModelResolver) Resolve(kind Kind, requestOverride string) string {
	if requestOverride != "" {
		return requestOverride
	}
	if o := m.Overrides[kind]; o != "" {
		return o
	}
	if env := m.Defaults[kind]; env != nil {
		if model := env[m.Environment]; model != "" {
			return model
		}
	}
	return fallbackModels[kind]
}
