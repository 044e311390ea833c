package agents

import "github.com/nbakr/marko/internal/config"

// Role identifies a reasoning agent in the pipeline. Each role gets its
// own system prompt and may get its own model and temperature via config.
type Role string

const (
	RoleBriefing     Role = "briefing"
	RoleVerification Role = "verification"
	RolePreview      Role = "preview"
	RoleContent      Role = "content"
	RoleFeedback     Role = "feedback"
)

// defaultTemperatures lean creative for generation roles and conservative
// for extraction and verification.
var defaultTemperatures = map[Role]float64{
	RoleBriefing:     0.3,
	RoleVerification: 0.1,
	RolePreview:      0.8,
	RoleContent:      0.7,
	RoleFeedback:     0.2,
}

// Settings is the resolved model and temperature for one role.
type Settings struct {
	Model       string
	Temperature float64
}

// Resolve returns the settings for a role, applying any per-agent override
// from the config over the global model.
func Resolve(cfg *config.Config, role Role) Settings {
	s := Settings{
		Model:       cfg.Model,
		Temperature: defaultTemperatures[role],
	}
	if override, ok := cfg.Agents[string(role)]; ok {
		if override.Model != "" {
			s.Model = override.Model
		}
		if override.Temperature != 0 {
			s.Temperature = override.Temperature
		}
	}
	return s
}
