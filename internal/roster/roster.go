// Package roster loads the council definition: which roles sit on the
// board, what each is told per mode, and which models answer for them.
package roster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/boardroom/internal/council"
)

//go:embed roster.yaml
var defaultRoster []byte

const defaultMaxTokens = 1024

// Models names the primary and fallback model for a call.
type Models struct {
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// Agent is one council seat.
type Agent struct {
	Role    council.Role            `yaml:"role"`
	Prompts map[council.Mode]string `yaml:"prompts"`
	Models  `yaml:",inline"`
}

// Prompt returns the role prompt for mode, falling back to the enterprise
// prompt when the mode has none.
func (a Agent) Prompt(mode council.Mode) string {
	if p, ok := a.Prompts[mode]; ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p)
	}
	return strings.TrimSpace(a.Prompts[council.ModeEnterprise])
}

// Roster is the full council definition.
type Roster struct {
	Models `yaml:",inline"`
	News   Models  `yaml:"news"`
	Agents []Agent `yaml:"agents"`
}

// Default returns the roster compiled into the binary.
func Default() (*Roster, error) {
	return Parse(defaultRoster)
}

// Load reads a roster from path, or returns Default when path is empty.
func Load(path string) (*Roster, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a roster document. Agent model settings left
// empty inherit the top-level ones.
func Parse(b []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	r.News = inherit(r.News, r.Models)
	for i := range r.Agents {
		r.Agents[i].Models = inherit(r.Agents[i].Models, r.Models)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that the roster can seat a council.
func (r *Roster) Validate() error {
	var errs []error
	if len(r.Agents) == 0 {
		errs = append(errs, errors.New("roster: at least one agent is required"))
	}
	seen := make(map[council.Role]bool, len(r.Agents))
	for i, a := range r.Agents {
		if a.Role == "" {
			errs = append(errs, fmt.Errorf("roster: agent %d has no role", i))
			continue
		}
		if seen[a.Role] {
			errs = append(errs, fmt.Errorf("roster: duplicate role %q", a.Role))
		}
		seen[a.Role] = true
		if a.Model == "" {
			errs = append(errs, fmt.Errorf("roster: %s has no model", a.Role))
		}
		if a.Prompt(council.ModeEnterprise) == "" {
			errs = append(errs, fmt.Errorf("roster: %s has no enterprise prompt", a.Role))
		}
	}
	if r.News.Model == "" {
		errs = append(errs, errors.New("roster: news model is required"))
	}
	return errors.Join(errs...)
}

// Roles returns the seated roles in roster order.
func (r *Roster) Roles() []council.Role {
	out := make([]council.Role, len(r.Agents))
	for i, a := range r.Agents {
		out[i] = a.Role
	}
	return out
}

func inherit(m, parent Models) Models {
	if m.Model == "" {
		m.Model = parent.Model
	}
	if m.FallbackModel == "" {
		m.FallbackModel = parent.FallbackModel
	}
	if m.MaxTokens <= 0 {
		m.MaxTokens = parent.MaxTokens
	}
	return m
}
