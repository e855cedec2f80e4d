// Package presets stores named bundles of AI, naming and runtime settings.
package presets

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dgallion1/imgnamer/internal/llm"
	"github.com/dgallion1/imgnamer/internal/naming"
	"github.com/dgallion1/imgnamer/internal/writeback"
)

// ErrNotFound is returned by Get and Delete for unknown names.
var ErrNotFound = errors.New("preset not found")

// Preset is one named settings bundle.
type Preset struct {
	Name    string            `json:"name" yaml:"name"`
	AI      llm.Settings      `json:"ai" yaml:"ai"`
	Naming  naming.Settings   `json:"naming" yaml:"naming"`
	Runtime writeback.Runtime `json:"runtime" yaml:"runtime"`
}

// Redacted returns a copy safe to show to clients.
func (p Preset) Redacted() Preset {
	if p.AI.APIKey != "" {
		p.AI.APIKey = "********"
	}
	return p
}

// Store persists presets by name.
type Store interface {
	Get(ctx context.Context, name string) (*Preset, error)
	Put(ctx context.Context, p Preset) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Preset, error)
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateName rejects names that are unsafe as file or key segments.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid preset name %q", name)
	}
	return nil
}
