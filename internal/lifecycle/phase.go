// Package lifecycle defines the closed set of page-lifecycle phases a host
// fires per request, and the registry that binds module callbacks to them.
package lifecycle

import (
	"errors"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

type Phase int

const (
	PhaseInit Phase = iota + 1
	PhaseAdminMenuBuild
	PhaseAdminResources
	PhasePublicResources
	PhasePageHeadRender
)

var phaseNames = map[Phase]string{
	PhaseInit:            "init",
	PhaseAdminMenuBuild:  "admin-menu-build",
	PhaseAdminResources:  "admin-resource-phase",
	PhasePublicResources: "public-resource-phase",
	PhasePageHeadRender:  "page-head-render",
}

var ErrUnknownPhase = errors.New("unknown lifecycle phase")

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "unknown"
}

func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase maps a phase name back to its Phase.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, xerrors.Wrapf(ErrUnknownPhase, "parse %q", name)
}

// Phases returns every phase in the order a host fires them.
func Phases() []Phase {
	return []Phase{
		PhaseInit,
		PhaseAdminMenuBuild,
		PhaseAdminResources,
		PhasePublicResources,
		PhasePageHeadRender,
	}
}
