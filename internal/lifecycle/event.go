package lifecycle

import (
	"context"
	"io"

	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/screen"
)

// AdminPage is a module-provided administration page.
type AdminPage struct {
	PageTitle  string
	MenuTitle  string
	Capability string
	Slug       string
	Render     func(ctx context.Context, w io.Writer) error
}

// Host is everything a callback may ask of the host platform.
type Host interface {
	assets.Registrar
	// AddAdminPage registers page and returns the host's opaque screen id for it.
	AddAdminPage(page AdminPage) string
}

// Event is handed to every callback bound to a phase. Out is where markup
// for the page head goes; it is only meaningful during PhasePageHeadRender.
type Event struct {
	Phase   Phase
	Request screen.RequestContext
	Host    Host
	Out     io.Writer
}

type Callback func(ctx context.Context, ev *Event)
