package plugin

import (
	"context"

	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
)

func (i *Instance) enqueueAdminStyles(ctx context.Context, ev *lifecycle.Event) {
	i.enqueueAdmin(ctx, ev, i.catalog.AdminStyle)
}

func (i *Instance) enqueueAdminScripts(ctx context.Context, ev *lifecycle.Event) {
	i.enqueueAdmin(ctx, ev, i.catalog.AdminScript)
}

func (i *Instance) enqueueStyles(ctx context.Context, ev *lifecycle.Event) {
	i.activate(ctx, ev, i.catalog.PublicStyle)
}

func (i *Instance) enqueueScripts(ctx context.Context, ev *lifecycle.Event) {
	i.activate(ctx, ev, i.catalog.PublicScript)
}

// enqueueAdmin activates d only on the module's own admin screen.
func (i *Instance) enqueueAdmin(ctx context.Context, ev *lifecycle.Event, d assets.Descriptor) {
	registered, ok := i.AdminScreenID()
	if !ok {
		i.logger.Debug(ctx, "admin screen not registered, skipping", "bundle", d.Name)
		return
	}
	current, ok := ev.Request.ScreenID()
	if !ok || current != registered {
		return
	}
	i.activate(ctx, ev, d)
}

func (i *Instance) activate(ctx context.Context, ev *lifecycle.Event, d assets.Descriptor) {
	if ev.Host == nil {
		i.logger.Debug(ctx, "no host registrar, skipping", "bundle", d.Name)
		return
	}
	ev.Host.Enqueue(d.Registration(i.assetsBase))
	if i.metrics != nil {
		i.metrics.IncResourceActivation(d.Name)
	}
}
