package plugin

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

const (
	msgPageTitle = "Oboxmedia Wordpress Plugin - Administration"
	msgMenuTitle = "Oboxmedia Wordpress Plugin"
)

//go:embed views/admin.html
var viewsFS embed.FS

var adminView = template.Must(template.ParseFS(viewsFS, "views/admin.html"))

type adminViewData struct {
	Title    string
	Version  string
	Settings adconfig.Settings
	Source   string
	T        func(string) string
}

func (i *Instance) loadTextDomain(ctx context.Context, ev *lifecycle.Event) {
	if err := i.text.load(); err != nil {
		i.logger.Error(ctx, err, "failed to load text domain", "domain", i.slug)
		return
	}
	i.logger.Debug(ctx, "text domain loaded",
		"domain", i.slug,
		"locale", ev.Request.Locale,
		"available", i.text.Locales(),
	)
}

func (i *Instance) addAdminMenu(ctx context.Context, ev *lifecycle.Event) {
	if ev.Host == nil {
		return
	}
	locale := ev.Request.Locale
	id := ev.Host.AddAdminPage(lifecycle.AdminPage{
		PageTitle:  i.text.translate(locale, msgPageTitle),
		MenuTitle:  i.text.translate(locale, msgMenuTitle),
		Capability: AdminCapability,
		Slug:       i.slug,
		Render: func(ctx context.Context, w io.Writer) error {
			return i.renderAdminPage(ctx, w, locale)
		},
	})
	i.RegisterAdminScreen(ctx, id)
}

func (i *Instance) renderAdminPage(_ context.Context, w io.Writer, locale string) error {
	settings := adconfig.Defaults()
	source := string(adconfig.SourceDefaults)
	if i.settings != nil {
		settings = i.settings.Current()
		if s, ok := i.settings.(interface{ Source() adconfig.Source }); ok {
			source = string(s.Source())
		}
	}
	data := adminViewData{
		Title:    i.text.translate(locale, msgPageTitle),
		Version:  i.version,
		Settings: settings,
		Source:   source,
		T:        func(key string) string { return i.text.translate(locale, key) },
	}
	if err := adminView.Execute(w, data); err != nil {
		return xerrors.Wrap(err, "render admin page")
	}
	return nil
}

func (i *Instance) headerAction(ctx context.Context, ev *lifecycle.Event) {
	if ev.Out == nil {
		i.logger.Debug(ctx, "no head writer, skipping snippet")
		return
	}
	if err := i.injector.Emit(ev.Out, ev.Request); err != nil {
		i.logger.Error(ctx, err, "failed to write head snippet")
	}
}
