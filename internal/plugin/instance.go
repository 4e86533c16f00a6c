package plugin

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/headinject"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

const (
	DefaultSlug    = "oboxmedia-wordpress-plugin"
	DefaultVersion = "1.0.0"

	// AdminCapability is the minimum capability required to see the admin page.
	AdminCapability = "read"
)

// Metrics is implemented by *metrics.ServerMetrics.
type Metrics interface {
	lifecycle.Recorder
	IncResourceActivation(bundle string)
	SetAdminScreenRegistered(registered bool)
}

type Options struct {
	Slug    string
	Version string

	// AssetsBase is the URL prefix the bundle files are served under.
	// Defaults to /wp-content/plugins/<slug>.
	AssetsBase string

	// Settings feeds the head snippet and the admin page. Nil means defaults.
	Settings adconfig.Provider

	Logger  log.Logger
	Metrics Metrics
}

type Instance struct {
	slug       string
	version    string
	assetsBase string

	catalog  assets.Catalog
	settings adconfig.Provider
	injector *headinject.Injector
	text     *textDomain
	registry *lifecycle.Registry

	logger  log.Logger
	metrics Metrics

	// nil until the admin page is registered, then fixed.
	adminScreenID atomic.Pointer[string]
}

// New builds an instance and binds every callback. Most callers want
// GetInstance; New exists for tests and for hosts that manage lifetime
// themselves.
func New(opts Options) (*Instance, error) {
	if opts.Slug == "" {
		opts.Slug = DefaultSlug
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.AssetsBase == "" {
		opts.AssetsBase = "/wp-content/plugins/" + opts.Slug
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	i := &Instance{
		slug:       opts.Slug,
		version:    opts.Version,
		assetsBase: strings.TrimRight(opts.AssetsBase, "/"),
		catalog:    assets.NewCatalog(opts.Slug, opts.Version),
		settings:   opts.Settings,
		injector:   headinject.New(opts.Settings),
		text:       newTextDomain(opts.Slug, langFS),
		logger:     opts.Logger.With("component", "plugin", "slug", opts.Slug),
		metrics:    opts.Metrics,
	}

	var rec lifecycle.Recorder
	if opts.Metrics != nil {
		rec = opts.Metrics
	}
	i.registry = lifecycle.NewRegistry(rec)
	if err := i.register(); err != nil {
		return nil, err
	}
	i.registry.Freeze()
	return i, nil
}

func (i *Instance) register() error {
	bindings := []struct {
		phase lifecycle.Phase
		name  string
		fn    lifecycle.Callback
	}{
		{lifecycle.PhaseInit, "load-text-domain", i.loadTextDomain},
		{lifecycle.PhaseAdminMenuBuild, "add-admin-menu", i.addAdminMenu},
		{lifecycle.PhaseAdminResources, "enqueue-admin-styles", i.enqueueAdminStyles},
		{lifecycle.PhaseAdminResources, "enqueue-admin-scripts", i.enqueueAdminScripts},
		{lifecycle.PhasePublicResources, "enqueue-styles", i.enqueueStyles},
		{lifecycle.PhasePublicResources, "enqueue-scripts", i.enqueueScripts},
		{lifecycle.PhasePageHeadRender, "header-action", i.headerAction},
	}
	for _, b := range bindings {
		if err := i.registry.On(b.phase, b.name, b.fn); err != nil {
			return xerrors.Wrap(err, "register lifecycle callbacks")
		}
	}
	return nil
}

var (
	instanceOnce sync.Once
	instance     *Instance
	instanceErr  error
)

// GetInstance returns the process-wide instance, building it on the first
// call. Options passed on later calls are ignored.
func GetInstance(opts Options) (*Instance, error) {
	instanceOnce.Do(func() {
		instance, instanceErr = New(opts)
	})
	return instance, instanceErr
}

func (i *Instance) Slug() string                   { return i.slug }
func (i *Instance) Version() string                { return i.version }
func (i *Instance) Catalog() assets.Catalog        { return i.catalog }
func (i *Instance) AssetsBase() string             { return i.assetsBase }
func (i *Instance) Registry() *lifecycle.Registry  { return i.registry }
func (i *Instance) Injector() *headinject.Injector { return i.injector }

// AdminScreenID returns the registered admin screen id, if any.
func (i *Instance) AdminScreenID() (string, bool) {
	if p := i.adminScreenID.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// RegisterAdminScreen records the host's screen id for the admin page. The
// first id wins; repeating it is a no-op and a different id is ignored.
func (i *Instance) RegisterAdminScreen(ctx context.Context, id string) {
	if id == "" {
		i.logger.Debug(ctx, "ignoring empty admin screen id")
		return
	}
	if i.adminScreenID.CompareAndSwap(nil, &id) {
		i.logger.Info(ctx, "admin screen registered", "screen_id", id)
		if i.metrics != nil {
			i.metrics.SetAdminScreenRegistered(true)
		}
		return
	}
	if cur, _ := i.AdminScreenID(); cur != id {
		i.logger.Warn(ctx, "ignoring different admin screen id",
			"registered", cur,
			"attempted", id,
		)
	}
}

// Activate is called by the host when the module is switched on.
func (i *Instance) Activate(ctx context.Context, networkWide bool) {
	i.logger.Info(ctx, "module activated", "network_wide", networkWide, "version", i.version)
}

// Deactivate is called by the host when the module is switched off.
func (i *Instance) Deactivate(ctx context.Context, networkWide bool) {
	i.logger.Info(ctx, "module deactivated", "network_wide", networkWide, "version", i.version)
}
