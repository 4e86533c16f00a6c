package host

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/screen"
)

var ErrInvalidOptions = errors.New("host: invalid options")

const (
	AdminPath = "/wp-admin/plugins.php"

	// AdminScreenPrefix + page slug is the screen id handed back from
	// AddAdminPage.
	AdminScreenPrefix = "plugins_page_"
	// PluginsScreenID is the screen id of the admin index itself.
	PluginsScreenID = "plugins"

	JQueryURL = "https://code.jquery.com/jquery-3.7.1.min.js"
)

// Module is the part of the plugin instance the host drives.
type Module interface {
	Slug() string
	AssetsBase() string
	Registry() *lifecycle.Registry
}

// Metrics is implemented by *metrics.ServerMetrics.
type Metrics interface {
	IncMissingDependency(dep string)
}

type Options struct {
	Logger   log.Logger
	Module   Module
	Resolver *screen.Resolver
	// Settings provides the site locale handed to the resolver. Nil means
	// the built-in default locale.
	Settings adconfig.Provider
	Metrics  Metrics

	// SiteFS is the public site, FallbackFS holds the error pages and
	// BundleFS the module's css/js files.
	SiteFS     fs.FS
	FallbackFS fs.FS
	BundleFS   fs.FS

	// Libraries resolve bundle dependencies, keyed by dependency name.
	// Defaults to DefaultLibraries().
	Libraries map[string]assets.Registration

	// ServerInfo fills RequestContext.Server with request metadata for the
	// diagnostic dump in the page head.
	ServerInfo bool

	Fallback404File string // default: "404.html"
	Site404File     string // default: "404.html"

	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

// DefaultLibraries is what the host ships for bundle dependencies.
func DefaultLibraries() map[string]assets.Registration {
	return map[string]assets.Registration{
		assets.DependencyJQuery: {
			Bundle: assets.DependencyJQuery,
			Kind:   assets.KindScript,
			URL:    JQueryURL,
		},
	}
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Libraries == nil {
		o.Libraries = DefaultLibraries()
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Module == nil {
		return fmt.Errorf("%w: Module is nil", ErrInvalidOptions)
	}
	if o.Module.Registry() == nil {
		return fmt.Errorf("%w: Module has no registry", ErrInvalidOptions)
	}
	if o.Resolver == nil {
		return fmt.Errorf("%w: Resolver is nil", ErrInvalidOptions)
	}
	if o.SiteFS == nil {
		return fmt.Errorf("%w: SiteFS is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// the fallback 404 is optional, we degrade to plain text
	return nil
}
