package assets

// DependencyJQuery is the shared interactivity library both scripts rely on.
// The host resolves it; the module only names it.
const DependencyJQuery = "jquery"

// Catalog holds the four fixed bundles of the module.
type Catalog struct {
	AdminStyle   Descriptor
	AdminScript  Descriptor
	PublicStyle  Descriptor
	PublicScript Descriptor
}

// NewCatalog builds the bundle set, namespacing names with slug and stamping
// every bundle with version.
func NewCatalog(slug, version string) Catalog {
	return Catalog{
		AdminStyle: Descriptor{
			Name:         slug + "-admin-styles",
			Kind:         KindStyle,
			RelativePath: "css/admin.css",
			Version:      version,
		},
		AdminScript: Descriptor{
			Name:         slug + "-admin-script",
			Kind:         KindScript,
			RelativePath: "js/" + slug + "-admin.js",
			Dependencies: []string{DependencyJQuery},
			Version:      version,
		},
		PublicStyle: Descriptor{
			Name:         slug + "-plugin-styles",
			Kind:         KindStyle,
			RelativePath: "css/public.css",
			Version:      version,
		},
		PublicScript: Descriptor{
			Name:         slug + "-plugin-script",
			Kind:         KindScript,
			RelativePath: "js/public.js",
			Dependencies: []string{DependencyJQuery},
			Version:      version,
		},
	}
}

func (c Catalog) Admin() []Descriptor  { return []Descriptor{c.AdminStyle, c.AdminScript} }
func (c Catalog) Public() []Descriptor { return []Descriptor{c.PublicStyle, c.PublicScript} }

func (c Catalog) All() []Descriptor {
	return []Descriptor{c.AdminStyle, c.AdminScript, c.PublicStyle, c.PublicScript}
}

// Lookup finds a descriptor by bundle name.
func (c Catalog) Lookup(name string) (Descriptor, bool) {
	for _, d := range c.All() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
