package webassets

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/plugin"
)

func TestBundleFS_HasEveryDescriptor(t *testing.T) {
	bfs := BundleFS()
	for _, d := range assets.NewCatalog(plugin.DefaultSlug, plugin.DefaultVersion).All() {
		info, err := fs.Stat(bfs, d.RelativePath)
		if err != nil {
			t.Errorf("%s: %v", d.Name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s: empty bundle file", d.RelativePath)
		}
	}
}

func TestBundleFS_ScriptsUseJQuery(t *testing.T) {
	c := assets.NewCatalog(plugin.DefaultSlug, plugin.DefaultVersion)
	for _, d := range []assets.Descriptor{c.AdminScript, c.PublicScript} {
		b, err := fs.ReadFile(BundleFS(), d.RelativePath)
		if err != nil {
			t.Fatalf("read %s: %v", d.RelativePath, err)
		}
		if !strings.Contains(string(b), "jQuery") {
			t.Errorf("%s does not use the jquery dependency it declares", d.RelativePath)
		}
	}
}

func TestSeedSiteFS(t *testing.T) {
	sfs, ok := SeedSiteFS()
	if !ok {
		t.Fatal("seed site missing index.html")
	}
	err := fs.WalkDir(sfs, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".html") {
			return err
		}
		b, err := fs.ReadFile(sfs, p)
		if err != nil {
			return err
		}
		if !strings.Contains(strings.ToLower(string(b)), "</head>") {
			t.Errorf("%s has no </head> for the head splice", p)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFallbackFS(t *testing.T) {
	ffs := FallbackFS()
	for _, name := range []string{"404.html", "500.html"} {
		if _, err := fs.Stat(ffs, name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := fs.Stat(ffs, "../seed/index.html"); err == nil {
		t.Fatal("fallback FS escapes its root")
	}
	if _, err := fs.Stat(ffs, "index.html"); err == nil {
		t.Fatal("fallback FS exposes seed files")
	}
}
