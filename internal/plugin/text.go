package plugin

import (
	"embed"
	"encoding/json"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

//go:embed lang/*.json
var langFS embed.FS

// textDomain holds the module's translations, loaded from lang/<domain>-<locale>.json
// the first time the init phase fires.
type textDomain struct {
	domain string
	src    fs.FS

	once    sync.Once
	builder *catalog.Builder
	locales []string
	err     error
}

func newTextDomain(domain string, src fs.FS) *textDomain {
	return &textDomain{domain: domain, src: src}
}

func (td *textDomain) load() error {
	td.once.Do(func() {
		b := catalog.NewBuilder(catalog.Fallback(language.English))
		paths, err := fs.Glob(td.src, "lang/"+td.domain+"-*.json")
		if err != nil {
			td.err = xerrors.Wrap(err, "glob translations")
			return
		}
		for _, p := range paths {
			locale := strings.TrimSuffix(strings.TrimPrefix(path.Base(p), td.domain+"-"), ".json")
			tag, err := language.Parse(locale)
			if err != nil {
				td.err = xerrors.Wrapf(err, "translation file %s", p)
				return
			}
			data, err := fs.ReadFile(td.src, p)
			if err != nil {
				td.err = xerrors.Wrapf(err, "read %s", p)
				return
			}
			var msgs map[string]string
			if err := json.Unmarshal(data, &msgs); err != nil {
				td.err = xerrors.Wrapf(err, "decode %s", p)
				return
			}
			for _, key := range slices.Sorted(maps.Keys(msgs)) {
				if err := b.SetString(tag, key, msgs[key]); err != nil {
					td.err = xerrors.Wrapf(err, "register %s/%s", locale, key)
					return
				}
			}
			td.locales = append(td.locales, tag.String())
		}
		td.builder = b
	})
	return td.err
}

// Locales lists the loaded translation locales.
func (td *textDomain) Locales() []string {
	_ = td.load()
	return slices.Clone(td.locales)
}

// printer returns a printer for locale. If the translations failed to load,
// messages come back untranslated.
func (td *textDomain) printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if td.load() != nil {
		return message.NewPrinter(tag, message.Catalog(catalog.NewBuilder()))
	}
	return message.NewPrinter(tag, message.Catalog(td.builder))
}

func (td *textDomain) translate(locale, key string) string {
	return td.printer(locale).Sprintf(key)
}
