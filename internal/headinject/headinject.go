// Package headinject renders the ad-network snippet written into the page
// head: a diagnostic comment, the loader script and the configuration block.
package headinject

import (
	"io"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/screen"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

// Params is everything the snippet is parameterised by.
type Params struct {
	Locale       string
	Site         string
	Section      string
	Position     int
	PostID       string
	Custom       string
	ContestCount int
	LoaderURL    string
	// Dump is the already-sanitised diagnostic comment body.
	Dump string
}

// text/template: html/template drops HTML comments from output.
var snippet = template.Must(template.New("head").Funcs(template.FuncMap{"jsq": jsQuote}).Parse(`<!--
{{.Dump}}-->
<script type="text/javascript" language="JavaScript">
(function() {
  var proto = (window.location.protocol == "https:" ? "https:" : "http:");
  document.writeln('<scr' + 'ipt type="text/ja' + 'vascr' + 'ipt" s' + 'rc="' +
    proto + '{{jsq .LoaderURL}}' +
    '"></scr' + 'ipt>');
})();
</script>
<script type="text/javascript" language="JavaScript">
/*
<![CDATA[
*/
OBOXADS.vars.lang = '{{jsq .Locale}}';
OBOXADS.vars.custom = "{{jsq .Custom}}";
OBOXADS.vars.displayedAdSpot = [];
OBOXADS.vars.postID = '{{jsq .PostID}}';
OBOXADS.vars.sectionPathName = '{{jsq .Section}}';
OBOXADS.vars.position = {{.Position}};
OBOXADS.vars.site = '{{jsq .Site}}';
OBOXADS.config.site = '{{jsq .Site}}';
OBOXADS.config.contestCount = {{.ContestCount}};

OBOXADS.fn.init();
/*
]]>
*/
</script>
`))

var jsQuoter = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"<", `\x3C`,
	">", `\x3E`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// jsQuote escapes s for a single- or double-quoted JS string literal inside
// a script element.
func jsQuote(s string) string { return jsQuoter.Replace(s) }

type Injector struct {
	settings adconfig.Provider
}

// New returns an injector reading ad settings from p on every render. A nil
// provider means compiled-in defaults.
func New(p adconfig.Provider) *Injector {
	return &Injector{settings: p}
}

func (in *Injector) current() adconfig.Settings {
	if in.settings == nil {
		return adconfig.Defaults()
	}
	return in.settings.Current()
}

// Params merges the request context over the current site settings. Request
// values win; empty/zero ones fall back to the site default.
func (in *Injector) Params(rc screen.RequestContext) Params {
	s := in.current()
	p := Params{
		Locale:       rc.Locale,
		Site:         s.Site,
		Section:      rc.SectionName,
		Position:     rc.Position,
		PostID:       rc.PostID,
		Custom:       s.Custom,
		ContestCount: s.ContestCount,
		LoaderURL:    s.LoaderURL(),
		Dump:         DiagnosticDump(rc.Server),
	}
	if p.Locale == "" {
		p.Locale = s.Locale
	}
	if p.Section == "" {
		p.Section = s.Section
	}
	if p.Position <= 0 {
		p.Position = s.Position
	}
	return p
}

// Emit streams the snippet for rc to w.
func (in *Injector) Emit(w io.Writer, rc screen.RequestContext) error {
	return Render(w, in.Params(rc))
}

func Render(w io.Writer, p Params) error {
	if err := snippet.Execute(w, p); err != nil {
		return xerrors.Wrap(err, "render head snippet")
	}
	return nil
}

// DiagnosticDump formats server metadata as sorted "[key] => value" lines
// that are safe to place inside an HTML comment.
func DiagnosticDump(server map[string]string) string {
	var b strings.Builder
	b.WriteString("Array\n(\n")
	for _, k := range slices.Sorted(maps.Keys(server)) {
		b.WriteString("    [")
		b.WriteString(k)
		b.WriteString("] => ")
		b.WriteString(server[k])
		b.WriteString("\n")
	}
	b.WriteString(")\n")
	return neutralizeComment(b.String())
}

// neutralizeComment removes every "--" so the text cannot terminate the
// surrounding comment.
func neutralizeComment(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	return s
}
