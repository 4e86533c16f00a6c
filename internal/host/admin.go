package host

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

var adminShell = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body class="wp-admin {{.ScreenID}}">
<nav id="adminmenu">
{{- range .Menu}}
<a href="{{.Href}}">{{.Title}}</a>
{{- end}}
</nav>
<div id="wpbody">
{{.Content}}
</div>
</body>
</html>
`))

type menuItem struct {
	Title string
	Href  string
}

type adminDoc struct {
	Lang     string
	Title    string
	ScreenID string
	Menu     []menuItem
	Content  template.HTML
}

// serveAdmin renders /wp-admin/plugins.php. With ?page=<slug> it renders the
// admin page registered under that slug, otherwise the plugins index.
func (h *Host) serveAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pr := newPageRequest(h.opts.Libraries)
	st := h.hostState(r, true)

	h.fire(ctx, lifecycle.PhaseInit, st, pr, nil)
	h.fire(ctx, lifecycle.PhaseAdminMenuBuild, st, pr, nil)

	slug := r.URL.Query().Get("page")
	screenID := PluginsScreenID
	page, ok := pr.pages[slug]
	switch {
	case slug == "":
	case ok:
		screenID = AdminScreenPrefix + slug
	default:
		w.Header().Set("Cache-Control", "no-store")
		http.NotFound(w, r)
		return
	}
	st.ScreenID = &screenID
	h.fire(ctx, lifecycle.PhaseAdminResources, st, pr, nil)

	rc := h.opts.Resolver.Resolve(st)
	doc := adminDoc{
		Lang:     rc.Locale,
		Title:    "Plugins",
		ScreenID: screenID,
		Menu:     pr.menu(),
	}
	if ok {
		doc.Title = page.PageTitle
		content, err := renderAdminPage(ctx, page)
		if err != nil {
			log.FromContext(ctx).Error(ctx, err, "admin page render failed", "page", slug)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		doc.Content = content
	}

	var body bytes.Buffer
	if err := adminShell.Execute(&body, doc); err != nil {
		log.FromContext(ctx).Error(ctx, xerrors.Wrap(err, "render admin shell"), "admin render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var head bytes.Buffer
	h.renderQueue(ctx, &head, pr)
	writeHTML(w, r, http.StatusOK, spliceHead(body.Bytes(), head.Bytes()), "no-store")
}

func renderAdminPage(ctx context.Context, page lifecycle.AdminPage) (template.HTML, error) {
	if page.Render == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := page.Render(ctx, &buf); err != nil {
		return "", err
	}
	// page output is already escaped by its own template
	return template.HTML(buf.String()), nil //nolint:gosec
}

func (p *pageRequest) menu() []menuItem {
	items := make([]menuItem, 0, len(p.order))
	for _, slug := range p.order {
		items = append(items, menuItem{
			Title: p.pages[slug].MenuTitle,
			Href:  AdminPath + "?page=" + slug,
		})
	}
	return items
}
