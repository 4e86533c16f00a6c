package host

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/screen"
)

type Host struct {
	opts   Options
	router chi.Router
}

func New(opts *Options) (*Host, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	h := &Host{opts: *opts}
	h.router = h.routes()
	return h, nil
}

func (h *Host) routes() chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	get := func(pattern string, fn http.HandlerFunc) {
		r.Get(pattern, fn)
		r.Head(pattern, fn)
	}

	get(AdminPath, h.serveAdmin)
	// an absolute AssetsBase means bundles live on another origin
	if base := strings.TrimRight(h.opts.Module.AssetsBase(), "/"); strings.HasPrefix(base, "/") && h.opts.BundleFS != nil {
		get(base+"/*", h.serveBundle)
	}
	get("/*", h.servePublic)
	return r
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// pageRequest is the per-request host state the module's callbacks see.
type pageRequest struct {
	queue *assets.Queue
	pages map[string]lifecycle.AdminPage
	order []string
}

func newPageRequest(libs map[string]assets.Registration) *pageRequest {
	return &pageRequest{
		queue: assets.NewQueue(libs),
		pages: make(map[string]lifecycle.AdminPage),
	}
}

func (p *pageRequest) Enqueue(reg assets.Registration) { p.queue.Enqueue(reg) }

func (p *pageRequest) AddAdminPage(page lifecycle.AdminPage) string {
	if _, dup := p.pages[page.Slug]; !dup {
		p.order = append(p.order, page.Slug)
	}
	p.pages[page.Slug] = page
	return AdminScreenPrefix + page.Slug
}

// fire dispatches one phase with a freshly resolved request context.
func (h *Host) fire(ctx context.Context, phase lifecycle.Phase, st screen.HostState, pr *pageRequest, out io.Writer) {
	ev := &lifecycle.Event{
		Phase:   phase,
		Request: h.opts.Resolver.Resolve(st),
		Host:    pr,
		Out:     out,
	}
	if err := h.opts.Module.Registry().Dispatch(ctx, ev); err != nil {
		log.FromContext(ctx).Error(ctx, err, "lifecycle dispatch failed", "phase", phase.String())
	}
}

func (h *Host) hostState(r *http.Request, admin bool) screen.HostState {
	st := screen.HostState{
		Admin:          admin,
		Locale:         h.siteLocale(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Path:           r.URL.Path,
		PostID:         r.URL.Query().Get("p"),
	}
	if h.opts.ServerInfo {
		st.Server = serverInfo(r)
	}
	return st
}

func (h *Host) siteLocale() string {
	if h.opts.Settings == nil {
		return adconfig.DefaultLocale
	}
	return h.opts.Settings.Current().Locale
}

func serverInfo(r *http.Request) map[string]string {
	return map[string]string{
		"REQUEST_METHOD":  r.Method,
		"REQUEST_URI":     r.URL.RequestURI(),
		"SERVER_NAME":     r.Host,
		"SERVER_PROTOCOL": r.Proto,
	}
}

// renderQueue writes the enqueued resource tags and reports dependencies the
// host could not resolve.
func (h *Host) renderQueue(ctx context.Context, w io.Writer, pr *pageRequest) {
	missing, err := pr.queue.Render(w)
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "failed to render resource tags")
	}
	for _, dep := range missing {
		log.FromContext(ctx).Warn(ctx, "unresolved bundle dependency", "dependency", dep)
		if h.opts.Metrics != nil {
			h.opts.Metrics.IncMissingDependency(dep)
		}
	}
}

// spliceHead inserts head before the first </head>, or at the top of doc
// when there is none.
func spliceHead(doc, head []byte) []byte {
	if len(head) == 0 {
		return doc
	}
	i := indexHeadClose(doc)
	if i < 0 {
		i = 0
	}
	out := make([]byte, 0, len(doc)+len(head))
	out = append(out, doc[:i]...)
	out = append(out, head...)
	return append(out, doc[i:]...)
}

var headClose = []byte("</head>")

// indexHeadClose finds the first "</head>" ignoring ASCII case. It compares
// bytes in place so offsets stay valid for documents that are not UTF-8.
func indexHeadClose(doc []byte) int {
	for i := 0; i+len(headClose) <= len(doc); i++ {
		if doc[i] == '<' && bytes.EqualFold(doc[i:i+len(headClose)], headClose) {
			return i
		}
	}
	return -1
}

func writeHTML(w http.ResponseWriter, r *http.Request, status int, body []byte, cacheControl string) {
	hd := w.Header()
	hd.Set("Content-Type", "text/html; charset=utf-8")
	hd.Set("Content-Length", strconv.Itoa(len(body)))
	if cacheControl != "" {
		hd.Set("Cache-Control", cacheControl)
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
