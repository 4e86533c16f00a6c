package host

import (
	"bytes"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
)

func (h *Host) servePublic(w http.ResponseWriter, r *http.Request) {
	file, redirectTo, ok := resolvePath(r.URL.Path, h.opts.SiteFS)
	if redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !ok {
		h.serveNotFound(w, r)
		return
	}
	if !isHTML(file) {
		if cc := cacheControlForFile(file, &h.opts); cc != "" {
			w.Header().Set("Cache-Control", cc)
		}
		http.ServeFileFS(w, r, h.opts.SiteFS, file)
		return
	}
	h.servePage(w, r, http.StatusOK, h.opts.SiteFS, file, h.opts.HTMLCacheControl)
}

// servePage runs the public phases and serves name from fsys with the
// module's head output spliced in.
func (h *Host) servePage(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name, cacheControl string) {
	ctx := r.Context()
	doc, err := fs.ReadFile(fsys, name)
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "failed to read page", "file", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	pr := newPageRequest(h.opts.Libraries)
	st := h.hostState(r, false)
	h.fire(ctx, lifecycle.PhaseInit, st, pr, nil)
	h.fire(ctx, lifecycle.PhasePublicResources, st, pr, nil)

	var head bytes.Buffer
	h.renderQueue(ctx, &head, pr)
	h.fire(ctx, lifecycle.PhasePageHeadRender, st, pr, &head)

	writeHTML(w, r, status, spliceHead(doc, head.Bytes()), cacheControl)
}

func (h *Host) serveNotFound(w http.ResponseWriter, r *http.Request) {
	switch {
	case existsFile(h.opts.SiteFS, h.opts.Site404File):
		h.servePage(w, r, http.StatusNotFound, h.opts.SiteFS, h.opts.Site404File, "no-store")
	case existsFile(h.opts.FallbackFS, h.opts.Fallback404File):
		h.servePage(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File, "no-store")
	default:
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("404 page not found"))
	}
}

// serveBundle serves the module's own css/js files.
func (h *Host) serveBundle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if !strings.HasPrefix(name, "css/") && !strings.HasPrefix(name, "js/") {
		http.NotFound(w, r)
		return
	}
	if _, _, ok := resolvePath("/"+name, h.opts.BundleFS); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", h.opts.AssetCacheControl)
	http.ServeFileFS(w, r, h.opts.BundleFS, name)
}
