// Package statushttp serves read-only JSON describing the running module:
// the active ad settings snapshot and the module's lifecycle bindings and
// bundles. It is mounted on the ops listener.
package statushttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/plugin"
	"github.com/keithlinneman/oboxads-web/internal/version"
)

// SnapshotProvider is satisfied by *adconfig.Manager.
type SnapshotProvider interface {
	Get() (*adconfig.Snapshot, bool)
}

type API struct {
	settings SnapshotProvider
	module   *plugin.Instance
	build    version.Info
	logger   log.Logger
	now      func() time.Time
}

func NewAPI(settings SnapshotProvider, module *plugin.Instance, build version.Info, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		settings: settings,
		module:   module,
		build:    build,
		logger:   logger,
		now:      time.Now,
	}
}

// Handler returns a router with the API routes mounted.
func (api *API) Handler() http.Handler {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/ad-settings", api.HandleSettings)
	r.Get("/api/ad-settings/summary", api.HandleSettingsSummary)
	r.Get("/api/module", api.HandleModule)
}

type SettingsResponse struct {
	Settings *adconfig.Settings `json:"settings,omitempty"`
	Runtime  RuntimeInfo        `json:"runtime"`
	Error    string             `json:"error,omitempty"`
}

type RuntimeInfo struct {
	LoadedAt   time.Time       `json:"loaded_at,omitzero"`
	ServerTime time.Time       `json:"server_time"`
	Source     adconfig.Source `json:"source,omitempty"`
	Hash       string          `json:"sha256,omitempty"`
}

type SettingsSummary struct {
	Site      string    `json:"site"`
	Locale    string    `json:"locale"`
	Section   string    `json:"section"`
	Position  int       `json:"position"`
	LoaderURL string    `json:"loader_url"`
	Source    string    `json:"source"`
	HashShort string    `json:"sha256_short,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

type ModuleResponse struct {
	Slug          string              `json:"slug"`
	Version       string              `json:"version"`
	AdminScreenID string              `json:"admin_screen_id,omitempty"`
	Bindings      map[string][]string `json:"bindings"`
	Bundles       []BundleInfo        `json:"bundles"`
	Build         BuildInfo           `json:"build"`
}

type BundleInfo struct {
	Name string   `json:"name"`
	Kind string   `json:"kind"`
	URL  string   `json:"url"`
	Deps []string `json:"deps,omitempty"`
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

func (api *API) HandleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serverTime := api.now().UTC().Truncate(time.Second)

	snap, ok := api.snapshot()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, SettingsResponse{
			Runtime: RuntimeInfo{ServerTime: serverTime},
			Error:   "no ad settings loaded",
		})
		return
	}

	s := snap.Settings
	api.writeJSON(ctx, w, http.StatusOK, SettingsResponse{
		Settings: &s,
		Runtime: RuntimeInfo{
			LoadedAt:   snap.LoadedAt.UTC().Truncate(time.Second),
			ServerTime: serverTime,
			Source:     snap.Source,
			Hash:       snap.Hash,
		},
	})
}

func (api *API) HandleSettingsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok := api.snapshot()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "no ad settings loaded"})
		return
	}

	short := snap.Hash
	if len(short) > 12 {
		short = short[:12]
	}
	api.writeJSON(ctx, w, http.StatusOK, SettingsSummary{
		Site:      snap.Settings.Site,
		Locale:    snap.Settings.Locale,
		Section:   snap.Settings.Section,
		Position:  snap.Settings.Position,
		LoaderURL: snap.Settings.LoaderURL(),
		Source:    string(snap.Source),
		HashShort: short,
		LoadedAt:  snap.LoadedAt.UTC().Truncate(time.Second),
	})
}

func (api *API) HandleModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.module == nil {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "module not initialised"})
		return
	}

	m := api.module
	resp := ModuleResponse{
		Slug:     m.Slug(),
		Version:  m.Version(),
		Bindings: make(map[string][]string),
		Build: BuildInfo{
			Version:   api.build.Version,
			Commit:    api.build.Commit,
			GoVersion: api.build.GoVersion,
		},
	}
	if id, ok := m.AdminScreenID(); ok {
		resp.AdminScreenID = id
	}
	for _, p := range lifecycle.Phases() {
		for _, b := range m.Registry().Bindings(p) {
			resp.Bindings[p.String()] = append(resp.Bindings[p.String()], b.Name)
		}
	}
	for _, d := range m.Catalog().All() {
		reg := d.Registration(m.AssetsBase())
		resp.Bundles = append(resp.Bundles, BundleInfo{
			Name: reg.Bundle,
			Kind: string(reg.Kind),
			URL:  reg.URL,
			Deps: reg.Deps,
		})
	}

	api.logger.Debug(ctx, "served module status", "slug", resp.Slug, "version", resp.Version)
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) snapshot() (*adconfig.Snapshot, bool) {
	if api.settings == nil {
		return nil, false
	}
	return api.settings.Get()
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
