package screen

// HostState is the raw, per-request view the host adapter hands over. Every
// field is optional.
type HostState struct {
	// Admin reports whether the request is being rendered inside the
	// administration area.
	Admin bool
	// ScreenID is the host's identifier for the current admin screen, nil
	// outside the admin area.
	ScreenID *string
	// Locale is the site locale as the host sees it (before filtering).
	Locale         string
	AcceptLanguage string
	Path           string
	PostID         string
	// Server is request/server metadata, only used for diagnostics.
	Server map[string]string
}

// RequestContext is rebuilt for every lifecycle event and discarded after.
type RequestContext struct {
	IsAdminScreen   bool
	CurrentScreenID *string
	Locale          string
	SectionName     string
	Position        int
	PostID          string
	Server          map[string]string
}

// ScreenID returns the current screen identifier and whether there is one.
func (c RequestContext) ScreenID() (string, bool) {
	if c.CurrentScreenID == nil {
		return "", false
	}
	return *c.CurrentScreenID, true
}

// StringPtr is a small helper for building HostState/RequestContext literals.
func StringPtr(s string) *string { return &s }
