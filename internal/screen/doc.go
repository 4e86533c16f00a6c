// Package screen turns the host's per-request state into the RequestContext
// every lifecycle callback receives.
//
// Resolution never fails: missing host fields fall back to defaults (empty
// locale, default section, fixed position) so a broken host integration
// degrades the ad snippet instead of breaking the page.
package screen
