// Package plugin is the ad-snippet page extension: one long-lived Instance
// that binds its callbacks to the host's lifecycle phases, activates its
// style and script bundles on the right screens and writes the ad-network
// snippet into every page head.
//
// Construct it once at startup with GetInstance and hand Registry() to the
// host; the instance is safe for concurrent requests.
package plugin
