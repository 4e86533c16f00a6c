// Package host is the reference host platform for the ad module. It serves a
// static public site and a minimal administration area, and for every HTML
// response it fires the module's lifecycle phases in order:
//
//	admin:  init, admin-menu-build, admin-resource-phase
//	public: init, public-resource-phase, page-head-render
//
// Each request gets its own resource queue and admin page table. Whatever
// the module enqueues or writes during page-head-render is spliced in front
// of the closing </head> tag of the served document.
package host
