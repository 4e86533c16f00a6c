// Package adconfig holds the runtime ad-network settings used by the head
// snippet: site, default locale/section/position, contest count and loader
// location.
//
// Settings start from compiled-in defaults and can be published at runtime:
// an SSM parameter carries the SHA-256 of the current settings document, the
// document itself lives in S3 at {prefix}/{hash}.json and, when a KMS key is
// configured, a detached signature at {prefix}/{hash}.json.sig. A Watcher
// polls the parameter and atomically swaps verified settings into a Manager.
package adconfig
