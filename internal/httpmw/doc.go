// Package httpmw holds the middleware stacked in front of the page host.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, rate limiting, tracing, ad settings
// headers, metrics, request-scoped logging, then the chi router. Query
// strings and user-agent are kept out of log records.
package httpmw
