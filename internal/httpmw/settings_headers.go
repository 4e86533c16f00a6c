package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
)

// SettingsInfo reports which ad settings snapshot is serving.
type SettingsInfo interface {
	Hash() string
	Source() adconfig.Source
}

// SettingsHeaders adds X-Ad-Settings-Source and, for documents loaded from
// S3, a 12 character X-Ad-Settings-Hash. The span gets the full values.
func SettingsHeaders(info SettingsInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			src := string(info.Source())
			hash := info.Hash()
			if src != "" {
				w.Header().Set("X-Ad-Settings-Source", src)
			}
			if hash != "" {
				short := hash
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Ad-Settings-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(attribute.String("ad_settings.source", src))
				if hash != "" {
					span.SetAttributes(attribute.String("ad_settings.sha256", hash))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
