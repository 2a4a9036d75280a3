package middleware

import (
	"net/http"

	"github.com/agroconexion/storefront-sync/internal/i18n"
)

// Language negotiates the response language from Accept-Language.
func Language(tr *i18n.Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tr == nil {
				next.ServeHTTP(w, r)
				return
			}
			lang := tr.Negotiate(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), tr, lang)))
		})
	}
}
