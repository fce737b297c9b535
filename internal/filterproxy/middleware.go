package filterproxy

import "net/http"

// ErrorHandler writes the response for a request whose Handle call failed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorHandler responds with the status from StatusCode.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	http.Error(w, http.StatusText(code), code)
}

// Middleware adapts the proxy to the func(http.Handler) http.Handler form
// used by routers such as chi. A nil onError means DefaultErrorHandler.
func (p *Proxy) Middleware(onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := p.Handle(w, r, next); err != nil {
				onError(w, r, err)
			}
		})
	}
}
