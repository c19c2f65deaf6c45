package websocket

import (
	"net/http"
	"strings"
)

// AllOrigins returns a CheckOriginFn that accepts every origin.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// AllowOrigins returns a CheckOriginFn that accepts the listed origins
// (scheme://host[:port], case-insensitive). A "*" entry or an empty list
// accepts every origin. Requests without an Origin header come from
// non-browser clients and are always accepted.
func AllowOrigins(origins []string) CheckOriginFn {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return AllOrigins()
		}
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	if len(allowed) == 0 {
		return AllOrigins()
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}
