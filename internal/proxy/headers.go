package proxy

import (
	"net/http"
	"strings"
)

// Hop-by-hop headers must not be forwarded in either direction.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

const previewTokenHeader = "X-Daytona-Preview-Token"

// prepareUpstream rewrites an inbound request for the sandbox upstream: the
// preview token authenticates against the sandbox provider, and builder
// cookies never leave the edge.
func prepareUpstream(h http.Header, route *Route) {
	if route.PreviewToken != "" {
		h.Set(previewTokenHeader, route.PreviewToken)
	}
	h.Del("Cookie")
	h.Del("Authorization")
}

// scrubResponse removes everything that would stop the preview from
// rendering inside the builder iframe.
func scrubResponse(h http.Header, allowOrigin string) {
	h.Del("X-Frame-Options")
	h.Del(previewTokenHeader)

	if csp := h.Get("Content-Security-Policy"); csp != "" {
		if cleaned := stripFrameAncestors(csp); cleaned == "" {
			h.Del("Content-Security-Policy")
		} else {
			h.Set("Content-Security-Policy", cleaned)
		}
	}

	if allowOrigin != "" {
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Vary", "Origin")
	}
}

// stripFrameAncestors drops only the frame-ancestors directive, leaving the
// rest of the app's policy intact.
func stripFrameAncestors(csp string) string {
	parts := strings.Split(csp, ";")
	kept := parts[:0]
	for _, p := range parts {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), "frame-ancestors") {
			continue
		}
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "; ")
}
