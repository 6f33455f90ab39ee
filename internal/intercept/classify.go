package intercept

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

type requestClass int

const (
	classPassThrough requestClass = iota
	classDevBypass
	classStatic
	classAPI
	classImage
)

var defaultAnalyticsHosts = []string{
	"www.google-analytics.com",
	"analytics.google.com",
	"www.googletagmanager.com",
	"stats.g.doubleclick.net",
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {},
}

var staticExtensions = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".html": {}, ".json": {}, ".woff": {}, ".woff2": {},
}

// hot-reload and module-id-tagged requests issued by dev servers
var devBypassMarkers = []string{"hot-update", "/@vite/", "/@id/", "/node_modules/"}

// classify applies the interception rules in order. Only GETs reach this
// point; everything unmatched passes through untouched.
func (i *Interceptor) classify(r *http.Request, target *url.URL) requestClass {
	// 1. tracking traffic and extension protocols are never intercepted
	if target.Scheme != "http" && target.Scheme != "https" {
		return classPassThrough
	}
	for _, h := range i.cfg.AnalyticsHosts {
		if strings.EqualFold(target.Host, h) {
			return classPassThrough
		}
	}

	sameOrigin := strings.EqualFold(target.Host, i.appHost)

	// 2. development context: cross-origin and hot-reload requests skip
	// the cache entirely
	if i.devContext {
		if !sameOrigin && !strings.EqualFold(target.Host, i.apiHost) {
			return classDevBypass
		}
		for _, marker := range devBypassMarkers {
			if strings.Contains(target.Path, marker) {
				return classDevBypass
			}
		}
		if target.Query().Has("t") {
			// dev servers tag reloaded modules with a timestamp query
			return classDevBypass
		}
	}

	// 4. remote API traffic (checked before static: the API may share the
	// app origin in proxied setups)
	if strings.EqualFold(target.Host, i.apiHost) {
		return classAPI
	}

	ext := strings.ToLower(path.Ext(target.Path))

	// 5. images
	if _, ok := imageExtensions[ext]; ok {
		return classImage
	}
	if strings.HasPrefix(r.Header.Get("Accept"), "image/") {
		return classImage
	}

	// 3. static scripts, stylesheets and documents of the app shell
	if sameOrigin {
		if target.Path == "/" || target.Path == "/index.html" {
			return classStatic
		}
		if strings.HasPrefix(target.Path, "/src/") || strings.HasPrefix(target.Path, "/assets/") {
			return classStatic
		}
		if _, ok := staticExtensions[ext]; ok {
			return classStatic
		}
		if isNavigation(r) {
			return classStatic
		}
	}

	return classPassThrough
}

// isNavigation approximates a browser top-level navigation request.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
