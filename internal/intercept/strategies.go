package intercept

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// maxCachedBody caps how large a single cached response may be. Larger
// bodies are still served, just never stored.
const maxCachedBody = 8 << 20

// placeholderSVG is served when an image can neither be fetched nor found
// in the cache, so broken-image icons never appear offline.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">` +
	`<rect width="400" height="300" fill="#e5e7eb"/>` +
	`<text x="200" y="150" text-anchor="middle" dominant-baseline="middle" fill="#9ca3af" font-family="sans-serif" font-size="16">image unavailable</text>` +
	`</svg>`

// hop-by-hop headers must not be copied between the upstream response and
// the cached/proxied one (RFC 7230 section 6.1).
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// requestKey identifies a cache entry: method plus full target URL.
func requestKey(method string, target *url.URL) string {
	return method + " " + target.String()
}

// resolveTarget turns the incoming request into the absolute URL it is
// aimed at. Proxy-style requests carry an absolute URL already; plain
// requests are resolved against the app origin.
func (i *Interceptor) resolveTarget(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	u, err := url.Parse(i.cfg.AppOrigin + r.URL.RequestURI())
	if err != nil {
		return r.URL
	}
	return u
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// upstream performs the network request against the resolved target,
// stripping hop-by-hop headers from the forwarded copy.
func (i *Interceptor) upstream(r *http.Request, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	return i.client.Do(req)
}

// fetchAndCache fetches target over the network and, on a 2xx response
// small enough to store, writes it into the partition. The response is
// returned either way.
func (i *Interceptor) fetchAndCache(req *http.Request, partition string) (*CachedResponse, error) {
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream body: %w", err)
	}

	header := http.Header{}
	copyHeader(header, resp.Header)
	cached := &CachedResponse{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now(),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(body) <= maxCachedBody {
		key := requestKey(req.Method, req.URL)
		if err := i.cache.Put(partition, key, cached); err != nil {
			i.log.Warn(req.Context(), "failed to store cache entry", "key", key, "error", err)
		}
	}
	return cached, nil
}

func writeCached(w http.ResponseWriter, resp *CachedResponse) {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// serveStatic is cache-first with background refresh: a hit is answered
// from the cache immediately and the entry is refreshed off the request
// path, so the shell stays fast and converges on new deployments.
func (i *Interceptor) serveStatic(w http.ResponseWriter, r *http.Request, target *url.URL) {
	partition := partitionName(partStatic)
	key := requestKey(r.Method, target)

	if cached, ok, err := i.cache.Get(partition, key); err == nil && ok {
		writeCached(w, cached)
		go i.refresh(target, partition)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	copyHeader(req.Header, r.Header)
	cached, err := i.fetchAndCache(req, partition)
	if err != nil {
		// offline navigation falls back to the cached app shell
		if isNavigation(r) {
			rootKey := requestKey(http.MethodGet, i.mustParse(i.cfg.AppOrigin + "/"))
			if root, ok, gerr := i.cache.Get(partition, rootKey); gerr == nil && ok {
				writeCached(w, root)
				return
			}
		}
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return
	}
	writeCached(w, cached)
}

// refresh re-fetches target into the partition outside any request path.
func (i *Interceptor) refresh(target *url.URL, partition string) {
	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return
	}
	if _, err := i.fetchAndCache(req, partition); err != nil {
		i.log.Debug(req.Context(), "background refresh failed", "url", target.String(), "error", err)
	}
}

// serveAPI is network-first: live data when reachable, the last cached
// response for the exact URL when not, and a synthetic empty-but-valid
// offline envelope when there is no cache entry either. The offline
// envelope is a 200 so callers parse it like any other reply.
func (i *Interceptor) serveAPI(w http.ResponseWriter, r *http.Request, target *url.URL) {
	partition := partitionName(partAPI)
	key := requestKey(r.Method, target)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	copyHeader(req.Header, r.Header)

	cached, err := i.fetchAndCache(req, partition)
	if err == nil {
		writeCached(w, cached)
		return
	}
	i.log.Debug(r.Context(), "api fetch failed, falling back to cache", "url", target.String(), "error", err)

	if stale, ok, gerr := i.cache.Get(partition, key); gerr == nil && ok {
		writeCached(w, stale)
		return
	}

	env := models.NewOfflineEnvelope(time.Now())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(env)
}

// serveImage is cache-first without refresh; a miss that also fails on the
// network gets an inline SVG placeholder instead of an error status.
func (i *Interceptor) serveImage(w http.ResponseWriter, r *http.Request, target *url.URL) {
	partition := partitionName(partImages)
	key := requestKey(r.Method, target)

	if cached, ok, err := i.cache.Get(partition, key); err == nil && ok {
		writeCached(w, cached)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	copyHeader(req.Header, r.Header)
	cached, err := i.fetchAndCache(req, partition)
	if err != nil || cached.Status >= 400 {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, placeholderSVG)
		return
	}
	writeCached(w, cached)
}

// serveDevBypass proxies without touching the cache. A dev server that is
// down answers with an explicit 503 so stale tooling output is never
// mistaken for live output.
func (i *Interceptor) serveDevBypass(w http.ResponseWriter, r *http.Request, target *url.URL) {
	resp, err := i.upstream(r, target)
	if err != nil {
		i.log.Debug(r.Context(), "dev bypass fetch failed", "url", target.String(), "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": common.ErrDevBypass.Error()})
		return
	}
	defer resp.Body.Close()
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// servePassThrough is a transparent proxy with no caching semantics at all.
func (i *Interceptor) servePassThrough(w http.ResponseWriter, r *http.Request, target *url.URL) {
	resp, err := i.upstream(r, target)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (i *Interceptor) mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{Path: strings.TrimPrefix(raw, i.cfg.AppOrigin)}
	}
	return u
}
