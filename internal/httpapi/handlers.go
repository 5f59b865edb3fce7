package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/retrieve"
)

type entryResponse struct {
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Key        string          `json:"key"`
	Backend    string          `json:"backend"`
	TTL        string          `json:"ttl"`
	Value      json.RawMessage `json:"value"`
	Tags       []string        `json:"tags,omitempty"`
	Compressed bool            `json:"compressed"`
}

type countResponse struct {
	Tag     string `json:"tag,omitempty"`
	Removed int    `json:"removed"`
}

// proxy serves GET /api/* from the upstream through the cache. The
// strategy query parameter overrides the configured strategy and tag
// parameters attach dependency tags. Both are left out of the cache key.
func (a *API) proxy(w http.ResponseWriter, r *http.Request) {
	if a.upstream == nil {
		a.writeError(w, r, ErrUpstreamDisabled)
		return
	}

	q := r.URL.Query()
	strategy := a.upstream.Strategy()
	if s := q.Get("strategy"); s != "" {
		parsed, err := retrieve.ParseStrategy(s)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		strategy = parsed
	}
	tags := q["tag"]
	q.Del("strategy")
	q.Del("tag")

	path := r.URL.Path
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	raw, err := a.upstream.Raw(r.Context(), path, strategy, cache.WithTags(tags...))
	if err != nil {
		if a.metrics != nil {
			a.metrics.ObserveFailure(err)
		}
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Cache-Strategy", string(strategy))
	writeRaw(w, http.StatusOK, raw)
}

func (a *API) getEntry(w http.ResponseWriter, r *http.Request) {
	key, kind, err := entryTarget(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	e, ok := a.cache.GetEntry(r.Context(), key, cache.InBackend(kind))
	if !ok {
		a.writeError(w, r, ErrEntryNotFound)
		return
	}

	value, err := e.Payload()
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entryResponse{
		Key:        key,
		Backend:    kind.String(),
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt(),
		TTL:        e.TTL.String(),
		Compressed: e.Compressed,
		Tags:       e.Tags,
		Value:      value,
	})
}

// putEntry stores the JSON body under the key. Query parameters: ttl,
// backend, tag (repeatable), compress.
func (a *API) putEntry(w http.ResponseWriter, r *http.Request) {
	key, kind, err := entryTarget(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEntryBodySize))
	if err != nil || !json.Valid(body) {
		a.writeError(w, r, ErrInvalidBody)
		return
	}

	q := r.URL.Query()
	opts := []cache.EntryOption{cache.InBackend(kind), cache.WithTags(q["tag"]...)}
	if s := q.Get("ttl"); s != "" {
		ttl, err := time.ParseDuration(s)
		if err != nil || ttl <= 0 {
			a.writeError(w, r, ErrInvalidTTL)
			return
		}
		opts = append(opts, cache.WithTTL(ttl))
	}
	if compress, _ := strconv.ParseBool(q.Get("compress")); compress {
		opts = append(opts, cache.WithCompression())
	}

	if err := cache.Set(r.Context(), a.cache, key, json.RawMessage(body), opts...); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteEntry(w http.ResponseWriter, r *http.Request) {
	key, _, err := entryTarget(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.cache.Delete(r.Context(), key)
	if err := a.scheduler.Broadcast(r.Context(), maintenance.Signal{Kind: maintenance.SignalKey, Value: key}); err != nil {
		a.logger.WarnContext(r.Context(), "failed to broadcast key signal", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) clear(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("backend")
	if name == "" {
		a.writeError(w, r, ErrMissingBackend)
		return
	}
	kind, err := cache.ParseKind(name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.cache.Clear(r.Context(), kind)
	w.WriteHeader(http.StatusNoContent)
}

// invalidate removes the tag locally and asks other instances to do the same.
func (a *API) invalidate(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	removed := a.scheduler.Invalidate(r.Context(), tag)

	if err := a.scheduler.Broadcast(r.Context(), maintenance.Signal{Kind: maintenance.SignalTag, Value: tag}); err != nil {
		a.logger.WarnContext(r.Context(), "failed to broadcast tag signal", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, countResponse{Tag: tag, Removed: removed})
}

func (a *API) hidden(w http.ResponseWriter, r *http.Request) {
	a.scheduler.Hidden(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, countResponse{Removed: a.scheduler.Sweep(r.Context())})
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	if a.profiles == nil || a.sessionStore == nil {
		a.writeError(w, r, ErrProfileDisabled)
		return
	}

	raw, err := a.profiles.Load(r.Context())
	if err != nil {
		if a.metrics != nil {
			a.metrics.ObserveFailure(err)
		}
		a.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

func (a *API) forgetProfile(w http.ResponseWriter, r *http.Request) {
	if a.profiles == nil || a.sessionStore == nil {
		a.writeError(w, r, ErrProfileDisabled)
		return
	}
	a.profiles.Forget(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// entryTarget reads the key from the wildcard and the backend from the
// backend query parameter, defaulting to memory.
func entryTarget(r *http.Request) (string, cache.Kind, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		return "", "", ErrEntryNotFound
	}

	kind := cache.KindMemory
	if name := r.URL.Query().Get("backend"); name != "" {
		kind, err = cache.ParseKind(name)
		if err != nil {
			return "", "", err
		}
	}
	return key, kind, nil
}
