package callsign

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
)

const (
	DefaultAPIURL  = "https://database.radioid.net/api/dmr/user/"
	DefaultTimeout = time.Second
	// DefaultMinID excludes the reserved/test id range from lookups.
	DefaultMinID = 1000
)

type Config struct {
	APIURL  string
	Timeout time.Duration
	MinID   int
}

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinID <= 0 {
		c.MinID = DefaultMinID
	}
	return c
}

type lookupResponse struct {
	Callsign string `json:"callsign"`
	Results  []struct {
		Callsign string `json:"callsign"`
	} `json:"results"`
}

// Resolver resolves subscriber ids to callsigns through the radioid HTTP
// API. Results are cached for the process lifetime; a failed or timed-out
// lookup is cached as "" and never retried, so resolution can never stall
// state reconciliation beyond one bounded request.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg.withDefaults(),
		logger: logger,
		cache:  map[string]string{},
	}
}

// Resolve returns the uppercase callsign for ssi, or "".
func (r *Resolver) Resolve(ssi string) string {
	id, err := strconv.Atoi(ssi)
	if err != nil || id < r.cfg.MinID {
		return ""
	}

	r.mu.Lock()
	if cached, ok := r.cache[ssi]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	resolved := r.lookup(ssi)

	r.mu.Lock()
	r.cache[ssi] = resolved
	r.mu.Unlock()
	return resolved
}

// Seed pre-populates the cache, bypassing the network. Used by demo mode
// and by tests.
func (r *Resolver) Seed(ssi, call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[ssi] = strings.ToUpper(call)
}

func (r *Resolver) lookup(ssi string) string {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	var payload lookupResponse
	err := requests.URL(r.cfg.APIURL).
		Param("id", ssi).
		ToJSON(&payload).
		Fetch(ctx)
	if err != nil {
		r.logger.Debug("callsign lookup failed", "ssi", ssi, "err", err)
		return ""
	}

	call := payload.Callsign
	if call == "" && len(payload.Results) > 0 {
		call = payload.Results[0].Callsign
	}
	return strings.ToUpper(call)
}
