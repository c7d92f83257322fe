package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrisense/crop-advisory-service/internal/cache"
	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// ErrUnresolved is the uniform failure for both resolution paths; callers
// never see coordinates without an address. The cause stays in the chain:
// errors.Is(err, ErrNoMatch) means the provider answered with no result,
// anything else is a transport failure. Only the latter says something about
// provider health.
var ErrUnresolved = errors.New("location unresolved")

// Resolver turns user input (free text, Indian pincode, or an IP address)
// into a Location, memoizing results in the shared cache. IP lookups use a
// short TTL, text geocoding a longer one.
type Resolver struct {
	geocoder Geocoder
	iplocate IPLocator
	cache    cache.Cache
	textTTL  time.Duration
	ipTTL    time.Duration
}

func NewResolver(geocoder Geocoder, iplocate IPLocator, c cache.Cache, textTTL, ipTTL time.Duration) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		iplocate: iplocate,
		cache:    c,
		textTTL:  textTTL,
		ipTTL:    ipTTL,
	}
}

// GeocodeQuery maps raw user input to the provider query. Exactly six numeric
// characters are treated as an Indian postal code and qualified with the
// country to bias the search; everything else passes through unchanged.
func GeocodeQuery(input string) string {
	if isPincode(input) {
		return input + ", India"
	}
	return input
}

func isPincode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveText resolves free-text or pincode input. Identical inputs within
// the TTL window are served from cache without an upstream call.
func (r *Resolver) ResolveText(ctx context.Context, input string) (models.Location, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		observability.LocationResolutionsTotal.WithLabelValues("text", "unresolved").Inc()
		return models.Location{}, fmt.Errorf("%w: %w", ErrUnresolved, ErrNoMatch)
	}

	key := "geocode:" + strings.ToLower(input)
	if loc, ok := r.cachedLocation(ctx, key, "geocode"); ok {
		observability.LocationResolutionsTotal.WithLabelValues("text", "resolved").Inc()
		return loc, nil
	}

	loc, err := r.geocoder.Geocode(ctx, GeocodeQuery(input))
	if err != nil || !resolved(loc) {
		if logger := loggerFromContext(ctx); logger != nil && err != nil && !errors.Is(err, ErrNoMatch) {
			logger.Warn("geocoding failed", zap.String("input", input), zap.Error(err))
		}
		observability.LocationResolutionsTotal.WithLabelValues("text", "unresolved").Inc()
		return models.Location{}, unresolvedError(err)
	}

	r.storeLocation(ctx, key, loc, r.textTTL)
	observability.LocationResolutionsTotal.WithLabelValues("text", "resolved").Inc()
	return loc, nil
}

// ResolveIP resolves the caller's IP address, with a shorter cache window
// since mobile clients move between networks.
func (r *Resolver) ResolveIP(ctx context.Context, ip string) (models.Location, error) {
	key := "iploc:" + ip
	if loc, ok := r.cachedLocation(ctx, key, "iplocate"); ok {
		observability.LocationResolutionsTotal.WithLabelValues("ip", "resolved").Inc()
		return loc, nil
	}

	loc, err := r.iplocate.Locate(ctx, ip)
	if err != nil || !resolved(loc) {
		if logger := loggerFromContext(ctx); logger != nil && err != nil && !errors.Is(err, ErrNoMatch) {
			logger.Warn("ip location failed", zap.String("ip", ip), zap.Error(err))
		}
		observability.LocationResolutionsTotal.WithLabelValues("ip", "unresolved").Inc()
		return models.Location{}, unresolvedError(err)
	}

	r.storeLocation(ctx, key, loc, r.ipTTL)
	observability.LocationResolutionsTotal.WithLabelValues("ip", "resolved").Inc()
	return loc, nil
}

// resolved enforces the all-or-nothing rule: coordinates are only meaningful
// alongside a non-empty address.
func resolved(loc models.Location) bool {
	return loc.Address != ""
}

// unresolvedError wraps the provider error under ErrUnresolved. A nil or
// partial answer counts as a miss.
func unresolvedError(err error) error {
	if err == nil {
		err = ErrNoMatch
	}
	return fmt.Errorf("%w: %w", ErrUnresolved, err)
}

func (r *Resolver) cachedLocation(ctx context.Context, key, kind string) (models.Location, bool) {
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return models.Location{}, false
	}
	if !ok {
		return models.Location{}, false
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return models.Location{}, false
	}
	observability.CacheHitsTotal.WithLabelValues(kind).Inc()
	return loc, true
}

func (r *Resolver) storeLocation(ctx context.Context, key string, loc models.Location, ttl time.Duration) {
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		if logger := loggerFromContext(ctx); logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}
