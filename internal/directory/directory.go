// Package directory lists the companies offered in the console selectors.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tragel/adminconsole/internal/upstream"
)

const cacheKey = "console:directory:companies"

// Company is one selectable company.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory loads companies from the admin API and caches them in Redis.
type Directory struct {
	fetcher upstream.Fetcher
	url     string
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// New builds a Directory. A nil client disables caching; an empty url yields
// an empty directory.
func New(fetcher upstream.Fetcher, url string, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		fetcher: fetcher,
		url:     strings.TrimSpace(url),
		client:  client,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "directory")),
	}
}

// Companies returns the companies sorted by name.
func (d *Directory) Companies(ctx context.Context) ([]Company, error) {
	if d == nil || d.url == "" {
		return nil, nil
	}
	if d.client != nil {
		raw, err := d.client.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var cached []Company
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
			d.logger.Warn("discard corrupt directory cache")
		case !errors.Is(err, redis.Nil):
			d.logger.Warn("directory cache read", slog.Any("error", err))
		}
	}

	companies, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if d.client != nil {
		raw, err := json.Marshal(companies)
		if err == nil {
			err = d.client.Set(ctx, cacheKey, raw, d.ttl).Err()
		}
		if err != nil {
			d.logger.Warn("directory cache write", slog.Any("error", err))
		}
	}
	return companies, nil
}

// Invalidate drops the cached list.
func (d *Directory) Invalidate(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Del(ctx, cacheKey).Err()
}

// load accepts a bare array or a paginated {"companies": [...]} envelope.
func (d *Directory) load(ctx context.Context) ([]Company, error) {
	var raw json.RawMessage
	if err := d.fetcher.GetJSON(ctx, d.url, nil, &raw); err != nil {
		return nil, fmt.Errorf("directory: load companies: %w", err)
	}
	var companies []Company
	if err := json.Unmarshal(raw, &companies); err != nil {
		var envelope struct {
			Companies []Company `json:"companies"`
		}
		if envErr := json.Unmarshal(raw, &envelope); envErr != nil {
			return nil, fmt.Errorf("directory: decode companies: %w", err)
		}
		companies = envelope.Companies
	}
	sort.SliceStable(companies, func(i, j int) bool {
		return strings.ToLower(companies[i].Name) < strings.ToLower(companies[j].Name)
	})
	return companies, nil
}
