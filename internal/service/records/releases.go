package records

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/domain/models"
	"github.com/mamadbah2/recordshop/internal/repository/cache"
	"github.com/mamadbah2/recordshop/pkg/clients/musicbrainz"
)

const releaseKeyPrefix = "musicbrainz:"

// CachedReleases serves MusicBrainz lookups from the cache first.
type CachedReleases struct {
	client musicbrainz.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedReleases wraps client. A nil cache disables caching.
func NewCachedReleases(client musicbrainz.Client, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedReleases {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedReleases{client: client, cache: c, ttl: ttl, logger: logger}
}

// GetRelease implements musicbrainz.Client.
func (r *CachedReleases) GetRelease(ctx context.Context, mbid string) (*models.Release, error) {
	key := releaseKeyPrefix + mbid

	if r.cache != nil {
		raw, found, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("release cache read failed", zap.String("mbid", mbid), zap.Error(err))
		case found:
			var release models.Release
			if err := json.Unmarshal(raw, &release); err == nil {
				return &release, nil
			}
			r.logger.Warn("dropping corrupt release cache entry", zap.String("mbid", mbid))
			if err := r.cache.Delete(ctx, key); err != nil {
				r.logger.Warn("release cache delete failed", zap.String("mbid", mbid), zap.Error(err))
			}
		}
	}

	release, err := r.client.GetRelease(ctx, mbid)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		raw, err := json.Marshal(release)
		if err == nil {
			err = r.cache.Set(ctx, key, raw, r.ttl)
		}
		if err != nil {
			r.logger.Warn("release cache write failed", zap.String("mbid", mbid), zap.Error(err))
		}
	}
	return release, nil
}
