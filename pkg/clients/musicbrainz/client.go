package musicbrainz

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

const opGetRelease = "musicbrainz.GetRelease"

// Client exposes the MusicBrainz lookups used by the catalog.
type Client interface {
	GetRelease(ctx context.Context, mbid string) (*models.Release, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a MusicBrainz API client using the provided configuration values.
func NewClient(cfg config.MusicBrainzConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/xml").
		SetHeader("User-Agent", cfg.UserAgent).
		SetTimeout(15 * time.Second)

	return &APIClient{httpClient: restyClient}
}

// GetRelease fetches a release with its recordings and parses the tracklist.
func (c *APIClient) GetRelease(ctx context.Context, mbid string) (*models.Release, error) {
	if strings.TrimSpace(mbid) == "" {
		return nil, apperr.InvalidArgument(opGetRelease, "MBID is required")
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"inc": "recordings", "fmt": "xml"}).
		Get("/release/" + url.PathEscape(mbid))
	if err != nil {
		return nil, apperr.Unavailable(opGetRelease, "unable to reach MusicBrainz", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return nil, apperr.NotFound(opGetRelease, fmt.Sprintf("MBID %s not found on MusicBrainz", mbid))
	case code == http.StatusTooManyRequests:
		return nil, apperr.Unavailable(opGetRelease, "MusicBrainz rate limited; try again later", nil)
	case code >= http.StatusBadRequest:
		return nil, apperr.Unavailable(opGetRelease, "MusicBrainz request failed", fmt.Errorf("status %d", code))
	}

	return ParseRelease(resp.Body(), mbid)
}
