package records

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
	"github.com/mamadbah2/recordshop/internal/repository/cache"
	"github.com/mamadbah2/recordshop/pkg/clients/musicbrainz"
)

const (
	opCreate = "records.Create"
	opUpdate = "records.Update"
	opGet    = "records.Get"
	opSearch = "records.Search"

	searchKeyPrefix = "records:"

	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	tracerName = "github.com/mamadbah2/recordshop/internal/service/records"
)

// Store persists catalog records.
type Store interface {
	FindRecordByID(ctx context.Context, id primitive.ObjectID) (*models.Record, error)
	InsertRecord(ctx context.Context, record *models.Record) error
	UpdateRecord(ctx context.Context, id primitive.ObjectID, changes models.UpdateRecordRequest, tracklist []models.TrackItem) (*models.Record, error)
	SearchRecords(ctx context.Context, filter models.RecordFilter) ([]models.Record, int64, error)
}

// Catalog is the record surface exposed to the HTTP layer.
type Catalog interface {
	Create(ctx context.Context, req models.CreateRecordRequest) (*models.Record, error)
	Update(ctx context.Context, id string, req models.UpdateRecordRequest) (*models.Record, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	Search(ctx context.Context, filter models.RecordFilter) (*models.RecordPage, error)
}

// Service manages the record catalog.
type Service struct {
	store    Store
	releases musicbrainz.Client
	cache    cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService wires the catalog. releases and c may be nil to disable enrichment and caching.
func NewService(store Store, releases musicbrainz.Client, c cache.Cache, searchTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		releases: releases,
		cache:    c,
		ttl:      searchTTL,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Create adds a record. The tracklist is fetched on a best-effort basis when an MBID is given.
func (s *Service) Create(ctx context.Context, req models.CreateRecordRequest) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, opCreate)
	defer span.End()

	req.Artist = strings.TrimSpace(req.Artist)
	req.Album = strings.TrimSpace(req.Album)
	req.MBID = strings.TrimSpace(req.MBID)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	record := &models.Record{
		Artist:   req.Artist,
		Album:    req.Album,
		Format:   req.Format,
		Category: req.Category,
		Price:    req.Price,
		Qty:      req.Qty,
		MBID:     req.MBID,
	}

	if req.MBID != "" && s.releases != nil {
		release, err := s.releases.GetRelease(ctx, req.MBID)
		if err != nil {
			s.logger.Warn("tracklist lookup failed, creating record without it",
				zap.String("mbid", req.MBID), zap.Error(err))
		} else {
			record.Tracklist = release.Tracklist
		}
	}

	if err := s.store.InsertRecord(ctx, record); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
		s.logger.Error("failed to insert record", zap.Error(err))
		return nil, apperr.Internal(opCreate, "failed to create record", err)
	}

	span.SetAttributes(attribute.String("record.id", record.ID.Hex()))
	s.invalidateSearches(ctx)
	s.logger.Info("record created", zap.String("record_id", record.ID.Hex()), zap.String("artist", record.Artist), zap.String("album", record.Album))
	return record, nil
}

// Update applies a partial change. A changed MBID refreshes the tracklist; a failed lookup rejects the update.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateRecordRequest) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, opUpdate)
	defer span.End()

	recordID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.InvalidArgument(opUpdate, "invalid record id")
	}
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	existing, err := s.store.FindRecordByID(ctx, recordID)
	if err != nil {
		s.logger.Error("failed to load record", zap.String("record_id", id), zap.Error(err))
		return nil, apperr.Internal(opUpdate, "failed to load record", err)
	}
	if existing == nil {
		return nil, apperr.NotFound(opUpdate, "record not found")
	}

	var tracklist []models.TrackItem
	if req.MBID != nil {
		mbid := strings.TrimSpace(*req.MBID)
		req.MBID = &mbid
		if mbid != existing.MBID {
			tracklist = []models.TrackItem{}
			if mbid != "" && s.releases != nil {
				release, err := s.releases.GetRelease(ctx, mbid)
				if err != nil {
					s.logger.Warn("tracklist lookup failed", zap.String("mbid", mbid), zap.Error(err))
					return nil, apperr.E(apperr.KindInvalidArgument, opUpdate, "invalid MBID or lookup error", err)
				}
				tracklist = release.Tracklist
			}
		}
	}

	updated, err := s.store.UpdateRecord(ctx, recordID, req, tracklist)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
		s.logger.Error("failed to update record", zap.String("record_id", id), zap.Error(err))
		return nil, apperr.Internal(opUpdate, "failed to update record", err)
	}
	if updated == nil {
		return nil, apperr.NotFound(opUpdate, "record not found")
	}

	s.invalidateSearches(ctx)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	recordID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.InvalidArgument(opGet, "invalid record id")
	}
	record, err := s.store.FindRecordByID(ctx, recordID)
	if err != nil {
		s.logger.Error("failed to load record", zap.String("record_id", id), zap.Error(err))
		return nil, apperr.Internal(opGet, "failed to load record", err)
	}
	if record == nil {
		return nil, apperr.NotFound(opGet, "record not found")
	}
	return record, nil
}

// Search returns one page of matching records, served from the cache when possible.
func (s *Service) Search(ctx context.Context, filter models.RecordFilter) (*models.RecordPage, error) {
	ctx, span := s.tracer.Start(ctx, opSearch)
	defer span.End()

	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	key := searchKey(filter)
	if page, ok := s.cachedPage(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return page, nil
	}

	records, total, err := s.store.SearchRecords(ctx, filter)
	if err != nil {
		s.logger.Error("record search failed", zap.Error(err))
		return nil, apperr.Internal(opSearch, "failed to search records", err)
	}

	page := &models.RecordPage{Meta: pageMeta(total, filter.Page, filter.Limit), Data: records}
	s.storePage(ctx, key, page)
	return page, nil
}

func (s *Service) cachedPage(ctx context.Context, key string) (*models.RecordPage, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	var page models.RecordPage
	if err := json.Unmarshal(raw, &page); err != nil {
		s.logger.Warn("ignoring corrupt search cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &page, true
}

func (s *Service) storePage(ctx context.Context, key string, page *models.RecordPage) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err == nil {
		err = s.cache.Set(ctx, key, raw, s.ttl)
	}
	if err != nil {
		s.logger.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) invalidateSearches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, searchKeyPrefix); err != nil {
		s.logger.Warn("search cache invalidation failed", zap.Error(err))
	}
}

func validateCreate(req models.CreateRecordRequest) error {
	switch {
	case req.Artist == "":
		return apperr.InvalidArgument(opCreate, "artist is required")
	case req.Album == "":
		return apperr.InvalidArgument(opCreate, "album is required")
	case !req.Format.Valid():
		return apperr.InvalidArgument(opCreate, "invalid format")
	case !req.Category.Valid():
		return apperr.InvalidArgument(opCreate, "invalid category")
	case req.Price < 0:
		return apperr.InvalidArgument(opCreate, "price must not be negative")
	case req.Qty < 0:
		return apperr.InvalidArgument(opCreate, "qty must not be negative")
	}
	return nil
}

func validateUpdate(req models.UpdateRecordRequest) error {
	switch {
	case req.Artist != nil && strings.TrimSpace(*req.Artist) == "":
		return apperr.InvalidArgument(opUpdate, "artist must not be empty")
	case req.Album != nil && strings.TrimSpace(*req.Album) == "":
		return apperr.InvalidArgument(opUpdate, "album must not be empty")
	case req.Format != nil && !req.Format.Valid():
		return apperr.InvalidArgument(opUpdate, "invalid format")
	case req.Category != nil && !req.Category.Valid():
		return apperr.InvalidArgument(opUpdate, "invalid category")
	case req.Price != nil && *req.Price < 0:
		return apperr.InvalidArgument(opUpdate, "price must not be negative")
	case req.Qty != nil && *req.Qty < 0:
		return apperr.InvalidArgument(opUpdate, "qty must not be negative")
	}
	return nil
}

func normalizeFilter(filter models.RecordFilter) (models.RecordFilter, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Artist = strings.TrimSpace(filter.Artist)
	filter.Album = strings.TrimSpace(filter.Album)

	if filter.Format != "" && !filter.Format.Valid() {
		return filter, apperr.InvalidArgument(opSearch, "invalid format")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return filter, apperr.InvalidArgument(opSearch, "invalid category")
	}

	switch {
	case filter.Page == 0:
		filter.Page = defaultPage
	case filter.Page < 0:
		return filter, apperr.InvalidArgument(opSearch, "page must be at least 1")
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = defaultLimit
	case filter.Limit < 0 || filter.Limit > maxLimit:
		return filter, apperr.InvalidArgument(opSearch, "limit must be between 1 and 100")
	}
	return filter, nil
}

// searchKey relies on encoding/json emitting struct fields in declaration order.
func searchKey(filter models.RecordFilter) string {
	raw, _ := json.Marshal(filter)
	return searchKeyPrefix + string(raw)
}

func pageMeta(total int64, page, limit int) models.PageMeta {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return models.PageMeta{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}
