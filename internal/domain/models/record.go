package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecordFormat enumerates the physical or digital formats a record is sold in.
type RecordFormat string

const (
	FormatVinyl    RecordFormat = "Vinyl"
	FormatCD       RecordFormat = "CD"
	FormatCassette RecordFormat = "Cassette"
	FormatDigital  RecordFormat = "Digital"
)

// Valid reports whether f is a known format.
func (f RecordFormat) Valid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette, FormatDigital:
		return true
	}
	return false
}

// RecordCategory enumerates catalog genres.
type RecordCategory string

const (
	CategoryRock        RecordCategory = "Rock"
	CategoryJazz        RecordCategory = "Jazz"
	CategoryHipHop      RecordCategory = "Hip-Hop"
	CategoryClassical   RecordCategory = "Classical"
	CategoryPop         RecordCategory = "Pop"
	CategoryAlternative RecordCategory = "Alternative"
	CategoryIndie       RecordCategory = "Indie"
)

// Valid reports whether c is a known category.
func (c RecordCategory) Valid() bool {
	switch c {
	case CategoryRock, CategoryJazz, CategoryHipHop, CategoryClassical, CategoryPop, CategoryAlternative, CategoryIndie:
		return true
	}
	return false
}

// Record is a purchasable catalog item with its live stock level.
type Record struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Artist       string             `bson:"artist" json:"artist"`
	Album        string             `bson:"album" json:"album"`
	Format       RecordFormat       `bson:"format" json:"format"`
	Category     RecordCategory     `bson:"category" json:"category"`
	Price        float64            `bson:"price" json:"price"`
	Qty          int                `bson:"qty" json:"qty"`
	MBID         string             `bson:"mbid,omitempty" json:"mbid,omitempty"`
	Tracklist    []TrackItem        `bson:"tracklist,omitempty" json:"tracklist,omitempty"`
	Created      time.Time          `bson:"created" json:"created"`
	LastModified time.Time          `bson:"lastModified" json:"lastModified"`
}

// CreateRecordRequest is the payload accepted when adding a record to the catalog.
type CreateRecordRequest struct {
	Artist   string         `json:"artist" binding:"required"`
	Album    string         `json:"album" binding:"required"`
	Format   RecordFormat   `json:"format" binding:"required"`
	Category RecordCategory `json:"category" binding:"required"`
	Price    float64        `json:"price" binding:"gte=0"`
	Qty      int            `json:"qty" binding:"gte=0"`
	MBID     string         `json:"mbid"`
}

// UpdateRecordRequest carries a partial update; nil fields are left untouched.
type UpdateRecordRequest struct {
	Artist   *string         `json:"artist,omitempty"`
	Album    *string         `json:"album,omitempty"`
	Format   *RecordFormat   `json:"format,omitempty"`
	Category *RecordCategory `json:"category,omitempty"`
	Price    *float64        `json:"price,omitempty"`
	Qty      *int            `json:"qty,omitempty"`
	MBID     *string         `json:"mbid,omitempty"`
}

// RecordFilter narrows catalog searches.
type RecordFilter struct {
	Query    string         `form:"q" json:"q,omitempty"`
	Artist   string         `form:"artist" json:"artist,omitempty"`
	Album    string         `form:"album" json:"album,omitempty"`
	Format   RecordFormat   `form:"format" json:"format,omitempty"`
	Category RecordCategory `form:"category" json:"category,omitempty"`
	Page     int            `form:"page" json:"page"`
	Limit    int            `form:"limit" json:"limit"`
}

// PageMeta describes the position of a result page.
type PageMeta struct {
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// RecordPage is one page of search results.
type RecordPage struct {
	Meta PageMeta `json:"meta"`
	Data []Record `json:"data"`
}
