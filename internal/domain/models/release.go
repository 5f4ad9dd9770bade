package models

// TrackItem is one track of a release as reported by MusicBrainz.
type TrackItem struct {
	Position string `bson:"position,omitempty" json:"position,omitempty"`
	Title    string `bson:"title" json:"title"`
	LengthMs int    `bson:"lengthMs,omitempty" json:"lengthMs,omitempty"`
}

// Release is the subset of a MusicBrainz release used to enrich records.
type Release struct {
	MBID      string      `json:"mbid"`
	Title     string      `json:"title,omitempty"`
	Tracklist []TrackItem `json:"tracklist"`
}
