package musicbrainz

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

type metadataXML struct {
	Release *releaseXML `xml:"release"`
}

type releaseXML struct {
	XMLName xml.Name    `xml:"release"`
	ID      string      `xml:"id,attr"`
	Title   string      `xml:"title"`
	Media   []mediumXML `xml:"medium-list>medium"`
}

type mediumXML struct {
	Tracks []trackXML `xml:"track-list>track"`
}

type trackXML struct {
	Position  string `xml:"position"`
	Title     string `xml:"title"`
	Length    string `xml:"length"`
	Recording struct {
		Title  string `xml:"title"`
		Length string `xml:"length"`
	} `xml:"recording"`
}

// ParseRelease reads a release document. The release may be wrapped in <metadata> or be the
// root element. Tracks without a title are skipped; the recording title wins over the track title.
func ParseRelease(body []byte, mbid string) (*models.Release, error) {
	release, err := decodeRelease(body)
	if err != nil {
		return nil, apperr.E(apperr.KindInvalidArgument, opGetRelease, "invalid XML from MusicBrainz", err)
	}
	if release == nil {
		return nil, apperr.InvalidArgument(opGetRelease, "MusicBrainz release data missing")
	}

	out := &models.Release{
		MBID:      mbid,
		Title:     strings.TrimSpace(release.Title),
		Tracklist: []models.TrackItem{},
	}
	for _, medium := range release.Media {
		for _, track := range medium.Tracks {
			title := strings.TrimSpace(track.Recording.Title)
			if title == "" {
				title = strings.TrimSpace(track.Title)
			}
			if title == "" {
				continue
			}

			length := track.Length
			if length == "" {
				length = track.Recording.Length
			}
			lengthMs, _ := strconv.Atoi(strings.TrimSpace(length))

			out.Tracklist = append(out.Tracklist, models.TrackItem{
				Position: strings.TrimSpace(track.Position),
				Title:    title,
				LengthMs: lengthMs,
			})
		}
	}
	return out, nil
}

func decodeRelease(body []byte) (*releaseXML, error) {
	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	switch root.XMLName.Local {
	case "release":
		var release releaseXML
		if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&release); err != nil {
			return nil, err
		}
		return &release, nil
	default:
		var meta metadataXML
		if err := xml.Unmarshal(body, &meta); err != nil {
			return nil, err
		}
		return meta.Release, nil
	}
}
