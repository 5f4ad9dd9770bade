package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/apperr"
)

const releaseXMLFixture = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://musicbrainz.org/ns/mmd-2.0#">
  <release id="63823c15-6abc-473e-9fad-d0d0fa983b34">
    <title>First and Last and Always</title>
    <medium-list count="1">
      <medium>
        <position>1</position>
        <track-list count="3" offset="0">
          <track id="t1">
            <position>1</position>
            <number>A1</number>
            <length>267000</length>
            <recording id="r1"><title>Black Planet</title><length>267000</length></recording>
          </track>
          <track id="t2">
            <position>9</position>
            <number>B4</number>
            <title>Logic</title>
            <recording id="r2"><title>Amphetamine Logic</title><length>291533</length></recording>
          </track>
          <track id="t3">
            <position>10</position>
            <length>1000</length>
          </track>
        </track-list>
      </medium>
    </medium-list>
  </release>
</metadata>`

func TestParseRelease(t *testing.T) {
	release, err := ParseRelease([]byte(releaseXMLFixture), "63823c15")
	if err != nil {
		t.Fatalf("ParseRelease failed: %v", err)
	}

	if release.Title != "First and Last and Always" {
		t.Errorf("unexpected title %q", release.Title)
	}
	if len(release.Tracklist) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(release.Tracklist))
	}

	first := release.Tracklist[0]
	if first.Position != "1" || first.Title != "Black Planet" || first.LengthMs != 267000 {
		t.Errorf("unexpected first track %+v", first)
	}

	second := release.Tracklist[1]
	if second.Title != "Amphetamine Logic" {
		t.Errorf("expected recording title to win, got %q", second.Title)
	}
	if second.LengthMs != 291533 {
		t.Errorf("expected recording length fallback, got %d", second.LengthMs)
	}
}

func TestParseRelease_RootRelease(t *testing.T) {
	body := `<release id="x"><title>Bare</title><medium-list><medium><track-list><track><position>1</position><title>Only</title></track></track-list></medium></medium-list></release>`

	release, err := ParseRelease([]byte(body), "x")
	if err != nil {
		t.Fatalf("ParseRelease failed: %v", err)
	}
	if release.Title != "Bare" || len(release.Tracklist) != 1 || release.Tracklist[0].Title != "Only" {
		t.Errorf("unexpected release %+v", release)
	}
}

func TestParseRelease_Invalid(t *testing.T) {
	if _, err := ParseRelease([]byte("<metadata><release>"), "x"); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Errorf("expected invalid argument for broken XML, got %v", err)
	}
	if _, err := ParseRelease([]byte("<metadata></metadata>"), "x"); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Errorf("expected invalid argument for missing release, got %v", err)
	}
}

func TestGetRelease(t *testing.T) {
	var gotPath, gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAgent = r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/release/known":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(releaseXMLFixture))
		case "/release/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/release/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(config.MusicBrainzConfig{BaseURL: srv.URL + "/", UserAgent: "recordshop-test/1.0"})
	ctx := context.Background()

	release, err := client.GetRelease(ctx, "known")
	if err != nil {
		t.Fatalf("GetRelease failed: %v", err)
	}
	if release.MBID != "known" || len(release.Tracklist) != 2 {
		t.Errorf("unexpected release %+v", release)
	}
	if gotPath != "/release/known" || gotQuery != "fmt=xml&inc=recordings" {
		t.Errorf("unexpected request %s?%s", gotPath, gotQuery)
	}
	if gotAgent != "recordshop-test/1.0" {
		t.Errorf("unexpected user agent %q", gotAgent)
	}

	tests := []struct {
		mbid string
		want apperr.Kind
	}{
		{mbid: "missing", want: apperr.KindNotFound},
		{mbid: "limited", want: apperr.KindUnavailable},
		{mbid: "broken", want: apperr.KindUnavailable},
		{mbid: " ", want: apperr.KindInvalidArgument},
	}
	for _, tt := range tests {
		if _, err := client.GetRelease(ctx, tt.mbid); !apperr.Is(err, tt.want) {
			t.Errorf("%q: expected %s, got %v", tt.mbid, tt.want, err)
		}
	}
}
