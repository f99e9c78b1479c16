package floodwatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

const feedKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>District Flood Advisories</name>
    <Folder>
      <name>Inundation Areas</name>
      <Placemark>
        <name>Krishna River left bank overflow</name>
        <description><![CDATA[<b>Status:</b> Road submerged<br/>Avoid until further notice]]></description>
        <Polygon>
          <outerBoundaryIs>
            <LinearRing>
              <coordinates>
                80.6000,16.4900,0 80.6200,16.4900,0 80.6200,16.5100,0 80.6000,16.5100,0 80.6000,16.4900,0
              </coordinates>
            </LinearRing>
          </outerBoundaryIs>
        </Polygon>
      </Placemark>
    </Folder>
    <Placemark>
      <name>Culvert washout near Kankipadu</name>
      <description>Single point report</description>
      <ExtendedData>
        <Data name="radius"><value>450</value></Data>
      </ExtendedData>
      <Point>
        <coordinates>80.7210,16.4320,0</coordinates>
      </Point>
    </Placemark>
    <Placemark>
      <name>No geometry here</name>
      <description>Should be dropped</description>
    </Placemark>
  </Document>
</kml>`

func testParser() *Parser {
	return NewParser(zap.NewNop().Sugar())
}

func TestParser_ParseKML(t *testing.T) {
	now := time.Now()
	advisories, err := testParser().ParseKML([]byte(feedKML), "district-feed", now)
	require.NoError(t, err)
	require.Len(t, advisories, 2, "Geometry-less placemarks are dropped")

	// Document-level placemarks collect before folder contents.
	washout := advisories[0]
	require.NotNil(t, washout.Point)
	assert.Equal(t, "district-feed", washout.FeedName)
	assert.InDelta(t, 16.4320, washout.Point.Latitude, 1e-9)
	assert.InDelta(t, 80.7210, washout.Point.Longitude, 1e-9)
	assert.Equal(t, 450.0, washout.RadiusMeters)
	assert.Equal(t, now, washout.FetchedAt)

	overflow := advisories[1]
	assert.Equal(t, "Krishna River left bank overflow", overflow.Name)
	require.Len(t, overflow.Polygon, 5)
	assert.InDelta(t, 16.49, overflow.Polygon[0].Latitude, 1e-9)
	assert.InDelta(t, 80.60, overflow.Polygon[0].Longitude, 1e-9)
	assert.Equal(t, "Status: Road submerged Avoid until further notice", overflow.DescriptionText)
	assert.Contains(t, overflow.DescriptionHTML, "<b>Status:</b>")
}

func TestParser_ParseKML_BadXML(t *testing.T) {
	_, err := testParser().ParseKML([]byte("<kml><Document>"), "broken", time.Now())
	assert.ErrorContains(t, err, "failed to parse KML")
}

func TestParser_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedKML)
	}))
	defer server.Close()

	advisories, err := testParser().Fetch(context.Background(), Feed{Name: "district-feed", URL: server.URL})
	require.NoError(t, err)
	assert.Len(t, advisories, 2)
}

func TestParser_Fetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testParser().Fetch(context.Background(), Feed{Name: "district-feed", URL: server.URL})
	assert.ErrorContains(t, err, "feed error 503")
}

func TestAdvisory_HazardZone(t *testing.T) {
	advisories, err := testParser().ParseKML([]byte(feedKML), "district-feed", time.Now())
	require.NoError(t, err)
	require.Len(t, advisories, 2)

	pointZone, err := advisories[0].HazardZone()
	require.NoError(t, err)
	assert.Equal(t, hazard.KindGeocodedArea, pointZone.Kind)
	assert.InDelta(t, 450.0, pointZone.RadiusMeters, 1e-9)
	assert.True(t, geo.PointInPolygon(*advisories[0].Point, pointZone.Polygon))

	polygonZone, err := advisories[1].HazardZone()
	require.NoError(t, err)
	assert.Equal(t, hazard.KindGeocodedArea, polygonZone.Kind)
	assert.Equal(t, "district-feed", polygonZone.Source)
	assert.Len(t, polygonZone.Polygon, 4, "Closing vertex drops at zone construction")
	assert.True(t, geo.PointInPolygon(geo.Point{Latitude: 16.50, Longitude: 80.61}, polygonZone.Polygon))
}

func TestAdvisory_HazardZone_DefaultRadius(t *testing.T) {
	pt := geo.Point{Latitude: 16.43, Longitude: 80.72}
	adv := Advisory{FeedName: "district-feed", Point: &pt}
	adv.RadiusMeters = 0

	// Parser normally fills the default; conversion guards against a
	// hand-built advisory missing it
	_, err := adv.HazardZone()
	assert.Error(t, err, "Zero radius cannot build a circular zone")
}

func TestFingerprint(t *testing.T) {
	advisories, err := testParser().ParseKML([]byte(feedKML), "district-feed", time.Now())
	require.NoError(t, err)

	original := Fingerprint(advisories)
	reordered := Fingerprint([]Advisory{advisories[1], advisories[0]})
	assert.Equal(t, original, reordered, "Order does not change identity")

	moved := make([]Advisory, len(advisories))
	copy(moved, advisories)
	shifted := *moved[0].Point
	shifted.Latitude += 0.01
	moved[0].Point = &shifted
	assert.NotEqual(t, original, Fingerprint(moved))

	assert.NotEqual(t, original, Fingerprint(nil))
}
