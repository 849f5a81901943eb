package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

func geocodeServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != "/search/geocode/v6/forward" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "tok" {
			t.Error("missing access token")
		}
		fmt.Fprint(w, `{
			"features": [{
				"geometry": {"coordinates": [151.2093, -33.8688]},
				"properties": {"context": {"country": {"name": "Australia", "country_code": "AU"}}}
			}]
		}`)
	}))
}

func TestGeocode(t *testing.T) {
	calls := 0
	server := geocodeServer(t, &calls)
	defer server.Close()

	g := NewGeocoder(server.URL, "tok", nil)
	loc, err := g.Geocode(context.Background(), "1 Macquarie St, Sydney NSW 2000")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}

	if loc.Latitude != -33.8688 || loc.Longitude != 151.2093 {
		t.Errorf("unexpected coordinates: %+v", loc)
	}
	if loc.CountryName != "Australia" || loc.CountryCode != "AU" {
		t.Errorf("unexpected country: %+v", loc)
	}
}

func TestGeocodeNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features": []}`)
	}))
	defer server.Close()

	g := NewGeocoder(server.URL, "tok", nil)
	if _, err := g.Geocode(context.Background(), "nowhere at all"); err == nil {
		t.Fatal("expected error for empty feature list")
	}
}

func TestGeocodeCacheAvoidsSecondCall(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewGeocodeCache(mr.Addr(), time.Hour)

	calls := 0
	server := geocodeServer(t, &calls)
	defer server.Close()

	g := NewGeocoder(server.URL, "tok", cache)

	const address = "1 Macquarie St, Sydney NSW 2000"
	if _, err := g.Geocode(context.Background(), address); err != nil {
		t.Fatalf("first Geocode failed: %v", err)
	}
	loc, err := g.Geocode(context.Background(), address)
	if err != nil {
		t.Fatalf("second Geocode failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
	if loc.CountryCode != "AU" {
		t.Errorf("cached location corrupted: %+v", loc)
	}
}

func TestNewGeocodeCacheDisabled(t *testing.T) {
	if NewGeocodeCache("", time.Hour) != nil {
		t.Error("empty addr should disable the cache")
	}
}

// fakeInvoker returns a canned Bedrock response.
type fakeInvoker struct {
	response string
	lastBody []byte
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastBody = params.Body
	body, _ := json.Marshal(map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": f.response}},
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{"confident female", `{"gender": "female", "confidence": 0.95}`, GenderFemale},
		{"confident male", `{"gender": "male", "confidence": 0.9}`, GenderMale},
		{"low confidence collapses", `{"gender": "male", "confidence": 0.4}`, GenderNeutral},
		{"neutral answer", `{"gender": "neutral", "confidence": 0.9}`, GenderNeutral},
		{"prose around json", `Sure: {"gender": "female", "confidence": 0.88} hope that helps`, GenderFemale},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gc := &GenderClassifier{client: &fakeInvoker{response: tc.response}, modelID: "test-model"}
			got, err := gc.Classify(context.Background(), "Sam", "AU")
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestClassifyEmptyName(t *testing.T) {
	gc := &GenderClassifier{client: &fakeInvoker{}, modelID: "test-model"}
	got, err := gc.Classify(context.Background(), "  ", "")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != GenderNeutral {
		t.Errorf("expected %q for empty name, got %q", GenderNeutral, got)
	}
}

func TestClassifyGarbageOutput(t *testing.T) {
	gc := &GenderClassifier{client: &fakeInvoker{response: "no json here"}, modelID: "test-model"}
	if _, err := gc.Classify(context.Background(), "Sam", ""); err == nil {
		t.Fatal("expected error for unparsable output")
	}
}

func TestBestKnownGender(t *testing.T) {
	tests := []struct {
		self     string
		inferred string
		expected string
	}{
		{"Female", "male", "female"}, // self-reported wins
		{"", "male", "male"},
		{"", "", GenderUnknown},
		{"  ", "gender-neutral", "gender-neutral"},
	}

	for _, tc := range tests {
		if got := BestKnownGender(tc.self, tc.inferred); got != tc.expected {
			t.Errorf("BestKnownGender(%q, %q) = %q, expected %q", tc.self, tc.inferred, got, tc.expected)
		}
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("Jane", "Doe")
	b := ContentHash("jane", "DOE") // case-insensitive
	if a != b {
		t.Error("hash should be case-insensitive")
	}
	if a == ContentHash("JaneD", "oe") {
		t.Error("part boundaries must affect the hash")
	}
	if a == ContentHash("Jane") {
		t.Error("different inputs must hash differently")
	}
}
