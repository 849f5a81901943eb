package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-sync/internal/airtable"
	"github.com/ignite/audience-sync/internal/config"
)

const testCSV = `email,firstName,userGroup,subscribed,joinedAt,shippedAt
new@x.com,Ada,Hack Clubber,true,2024-01-01T00:00:00Z,
known@x.com,Grace,Hack Clubber,true,2024-02-01T00:00:00Z,2024-03-05T00:00:00Z
gone@x.com,Joan,Hack Clubber,false,2024-01-15T00:00:00Z,
quiet@x.com,Mary,Hack Clubber,true,,
other@x.com,Alan,Educator,true,2024-01-01T00:00:00Z,
`

// fakeLoops serves the export protocol and hands out the CSV.
func fakeLoops(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trpc/lists.exportContacts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"data":{"json":{"id":"exp1","status":"Pending"}}}}`)
	})
	mux.HandleFunc("/api/trpc/audienceDownload.getAudienceDownload", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"data":{"json":{"status":"Complete"}}}}`)
	})
	server := httptest.NewServer(mux)
	mux.HandleFunc("/api/trpc/audienceDownload.signs3Url", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result":{"data":{"json":{"presignedUrl":"%s/export.csv"}}}}`, server.URL)
	})
	mux.HandleFunc("/export.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testCSV)
	})
	return server
}

// fakeAirtable serves the rule tables and one existing contact page,
// and records every mutation.
type fakeAirtable struct {
	createBatches [][]airtable.Record
	updateBatches [][]airtable.Record
	deletedIDs    []string
}

func (f *fakeAirtable) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, records string) {
		fmt.Fprintf(w, `{"records":%s}`, records)
	}

	mux.HandleFunc("/v0/base1/Programs", func(w http.ResponseWriter, r *http.Request) {
		page(w, `[
			{"id":"progA","fields":{"Name":"Onboard","Category":"General"}},
			{"id":"progB","fields":{"Name":"Ship","Category":"YSWS"}}
		]`)
	})
	mux.HandleFunc("/v0/base1/Mapping Rules", func(w http.ResponseWriter, r *http.Request) {
		page(w, `[
			{"id":"r1","fields":{"Loops.so Field To Map":"joinedAt","Program":["progA"]}},
			{"id":"r2","fields":{"Loops.so Field To Map":"shippedAt","Program":["progB"]}}
		]`)
	})
	mux.HandleFunc("/v0/base1/Field Mapping Rules", func(w http.ResponseWriter, r *http.Request) {
		page(w, `[{"id":"f1","fields":{"Loops.so Field":"firstName","Airtable Field":"First Name"}}]`)
	})

	mux.HandleFunc("/v0/base1/Contacts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			page(w, `[
				{"id":"recKnown","fields":{"Email":"known@x.com"}},
				{"id":"recGone","fields":{"Email":"gone@x.com"}}
			]`)
		case http.MethodPost, http.MethodPut:
			var batch struct {
				Records []airtable.Record `json:"records"`
			}
			if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
				t.Errorf("bad batch body: %v", err)
			}
			if r.Method == http.MethodPost {
				f.createBatches = append(f.createBatches, batch.Records)
			} else {
				f.updateBatches = append(f.updateBatches, batch.Records)
			}
			fmt.Fprint(w, `{"records":[]}`)
		}
	})
	mux.HandleFunc("/v0/base1/Contacts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/v0/base1/Contacts/")
		f.deletedIDs = append(f.deletedIDs, id)
		fmt.Fprintf(w, `{"id":"%s","deleted":true}`, id)
	})
	return httptest.NewServer(mux)
}

func testConfig(t *testing.T, loopsURL, airtableURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Loops.BaseURL = loopsURL
	cfg.Loops.SessionCookie = "session"
	cfg.Loops.TimeoutSeconds = 5
	cfg.Loops.PollSeconds = 1
	cfg.Loops.MaxWaitMinutes = 1
	cfg.Airtable.BaseURL = airtableURL
	cfg.Airtable.APIKey = "key"
	cfg.Airtable.BaseID = "base1"
	cfg.Airtable.TimeoutSeconds = 5
	cfg.Sync.ContactsTable = "Contacts"
	cfg.Sync.EmailField = "Email"
	cfg.Sync.TargetGroup = "Hack Clubber"
	cfg.Sync.TestDomains = []string{"test.example.com"}
	cfg.Sync.ExportPath = filepath.Join(t.TempDir(), "loops_export.csv")
	return cfg
}

func TestRunnerFullPass(t *testing.T) {
	loopsServer := fakeLoops(t)
	defer loopsServer.Close()
	store := &fakeAirtable{}
	storeServer := store.server(t)
	defer storeServer.Close()

	runner := NewRunner(testConfig(t, loopsServer.URL, storeServer.URL))
	require.NoError(t, runner.Run(context.Background()))

	// new@x.com has no record: one create batch of one.
	require.Len(t, store.createBatches, 1)
	require.Len(t, store.createBatches[0], 1)
	created := store.createBatches[0][0].Fields
	assert.Equal(t, "new@x.com", created["Email"])
	assert.Equal(t, "Ada", created["First Name"])
	assert.Equal(t, []interface{}{"progA"}, created[fieldPrograms])

	// known@x.com matched recKnown: one update batch of one.
	require.Len(t, store.updateBatches, 1)
	require.Len(t, store.updateBatches[0], 1)
	assert.Equal(t, "recKnown", store.updateBatches[0][0].ID)
	assert.Equal(t, float64(2), store.updateBatches[0][0].Fields[fieldTotalEngagements])

	// gone@x.com unsubscribed with a record: exactly one delete.
	assert.Equal(t, []string{"recGone"}, store.deletedIDs)

	// quiet@x.com (no engagements) and other@x.com (wrong group) were
	// skipped without touching the store.
	for _, batch := range store.createBatches {
		for _, rec := range batch {
			assert.NotEqual(t, "quiet@x.com", rec.Fields["Email"])
			assert.NotEqual(t, "other@x.com", rec.Fields["Email"])
		}
	}
}

func TestRunnerNeverCreatesAndUpdatesSameEmail(t *testing.T) {
	loopsServer := fakeLoops(t)
	defer loopsServer.Close()
	store := &fakeAirtable{}
	storeServer := store.server(t)
	defer storeServer.Close()

	runner := NewRunner(testConfig(t, loopsServer.URL, storeServer.URL))
	require.NoError(t, runner.Run(context.Background()))

	seen := make(map[string]string)
	for _, batch := range store.createBatches {
		for _, rec := range batch {
			email, _ := rec.Fields["Email"].(string)
			seen[email] = "create"
		}
	}
	for _, batch := range store.updateBatches {
		for _, rec := range batch {
			email, _ := rec.Fields["Email"].(string)
			require.NotEqual(t, "create", seen[email], "email %s both created and updated", email)
		}
	}
}
