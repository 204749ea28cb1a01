package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	server "barefoot_sync/internal/adapters/http_server"
	"barefoot_sync/internal/bootstrap"
	"barefoot_sync/internal/domain"
	"barefoot_sync/internal/shared"
)

// ---------- fake Barefoot SOAP service ----------

type barefootFake struct {
	mu    sync.Mutex
	props []string // PROPERTY elements served by GetAllProperty
}

func (f *barefootFake) setProps(p ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props = p
}

func (f *barefootFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+
			`<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"><wsdl:portType name="BarefootServiceSoap12">`+
			`<wsdl:operation name="GetUrlTest"/><wsdl:operation name="GetAllProperty"/><wsdl:operation name="GetPropertyAllImgs"/>`+
			`</wsdl:portType></wsdl:definitions>`)
		return
	}
	ct := r.Header.Get("Content-Type")
	op := strings.Trim(ct[strings.LastIndex(ct, "/")+1:], `"`)

	var result string
	switch op {
	case "GetAllProperty":
		f.mu.Lock()
		result = "<PROPERTIES>" + strings.Join(f.props, "") + "</PROPERTIES>"
		f.mu.Unlock()
	case "GetUrlTest":
		result = "ok"
	}
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>`+
		`<`+op+`Response xmlns="http://www.barefoot.com/Services/"><`+op+`Result>`+result+`</`+op+`Result></`+op+`Response>`+
		`</soap:Body></soap:Envelope>`)
}

func property(id, name, city string, sleeps int) string {
	return "<PROPERTY><PropertyID>" + id + "</PropertyID><Name>" + name + "</Name><City>" + city +
		"</City><Occupancy>" + strconv.Itoa(sleeps) + "</Occupancy><Minprice>150</Minprice><Pool>Yes</Pool></PROPERTY>"
}

// ---------- wiring ----------

func setup(t *testing.T) (*barefootFake, http.Handler) {
	t.Helper()
	fake := &barefootFake{}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	cfg := shared.Config{
		AppEnv:      "test",
		StoreDriver: "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "barefoot.db"),
		CacheTTL:    time.Minute,
		Barefoot: shared.BarefootConfig{
			Endpoint: ts.URL + "/BarefootService.asmx",
			Username: "user",
			Password: "secret",
			Account:  "acct",
			RPS:      100,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deps, err := bootstrap.Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	srv := server.New(5 * time.Second)
	srv.MountHandlers(&server.Handlers{Q: deps.Queries, Sync: deps.Sync})
	return fake, srv.Mux()
}

func call(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// ---------- tests ----------

func TestSyncThenServe(t *testing.T) {
	fake, h := setup(t)
	fake.setProps(
		property("101", "Bay Cottage", "Lewes", 6),
		property("102", "Dune House", "Rehoboth Beach", 10),
	)

	var conn domain.ConnectionStatus
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/admin/connection", &conn))
	assert.Equal(t, 3, conn.OperationCount)

	var res domain.SyncResult
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/admin/sync", &res))
	assert.Equal(t, domain.StateCompleted, res.State)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)

	var page domain.PropertyPage
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/properties?min_occupancy=8", &page))
	require.Len(t, page.Items, 1)
	dune := page.Items[0]
	assert.Equal(t, "102", dune.RemoteID)
	assert.Contains(t, dune.Amenities, "Pool")

	var pv domain.PropertyView
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/properties/"+strconv.FormatInt(dune.ID, 10), &pv))
	assert.Equal(t, "Dune House", pv.Title)

	// a second run with identical data changes nothing
	res = domain.SyncResult{}
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/admin/sync", &res))
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Unchanged)
	assert.Equal(t, 2, res.Count)
}

func TestCleanupDraftsRemovedProperties(t *testing.T) {
	fake, h := setup(t)
	fake.setProps(
		property("201", "Marsh View", "Lewes", 4),
		property("202", "Harbor Loft", "Lewes", 2),
	)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/admin/sync", nil))

	var page domain.PropertyPage
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/properties", &page))
	require.Len(t, page.Items, 2)

	fake.setProps(property("201", "Marsh View", "Lewes", 4))
	var cr domain.CleanupResult
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/admin/cleanup", &cr))
	assert.True(t, cr.Success)
	assert.Equal(t, 1, cr.Count)

	page = domain.PropertyPage{}
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/properties", &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "201", page.Items[0].RemoteID)

	// the sync that sees it again republishes it
	fake.setProps(property("201", "Marsh View", "Lewes", 4), property("202", "Harbor Loft", "Lewes", 2))
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/admin/sync", nil))
	page = domain.PropertyPage{}
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/v1/properties", &page))
	assert.Len(t, page.Items, 2)
}
