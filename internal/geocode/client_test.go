package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opencage, google http.HandlerFunc) *Client {
	t.Helper()
	ocSrv := httptest.NewServer(opencage)
	gSrv := httptest.NewServer(google)
	t.Cleanup(ocSrv.Close)
	t.Cleanup(gSrv.Close)
	return New(ocSrv.URL, "oc-key", gSrv.URL, "g-key", 2*time.Second, false)
}

func TestLookupPrimarySufficient(t *testing.T) {
	c := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "oc-key", r.URL.Query().Get("key"))
			w.Write([]byte(`{"results":[{"components":{
				"road":"Jl. Margonda Raya",
				"suburb":"Pondok Cina",
				"city_district":"Beji",
				"city":"Depok"}}]}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("google must not be called when opencage suffices")
		},
	)

	addr, err := c.Lookup(context.Background(), -6.37, 106.83)
	require.NoError(t, err)
	assert.Equal(t, Address{
		Jalan:     "Jl. Margonda Raya",
		Kelurahan: "Pondok Cina",
		Kecamatan: "Beji",
		Kota:      "Depok",
	}, addr)
}

func TestLookupFallsBackWhenPrimaryInsufficient(t *testing.T) {
	c := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			// Neither kecamatan nor kota resolvable.
			w.Write([]byte(`{"results":[{"components":{"road":"Jl. X"}}]}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "id", r.URL.Query().Get("language"))
			w.Write([]byte(`{"results":[{"address_components":[
				{"long_name":"Jalan Asia Afrika","types":["route"]},
				{"long_name":"Braga","types":["sublocality_level_1"]},
				{"long_name":"Sumur Bandung","types":["administrative_area_level_3"]},
				{"long_name":"Kota Bandung","types":["administrative_area_level_2"]}]}]}`))
		},
	)

	addr, err := c.Lookup(context.Background(), -6.92, 107.61)
	require.NoError(t, err)
	assert.Equal(t, "Sumur Bandung", addr.Kecamatan)
	assert.Equal(t, "Kota Bandung", addr.Kota)
	assert.Equal(t, "Braga", addr.Kelurahan)
}

func TestLookupFallsBackOnPrimaryError(t *testing.T) {
	c := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results":[{"address_components":[
				{"long_name":"Tebet","types":["administrative_area_level_3"]},
				{"long_name":"Jakarta Selatan","types":["administrative_area_level_2"]}]}]}`))
		},
	)

	addr, err := c.Lookup(context.Background(), -6.23, 106.85)
	require.NoError(t, err)
	assert.Equal(t, "Jakarta Selatan", addr.Kota)
	assert.Equal(t, NotFound, addr.Jalan)
}

func TestLookupAllProvidersFail(t *testing.T) {
	fail := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	c := newTestClient(t, fail, fail)

	addr, err := c.Lookup(context.Background(), -6.2, 106.8)
	require.Error(t, err)
	assert.Equal(t, FailedKelurahan, addr.Kelurahan)
	assert.Equal(t, FailedKota, addr.Kota)
}

func TestLookupGoogleEmptyResults(t *testing.T) {
	c := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results":[]}`))
		},
	)

	addr, err := c.Lookup(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, NotFound, addr.Kota)
	assert.False(t, addr.Sufficient())
}

func TestStaticMode(t *testing.T) {
	c := New("", "", "", "", 0, true)
	addr, err := c.Lookup(context.Background(), -6.2, 106.8)
	require.NoError(t, err)
	assert.True(t, addr.Sufficient())
	assert.NotEqual(t, NotFound, addr.Kelurahan)
}
