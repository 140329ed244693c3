package geo

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

type fakeLocator struct {
	name  string
	loc   model.Location
	err   error
	calls atomic.Int32
}

func (f *fakeLocator) Name() string { return f.name }

func (f *fakeLocator) Locate(context.Context, net.IP) (model.Location, error) {
	f.calls.Add(1)
	return f.loc, f.err
}

var home = model.Location{Lat: 40.8229, Lon: -74.4592}

func TestChainUsesFirstSuccess(t *testing.T) {
	primary := &fakeLocator{name: "primary", loc: model.Location{Lat: 1, Lon: 2}}
	secondary := &fakeLocator{name: "secondary", loc: model.Location{Lat: 3, Lon: 4}}
	chain := NewChain(home, zap.NewNop(), nil, primary, secondary)

	loc, provider := chain.Locate(context.Background(), "8.8.8.8")
	assert.Equal(t, model.Location{Lat: 1, Lon: 2}, loc)
	assert.Equal(t, "primary", provider)
	assert.EqualValues(t, 0, secondary.calls.Load())
}

func TestChainFallsThrough(t *testing.T) {
	primary := &fakeLocator{name: "primary", err: errors.New("timeout")}
	secondary := &fakeLocator{name: "secondary", loc: model.Location{Lat: 3, Lon: 4}}
	chain := NewChain(home, zap.NewNop(), nil, primary, secondary)

	loc, provider := chain.Locate(context.Background(), "8.8.8.8")
	assert.Equal(t, model.Location{Lat: 3, Lon: 4}, loc)
	assert.Equal(t, "secondary", provider)
}

func TestChainDefaultLocation(t *testing.T) {
	primary := &fakeLocator{name: "primary", err: errors.New("timeout")}
	secondary := &fakeLocator{name: "secondary", err: ErrNoLocation}
	chain := NewChain(home, zap.NewNop(), nil, primary, secondary)

	loc, provider := chain.Locate(context.Background(), "8.8.8.8")
	assert.Equal(t, home, loc)
	assert.Equal(t, DefaultProvider, provider)

	loc, provider = chain.Locate(context.Background(), "not-an-ip")
	assert.Equal(t, home, loc)
	assert.Equal(t, DefaultProvider, provider)
	assert.EqualValues(t, 1, primary.calls.Load())
}

func TestIPAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/8.8.8.8":
			assert.Equal(t, "status,message,lat,lon", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"status":"success","lat":37.751,"lon":-97.822}`))
		case "/json/1.1.1.1":
			_, _ = w.Write([]byte(`{"status":"success","lat":"-33.494","lon":"143.2104"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
		}
	}))
	defer srv.Close()

	l := NewIPAPI(HTTPOptions{BaseURL: srv.URL})
	assert.Equal(t, "ip-api", l.Name())

	loc, err := l.Locate(context.Background(), net.ParseIP("8.8.8.8"))
	require.NoError(t, err)
	assert.Equal(t, model.Location{Lat: 37.751, Lon: -97.822}, loc)

	loc, err = l.Locate(context.Background(), net.ParseIP("1.1.1.1"))
	require.NoError(t, err)
	assert.Equal(t, model.Location{Lat: -33.494, Lon: 143.2104}, loc)

	_, err = l.Locate(context.Background(), net.ParseIP("10.0.0.1"))
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestFreeGeoIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/8.8.8.8":
			_, _ = w.Write([]byte(`{"ip":"8.8.8.8","latitude":37.751,"longitude":-97.822}`))
		case "/json/9.9.9.9":
			_, _ = w.Write([]byte(`{"ip":"9.9.9.9","latitude":"north"}`))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	l := NewFreeGeoIP(HTTPOptions{BaseURL: srv.URL + "/"})
	loc, err := l.Locate(context.Background(), net.ParseIP("8.8.8.8"))
	require.NoError(t, err)
	assert.Equal(t, model.Location{Lat: 37.751, Lon: -97.822}, loc)

	_, err = l.Locate(context.Background(), net.ParseIP("9.9.9.9"))
	assert.Error(t, err)

	_, err = l.Locate(context.Background(), net.ParseIP("4.4.4.4"))
	assert.Error(t, err)
}

func TestHTTPLocatorRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","lat":1,"lon":2}`))
	}))
	defer srv.Close()

	l := NewIPAPI(HTTPOptions{BaseURL: srv.URL, RatePerMinute: 2})
	for i := 0; i < 2; i++ {
		_, err := l.Locate(context.Background(), net.ParseIP("8.8.8.8"))
		require.NoError(t, err)
	}
	_, err := l.Locate(context.Background(), net.ParseIP("8.8.8.8"))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 2, hits.Load())
}

func TestHTTPLocatorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	chain := NewChain(home, zap.NewNop(), nil,
		NewIPAPI(HTTPOptions{BaseURL: url}),
		NewFreeGeoIP(HTTPOptions{BaseURL: url}),
	)
	loc, provider := chain.Locate(context.Background(), "8.8.8.8")
	assert.Equal(t, home, loc)
	assert.Equal(t, DefaultProvider, provider)
}
