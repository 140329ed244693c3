package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

const (
	DefaultIPAPIURL     = "http://ip-api.com"
	DefaultFreeGeoIPURL = "https://freegeoip.app"
)

// coord accepts a latitude or longitude encoded either as a JSON number or
// as a decimal string.
type coord struct {
	value float64
	set   bool
}

func (c *coord) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse coordinate %q: %w", s, err)
	}
	c.value, c.set = v, true
	return nil
}

// HTTPOptions configure a web geolocation provider.
type HTTPOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	Client        *http.Client
}

type httpLocator struct {
	name    string
	url     func(ip net.IP) string
	decode  func(body []byte) (model.Location, error)
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPLocator(name string, opts HTTPOptions) *httpLocator {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	l := &httpLocator{name: name, client: client}
	if opts.RatePerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	return l
}

func (l *httpLocator) Name() string {
	return l.name
}

func (l *httpLocator) Locate(ctx context.Context, ip net.IP) (model.Location, error) {
	if l.limiter != nil && !l.limiter.Allow() {
		return model.Location{}, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url(ip), nil)
	if err != nil {
		return model.Location{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return model.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.Location{}, err
	}
	return l.decode(body)
}

// NewIPAPI returns a Locator backed by the ip-api.com JSON endpoint.
func NewIPAPI(opts HTTPOptions) Locator {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultIPAPIURL
	}
	l := newHTTPLocator("ip-api", opts)
	l.url = func(ip net.IP) string {
		return fmt.Sprintf("%s/json/%s?fields=status,message,lat,lon", base, ip)
	}
	l.decode = func(body []byte) (model.Location, error) {
		var r struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			Lat     coord  `json:"lat"`
			Lon     coord  `json:"lon"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return model.Location{}, err
		}
		if r.Status != "" && r.Status != "success" {
			return model.Location{}, fmt.Errorf("%w: %s", ErrNoLocation, r.Message)
		}
		if !r.Lat.set || !r.Lon.set {
			return model.Location{}, ErrNoLocation
		}
		return model.Location{Lat: r.Lat.value, Lon: r.Lon.value}, nil
	}
	return l
}

// NewFreeGeoIP returns a Locator backed by a freegeoip-compatible endpoint.
func NewFreeGeoIP(opts HTTPOptions) Locator {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultFreeGeoIPURL
	}
	l := newHTTPLocator("freegeoip", opts)
	l.url = func(ip net.IP) string {
		return fmt.Sprintf("%s/json/%s", base, ip)
	}
	l.decode = func(body []byte) (model.Location, error) {
		var r struct {
			Latitude  coord `json:"latitude"`
			Longitude coord `json:"longitude"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return model.Location{}, err
		}
		if !r.Latitude.set || !r.Longitude.set {
			return model.Location{}, ErrNoLocation
		}
		return model.Location{Lat: r.Latitude.value, Lon: r.Longitude.value}, nil
	}
	return l
}
