package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

type Config struct {
	Server struct {
		ListenIP   string         `yaml:"listen_ip"`
		ListenPort int            `yaml:"listen_port"`
		UseECS     bool           `yaml:"use_ecs"`
		Location   model.Location `yaml:"location"`
	} `yaml:"server"`
	Health struct {
		ProbePort int           `yaml:"probe_port"`
		Path      string        `yaml:"path"`
		Interval  time.Duration `yaml:"interval"`
		Timeout   time.Duration `yaml:"timeout"`
		MaxLoad   float64       `yaml:"max_load"`
	} `yaml:"health"`
	Geolocation struct {
		Timeout   time.Duration `yaml:"timeout"`
		Providers []Provider    `yaml:"providers"`
	} `yaml:"geolocation"`
	DistanceCache struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"distance_cache"`
	Fallback struct {
		Address  string `yaml:"address"`
		Hostname string `yaml:"hostname"`
	} `yaml:"fallback"`
	EdgeServers []EdgeServer `yaml:"edge_servers"`
	Metrics     struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

const (
	ProviderIPAPI     = "ip-api"
	ProviderFreeGeoIP = "freegeoip"
	ProviderMaxMind   = "maxmind"
)

type Provider struct {
	Kind          string `yaml:"kind"`
	URL           string `yaml:"url"`
	DBPath        string `yaml:"db_path"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

type EdgeServer struct {
	Address string  `yaml:"address"`
	Domain  string  `yaml:"domain"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
}

// Default returns a complete configuration for the seven-node CDN the
// balancer was first deployed in front of.
func Default() *Config {
	var c Config
	c.Server.ListenIP = "0.0.0.0"
	c.Server.ListenPort = 53
	c.Server.Location = model.Location{Lat: 40.8229, Lon: -74.4592}
	c.Health.Path = "/api/getUsage"
	c.Health.Interval = 5 * time.Second
	c.Health.Timeout = 2 * time.Second
	c.Health.MaxLoad = 90
	c.Geolocation.Timeout = 2 * time.Second
	c.Geolocation.Providers = []Provider{
		{Kind: ProviderIPAPI, RatePerMinute: 45},
		{Kind: ProviderFreeGeoIP},
	}
	c.Fallback.Address = "3.129.217.143"
	c.Fallback.Hostname = "ec2-3-129-217-143.us-east-2.compute.amazonaws.com"
	c.EdgeServers = []EdgeServer{
		{Address: "45.33.55.171", Domain: "cdn-http3.khoury.northeastern.edu", Lat: 37.5625, Lon: -122.0004},
		{Address: "170.187.142.220", Domain: "cdn-http4.khoury.northeastern.edu", Lat: 33.7485, Lon: -84.3871},
		{Address: "213.168.249.157", Domain: "cdn-http7.khoury.northeastern.edu", Lat: 51.5074, Lon: -0.1196},
		{Address: "139.162.82.207", Domain: "cdn-http11.khoury.northeastern.edu", Lat: 35.6893, Lon: 139.6899},
		{Address: "45.79.124.209", Domain: "cdn-http14.khoury.northeastern.edu", Lat: 19.0748, Lon: 72.8856},
		{Address: "192.53.123.145", Domain: "cdn-http15.khoury.northeastern.edu", Lat: 43.709, Lon: -79.4057},
		{Address: "192.46.221.203", Domain: "cdn-http16.khoury.northeastern.edu", Lat: -33.8715, Lon: 151.2006},
	}
	c.Log.Level = "info"
	return &c
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if net.ParseIP(c.Server.ListenIP) == nil {
		errs = append(errs, fmt.Errorf("server.listen_ip %q is not an IP address", c.Server.ListenIP))
	}
	if c.Server.ListenPort < 1 || c.Server.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("server.listen_port %d out of range", c.Server.ListenPort))
	}
	if c.Health.ProbePort < 0 || c.Health.ProbePort > 65535 {
		errs = append(errs, fmt.Errorf("health.probe_port %d out of range", c.Health.ProbePort))
	}
	if c.Health.Interval <= 0 {
		errs = append(errs, errors.New("health.interval must be positive"))
	}
	if c.Health.MaxLoad <= 0 || c.Health.MaxLoad > 100 {
		errs = append(errs, fmt.Errorf("health.max_load %v must be in (0, 100]", c.Health.MaxLoad))
	}
	if c.DistanceCache.MaxEntries < 0 {
		errs = append(errs, errors.New("distance_cache.max_entries must not be negative"))
	}
	if ip := net.ParseIP(c.Fallback.Address); ip == nil || ip.To4() == nil {
		errs = append(errs, fmt.Errorf("fallback.address %q is not an IPv4 address", c.Fallback.Address))
	}
	if c.Fallback.Hostname == "" {
		errs = append(errs, errors.New("fallback.hostname is required"))
	}
	for i, p := range c.Geolocation.Providers {
		switch p.Kind {
		case ProviderIPAPI, ProviderFreeGeoIP:
		case ProviderMaxMind:
			if p.DBPath == "" {
				errs = append(errs, fmt.Errorf("geolocation.providers[%d]: maxmind requires db_path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("geolocation.providers[%d]: unknown kind %q", i, p.Kind))
		}
		if p.RatePerMinute < 0 {
			errs = append(errs, fmt.Errorf("geolocation.providers[%d]: negative rate_per_minute", i))
		}
	}
	if _, err := c.Edges(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ListenAddr is the host:port the DNS socket binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.ListenIP, strconv.Itoa(c.Server.ListenPort))
}

// ProbePort is the port edge servers are probed on. Unless configured it
// is the DNS listen port.
func (c *Config) ProbePort() int {
	if c.Health.ProbePort != 0 {
		return c.Health.ProbePort
	}
	return c.Server.ListenPort
}

func (c *Config) FallbackIP() net.IP {
	return net.ParseIP(c.Fallback.Address).To4()
}

func (c *Config) Edges() ([]model.EdgeServer, error) {
	out := make([]model.EdgeServer, 0, len(c.EdgeServers))
	for i, e := range c.EdgeServers {
		ip := net.ParseIP(e.Address)
		if ip == nil {
			return nil, fmt.Errorf("edge_servers[%d]: invalid address %q", i, e.Address)
		}
		out = append(out, model.EdgeServer{
			Address:  ip,
			Domain:   e.Domain,
			Location: model.Location{Lat: e.Lat, Lon: e.Lon},
		})
	}
	return out, nil
}
