package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

// DefaultPath is the edge server endpoint that reports its load.
const DefaultPath = "/api/getUsage"

// Prober fetches the raw load report of an edge server. Any error means
// the server is unreachable.
type Prober interface {
	Probe(ctx context.Context, server model.EdgeServer) (string, error)
}

type HTTPProber struct {
	port   int
	path   string
	client *http.Client
}

func NewHTTPProber(port int, path string, timeout time.Duration) *HTTPProber {
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProber{
		port:   port,
		path:   path,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) URL(server model.EdgeServer) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(server.Domain, strconv.Itoa(p.port)), p.path)
}

// Probe returns the response body. The status code is not checked: any
// answer from the server counts as the server being up.
func (p *HTTPProber) Probe(ctx context.Context, server model.EdgeServer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(server), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("usage request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return "", fmt.Errorf("read usage body: %w", err)
	}
	return string(body), nil
}
