// Package panos is a client for the PAN-OS XML API. It implements
// rotation.Transport.
package panos

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/systmms/pacert/internal/logging"
	"github.com/systmms/pacert/internal/secure"
)

const (
	// DefaultTimeout bounds every API request except device state export.
	DefaultTimeout = 30 * time.Second
	// DefaultExportTimeout bounds the device state export.
	DefaultExportTimeout = 5 * time.Minute

	// DefaultDevice and DefaultVsys locate GlobalProtect objects on a
	// single-vsys firewall.
	DefaultDevice = "localhost.localdomain"
	DefaultVsys   = "vsys1"

	apiPath = "/api/"
)

// Config configures a Client.
type Config struct {
	// Host is the firewall hostname or address, optionally with a scheme
	// and port. "https://" is assumed when no scheme is given.
	Host   string
	APIKey *secure.SecureBuffer

	VerifyTLS bool
	// CACert is an optional PEM bundle used instead of the system roots.
	CACert string

	Device string
	Vsys   string

	Timeout       time.Duration
	ExportTimeout time.Duration

	Logger *logging.Logger
	// HTTPClient overrides the client built from the TLS settings.
	HTTPClient *http.Client
}

// Client talks to one firewall.
type Client struct {
	baseURL    string
	host       string
	apiKey     *secure.SecureBuffer
	keyDisplay string

	device string
	vsys   string

	timeout       time.Duration
	exportTimeout time.Duration

	httpClient *http.Client
	log        *logging.Logger
}

// New creates a client. The API key buffer is used for every request and
// must stay alive for the client's lifetime.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("firewall host is required")
	}
	if cfg.APIKey.IsEmpty() {
		return nil, fmt.Errorf("API key is required")
	}

	base, host, err := baseURL(cfg.Host)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient, err = newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL:       base,
		host:          host,
		apiKey:        cfg.APIKey,
		device:        orDefault(cfg.Device, DefaultDevice),
		vsys:          orDefault(cfg.Vsys, DefaultVsys),
		timeout:       cfg.Timeout,
		exportTimeout: cfg.ExportTimeout,
		httpClient:    httpClient,
		log:           cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.exportTimeout <= 0 {
		c.exportTimeout = DefaultExportTimeout
	}
	if c.log == nil {
		c.log = logging.New(false, true)
	}
	_ = cfg.APIKey.Use(func(key []byte) error {
		c.keyDisplay = logging.MaskKey(string(key))
		return nil
	})

	c.log.Debug("Initialized client for firewall %s (API key %s)", host, c.keyDisplay)
	if !cfg.VerifyTLS && cfg.HTTPClient == nil {
		c.log.Debug("TLS certificate verification is disabled")
	}
	return c, nil
}

// Host returns the firewall host as used in backup file names.
func (c *Client) Host() string {
	return c.host
}

func baseURL(raw string) (string, string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid firewall host %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid firewall host %q", raw)
	}
	return u.Scheme + "://" + u.Host + apiPath, u.Hostname(), nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	if !cfg.VerifyTLS {
		transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402 -- firewalls commonly serve self-signed management certificates
	}

	return &http.Client{Transport: transport}, nil
}

// request is one API call.
type request struct {
	op     string
	params url.Values
	// upload, when set, is sent as the multipart "file" field.
	upload   []byte
	filename string
	timeout  time.Duration
}

// do performs req and returns the raw response body for a 2xx status.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	contentType := ""
	if req.upload != nil {
		method = http.MethodPost
		buf, ct, err := multipartBody(req.filename, req.upload)
		if err != nil {
			return nil, &APIError{Op: req.op, Err: err}
		}
		body, contentType = buf, ct
	}

	u := c.baseURL + "?" + req.params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &APIError{Op: req.op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	err = c.apiKey.Use(func(key []byte) error {
		httpReq.Header.Set("X-PAN-KEY", string(key))
		return nil
	})
	if err != nil {
		return nil, &APIError{Op: req.op, Err: fmt.Errorf("failed to open API key: %w", err)}
	}

	c.log.Debug("API call: %s %s %s key=%s", method, c.baseURL, describeParams(req.params), c.keyDisplay)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &APIError{Op: req.op, Err: fmt.Errorf("timed out after %s: %w", timeout, err)}
		}
		return nil, &APIError{Op: req.op, Err: fmt.Errorf("cannot connect to firewall %s: %w", c.host, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Op: req.op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.log.Debug("API response: %d (%d bytes)", resp.StatusCode, len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &APIError{Op: req.op, StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}

// describeParams renders params for debug logs. Secret parameters print as
// logging.Secret, and their values are scrubbed wherever else they appear.
func describeParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		b       bytes.Buffer
		secrets []string
	)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		var v fmt.Stringer = plainParam(params.Get(k))
		if k == "passphrase" || k == "key" {
			secrets = append(secrets, params[k]...)
			v = logging.Secret(params.Get(k))
		}
		fmt.Fprintf(&b, "%s=%s", k, v)
	}
	return logging.Redact(b.String(), secrets)
}

type plainParam string

func (p plainParam) String() string { return string(p) }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
