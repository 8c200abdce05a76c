package panos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/antchfx/xmlquery"

	"github.com/systmms/pacert/internal/secure"
	"github.com/systmms/pacert/pkg/rotation"
)

var _ rotation.Transport = (*Client)(nil)

// TestConnection runs "show system info" and returns the device identity.
func (c *Client) TestConnection(ctx context.Context) (rotation.SystemInfo, error) {
	body, err := c.do(ctx, request{
		op:     "test connection",
		params: url.Values{"type": {"op"}, "cmd": {"<show><system><info></info></system></show>"}},
	})
	if err != nil {
		return rotation.SystemInfo{}, err
	}
	root, err := parseResponse("test connection", body)
	if err != nil {
		return rotation.SystemInfo{}, err
	}

	system := xmlquery.FindOne(root, "//result/system")
	if system == nil {
		system = root
	}
	return rotation.SystemInfo{
		Hostname:  childText(system, "hostname"),
		Model:     childText(system, "model"),
		SWVersion: childText(system, "sw-version"),
		Serial:    childText(system, "serial"),
		IPAddress: childText(system, "ip-address"),
		MultiVsys: childText(system, "multi-vsys") == "on",
	}, nil
}

// BackupConfiguration exports the running configuration to
// <dir>/<host>-config-<stamp>.xml.
func (c *Client) BackupConfiguration(ctx context.Context, dir, stamp string) (string, error) {
	body, err := c.do(ctx, request{
		op:     "export configuration",
		params: url.Values{"type": {"export"}, "category": {"configuration"}},
	})
	if err != nil {
		return "", err
	}
	if isErrorEnvelope(body) {
		_, err := parseResponse("export configuration", body)
		return "", err
	}
	return writeBackup(dir, fmt.Sprintf("%s-config-%s.xml", safeName(c.host), stamp), body)
}

// BackupDeviceState exports the device state archive to
// <dir>/<host>-device-state-<stamp>.tgz using the export timeout.
func (c *Client) BackupDeviceState(ctx context.Context, dir, stamp string) (string, error) {
	body, err := c.do(ctx, request{
		op:      "export device state",
		params:  url.Values{"type": {"export"}, "category": {"device-state"}},
		timeout: c.exportTimeout,
	})
	if err != nil {
		return "", err
	}
	if isErrorEnvelope(body) {
		_, err := parseResponse("export device state", body)
		return "", err
	}
	return writeBackup(dir, fmt.Sprintf("%s-device-state-%s.tgz", safeName(c.host), stamp), body)
}

// ListCertificates returns the certificates in shared configuration.
func (c *Client) ListCertificates(ctx context.Context) ([]rotation.CertificateInfo, error) {
	root, err := c.getConfig(ctx, "list certificates", xpathSharedCertificates)
	if err != nil {
		return nil, err
	}

	var certs []rotation.CertificateInfo
	for _, e := range xmlquery.Find(root, "//result/certificate/entry") {
		certs = append(certs, rotation.CertificateInfo{
			Name:       e.SelectAttr("name"),
			CommonName: orNA(childText(e, "common-name")),
			Issuer:     orNA(childText(e, "issuer")),
			Expiry:     orNA(childText(e, "not-valid-after")),
		})
	}
	return certs, nil
}

// UploadCertificate imports certificate and key as one PEM keypair.
func (c *Client) UploadCertificate(ctx context.Context, name string, cert []byte, key, passphrase *secure.SecureBuffer) error {
	op := fmt.Sprintf("upload certificate %s", name)
	params := url.Values{
		"type":             {"import"},
		"category":         {"keypair"},
		"certificate-name": {name},
		"format":           {"pem"},
	}
	if !passphrase.IsEmpty() {
		err := passphrase.Use(func(p []byte) error {
			params.Set("passphrase", string(p))
			return nil
		})
		if err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("failed to open passphrase: %w", err)}
		}
	}

	var body []byte
	err := key.Use(func(k []byte) error {
		pem := make([]byte, 0, len(cert)+len(k)+1)
		pem = append(pem, cert...)
		pem = append(pem, '\n')
		pem = append(pem, k...)

		var err error
		body, err = c.do(ctx, request{op: op, params: params, upload: pem, filename: "certificate.pem"})
		for i := range pem {
			pem[i] = 0
		}
		return err
	})
	if err != nil {
		return err
	}
	_, err = parseResponse(op, body)
	return err
}

// UploadCertificateChain imports intermediate certificates under name.
func (c *Client) UploadCertificateChain(ctx context.Context, name string, chain []byte) error {
	op := fmt.Sprintf("upload chain %s", name)
	body, err := c.do(ctx, request{
		op: op,
		params: url.Values{
			"type":             {"import"},
			"category":         {"certificate"},
			"certificate-name": {name},
			"format":           {"pem"},
		},
		upload:   chain,
		filename: "chain.pem",
	})
	if err != nil {
		return err
	}
	_, err = parseResponse(op, body)
	return err
}

// CertificateVisible reports whether name exists in the candidate
// configuration.
func (c *Client) CertificateVisible(ctx context.Context, name string) (bool, error) {
	root, err := c.getConfig(ctx, "verify certificate", entry(xpathSharedCertificates, name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, e := range xmlquery.Find(root, "//result//entry") {
		if e.SelectAttr("name") == name {
			return true, nil
		}
	}
	return false, nil
}

// UpdateSSLTLSProfile sets the certificate of a shared SSL/TLS service
// profile.
func (c *Client) UpdateSSLTLSProfile(ctx context.Context, profile, newCert string) error {
	return c.setCertificate(ctx, "update ssl/tls profile "+profile, entry(xpathSSLTLSProfiles, profile), newCert)
}

// UpdatePortalCertificate sets the certificate of a GlobalProtect portal.
func (c *Client) UpdatePortalCertificate(ctx context.Context, portal, newCert string) error {
	return c.setCertificate(ctx, "update portal "+portal, c.portalXPath(portal), newCert)
}

// UpdateGatewayCertificate sets the certificate of a GlobalProtect gateway.
func (c *Client) UpdateGatewayCertificate(ctx context.Context, gateway, newCert string) error {
	return c.setCertificate(ctx, "update gateway "+gateway, c.gatewayXPath(gateway), newCert)
}

// setCertificate points the entry at xpath to certName. The entry must
// already exist at xpath, since a set would otherwise create a new one.
func (c *Client) setCertificate(ctx context.Context, op, xpath, certName string) error {
	root, err := c.getConfig(ctx, op, xpath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil || xmlquery.FindOne(root, "result/entry") == nil {
		return &APIError{Op: op, Err: fmt.Errorf("%w at %s; it may belong to another vsys or template and must be updated by hand", ErrNotFound, xpath)}
	}

	body, err := c.do(ctx, request{
		op: op,
		params: url.Values{
			"type":    {"config"},
			"action":  {"set"},
			"xpath":   {xpath},
			"element": {certificateElement(certName)},
		},
	})
	if err != nil {
		return err
	}
	_, err = parseResponse(op, body)
	return err
}

func (c *Client) getConfig(ctx context.Context, op, xpath string) (*xmlquery.Node, error) {
	body, err := c.do(ctx, request{
		op:     op,
		params: url.Values{"type": {"config"}, "action": {"get"}, "xpath": {xpath}},
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(op, body)
}

func multipartBody(filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", "application/x-pem-file")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeBackup(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeName(host string) string {
	return unsafeChars.ReplaceAllString(host, "_")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
