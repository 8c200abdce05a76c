package panos

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// xpathLiteral quotes s as an XPath 1.0 string literal. Values containing
// both quote characters are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	args := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

// entry returns "<prefix>/entry[@name=...]".
func entry(prefix, name string) string {
	return fmt.Sprintf("%s/entry[@name=%s]", prefix, xpathLiteral(name))
}

// certificateElement renders <certificate>name</certificate> with name
// escaped.
func certificateElement(name string) string {
	var b bytes.Buffer
	b.WriteString("<certificate>")
	_ = xml.EscapeText(&b, []byte(name))
	b.WriteString("</certificate>")
	return b.String()
}

const (
	xpathSharedCertificates = "/config/shared/certificate"
	xpathSSLTLSProfiles     = "/config/shared/ssl-tls-service-profile"
)

func (c *Client) vsysXPath() string {
	return entry(entry("/config/devices", c.device)+"/vsys", c.vsys)
}

func (c *Client) portalXPath(name string) string {
	return entry(c.vsysXPath()+"/global-protect/global-protect-portal", name)
}

func (c *Client) gatewayXPath(name string) string {
	return entry(c.vsysXPath()+"/global-protect/global-protect-gateway", name)
}
