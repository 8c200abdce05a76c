package fakes

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/antchfx/xmlquery"
)

// PANOSSet is one recorded "type=config&action=set" call.
type PANOSSet struct {
	XPath   string
	Element string
}

// PANOSServer is an in-memory PAN-OS XML API over TLS. It serves a fixed
// running configuration, tracks imported certificates and records every
// config change.
type PANOSServer struct {
	*httptest.Server

	mu sync.Mutex
	// APIKey is the only key accepted in X-PAN-KEY.
	APIKey    string
	ConfigXML string
	// Certificates lists names present in shared config. Imports append to it.
	Certificates []string
	// RejectImport makes keypair imports fail with this message.
	RejectImport string

	Imports []string
	Sets    []PANOSSet
	Ops     []string
}

var entryNameRE = regexp.MustCompile(`entry\[@name='([^']*)'\]$`)

// NewPANOSServer starts a server that stops when the test ends.
func NewPANOSServer(t *testing.T, apiKey, configXML string, certs ...string) *PANOSServer {
	t.Helper()
	s := &PANOSServer{APIKey: apiKey, ConfigXML: configXML, Certificates: certs}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// SetsMatching returns the recorded changes whose xpath contains substr.
func (s *PANOSServer) SetsMatching(substr string) []PANOSSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PANOSSet
	for _, set := range s.Sets {
		if strings.Contains(set.XPath, substr) {
			out = append(out, set)
		}
	}
	return out
}

func (s *PANOSServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("X-PAN-KEY") != s.APIKey {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<response status="error" code="403"><result><msg>Invalid Credential</msg></result></response>`)
		return
	}

	q := r.URL.Query()
	op := q.Get("type") + "/" + q.Get("category") + q.Get("action")
	s.Ops = append(s.Ops, op)

	switch {
	case q.Get("type") == "op":
		writeSuccess(w, `<system><hostname>fw-test</hostname><model>PA-440</model><sw-version>11.1.2</sw-version><serial>007</serial><ip-address>10.0.0.1</ip-address><multi-vsys>off</multi-vsys></system>`)

	case q.Get("type") == "export" && q.Get("category") == "configuration":
		_, _ = io.WriteString(w, s.ConfigXML)

	case q.Get("type") == "export" && q.Get("category") == "device-state":
		_, _ = w.Write([]byte{0x1f, 0x8b, 0x08, 0x00})

	case q.Get("type") == "import":
		name := q.Get("certificate-name")
		if q.Get("category") == "keypair" && s.RejectImport != "" {
			_, _ = fmt.Fprintf(w, `<response status="error"><msg><line>%s</line></msg></response>`, html.EscapeString(s.RejectImport))
			return
		}
		s.Imports = append(s.Imports, name)
		s.Certificates = append(s.Certificates, name)
		writeSuccess(w, `<msg>Successfully imported `+html.EscapeString(name)+`</msg>`)

	case q.Get("type") == "config" && q.Get("action") == "get":
		s.serveGet(w, q.Get("xpath"))

	case q.Get("type") == "config" && q.Get("action") == "set":
		s.Sets = append(s.Sets, PANOSSet{XPath: q.Get("xpath"), Element: q.Get("element")})
		_, _ = io.WriteString(w, `<response status="success" code="20"><msg>command succeeded</msg></response>`)

	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `<response status="error"><msg><line>unsupported request</line></msg></response>`)
	}
}

func (s *PANOSServer) serveGet(w http.ResponseWriter, xpath string) {
	if xpath == "/config/shared/certificate" {
		var b strings.Builder
		b.WriteString("<certificate>")
		for _, name := range s.Certificates {
			fmt.Fprintf(&b, `<entry name="%s"><common-name>%s.example.com</common-name><issuer>Test CA</issuer><not-valid-after>Dec 31 23:59:59 2026 GMT</not-valid-after></entry>`,
				html.EscapeString(name), html.EscapeString(name))
		}
		b.WriteString("</certificate>")
		writeSuccess(w, b.String())
		return
	}

	if m := entryNameRE.FindStringSubmatch(xpath); m != nil && strings.HasPrefix(xpath, "/config/shared/certificate/") {
		for _, name := range s.Certificates {
			if name == m[1] {
				writeSuccess(w, `<entry name="`+html.EscapeString(name)+`"/>`)
				return
			}
		}
		_, _ = io.WriteString(w, `<response status="success" code="7"><result/></response>`)
		return
	}

	if doc, err := xmlquery.Parse(strings.NewReader(s.ConfigXML)); err == nil {
		if nodes, err := xmlquery.QueryAll(doc, xpath); err == nil && len(nodes) > 0 {
			var b strings.Builder
			for _, n := range nodes {
				b.WriteString(n.OutputXML(true))
			}
			writeSuccess(w, b.String())
			return
		}
	}
	_, _ = io.WriteString(w, `<response status="success" code="7"><result/></response>`)
}

func writeSuccess(w io.Writer, inner string) {
	_, _ = io.WriteString(w, `<response status="success"><result>`+inner+`</result></response>`)
}
