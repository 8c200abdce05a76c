package locator

import (
	"fmt"
	"strings"

	"github.com/systmms/pacert/pkg/configdoc"
)

// Structural queries. They never contain user data; the certificate name is
// compared against node values in Go.
const (
	querySSLTLSProfiles = "//ssl-tls-service-profile/entry"
	queryPortals        = "//global-protect/global-protect-portal/entry"
	queryGateways       = "//global-protect/global-protect-gateway/entry"
	queryManagement     = "//management/entry"
)

// typedMarkers identify paths that belong to the typed buckets. The generic
// sweep drops any hit whose path contains one of them.
var typedMarkers = []string{
	"ssl-tls-service-profile",
	"global-protect-portal",
	"global-protect-gateway",
	"management",
}

// DiscoveryError reports that the search itself failed, as opposed to
// finding nothing.
type DiscoveryError struct {
	Certificate string
	Err         error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover references to %q: %v", e.Certificate, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Locate returns every reference to certName in doc. It never fails: on an
// internal error it returns an empty set. Use Discover to tell "unused"
// apart from "search failed".
func Locate(doc *configdoc.Document, certName string) ReferenceSet {
	set, _ := Discover(doc, certName)
	return set
}

// Discover returns every reference to certName in doc. On failure it
// returns an empty set together with a *DiscoveryError.
func Discover(doc *configdoc.Document, certName string) (set ReferenceSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = ReferenceSet{}
			err = &DiscoveryError{Certificate: certName, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if doc == nil {
		return ReferenceSet{}, &DiscoveryError{Certificate: certName, Err: fmt.Errorf("no configuration document")}
	}
	if certName == "" {
		return ReferenceSet{}, &DiscoveryError{Certificate: certName, Err: fmt.Errorf("empty certificate name")}
	}

	b := newBuilder()
	steps := []func(*configdoc.Document, string, *builder) error{
		findSSLTLSProfiles,
		findPortals,
		findGateways,
		findManagementInterfaces,
		findOther,
	}
	for _, step := range steps {
		if err := step(doc, certName, b); err != nil {
			return ReferenceSet{}, &DiscoveryError{Certificate: certName, Err: err}
		}
	}
	return b.build(), nil
}

func findSSLTLSProfiles(doc *configdoc.Document, certName string, b *builder) error {
	entries, err := doc.FindAll(querySSLTLSProfiles)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ChildTextEquals("certificate", certName) {
			b.add(Reference{Kind: KindSSLTLSProfile, ContainerName: e.Attr("name"), Path: doc.PathOf(e)})
		}
	}
	return nil
}

func findPortals(doc *configdoc.Document, certName string, b *builder) error {
	return findGlobalProtect(doc, queryPortals, KindPortal, certName, b)
}

func findGateways(doc *configdoc.Document, certName string, b *builder) error {
	return findGlobalProtect(doc, queryGateways, KindGateway, certName, b)
}

// findGlobalProtect matches entries that name the certificate either through
// their ssl-tls-service-profile field or through any nested certificate.
func findGlobalProtect(doc *configdoc.Document, query string, kind Kind, certName string, b *builder) error {
	entries, err := doc.FindAll(query)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ChildTextEquals("ssl-tls-service-profile", certName) || e.DescendantTextEquals("certificate", certName) {
			b.add(Reference{Kind: kind, ContainerName: e.Attr("name"), Path: doc.PathOf(e)})
		}
	}
	return nil
}

func findManagementInterfaces(doc *configdoc.Document, certName string, b *builder) error {
	entries, err := doc.FindAll(queryManagement)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.DescendantTextEquals("certificate", certName) {
			b.add(Reference{
				Kind:          KindManagementInterface,
				ContainerName: "Management Interface: " + e.Attr("name"),
				Path:          doc.PathOf(e),
			})
		}
	}
	return nil
}

// findOther sweeps the whole document for leaves whose own text is the
// certificate name and which are not already accounted for.
func findOther(doc *configdoc.Document, certName string, b *builder) error {
	doc.Walk(func(n configdoc.Node) bool {
		if !n.HasDirectText(certName) || n.HasAncestor("certificate") {
			return true
		}
		path := doc.PathOf(n)
		if containsMarker(path) {
			return true
		}
		display := shortenPath(path)
		if b.covered(path, display) {
			return true
		}
		b.add(Reference{Kind: KindOther, ContainerName: display, Path: path})
		return true
	})
	return nil
}

func containsMarker(path string) bool {
	for _, m := range typedMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// shortenPath keeps the last three segments of a path for display. Paths of
// three segments or fewer are returned unchanged.
func shortenPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 3 {
		return path
	}
	return strings.Join(parts[len(parts)-3:], "/")
}
