package fakes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/internal/rotation/storage"
	"github.com/systmms/pacert/internal/secure"
	"github.com/systmms/pacert/pkg/rotation"
)

// UpdateCall records one reference update.
type UpdateCall struct {
	Kind    string // "profile", "portal" or "gateway"
	Name    string
	NewCert string
}

// UploadCall records one certificate or chain import.
type UploadCall struct {
	Name          string
	Data          []byte
	Key           []byte
	HasPassphrase bool
	Chain         bool
}

// FakeTransport is an in-memory rotation.Transport. Every method succeeds by
// default; set the matching Func field to change its behaviour.
type FakeTransport struct {
	mu sync.Mutex

	// Configuration
	System       rotation.SystemInfo
	Certificates []rotation.CertificateInfo
	// ConfigXML is written by BackupConfiguration.
	ConfigXML string

	// Mock behaviors
	TestConnectionFunc     func(ctx context.Context) (rotation.SystemInfo, error)
	BackupConfigFunc       func(ctx context.Context, dir, stamp string) (string, error)
	BackupDeviceStateFunc  func(ctx context.Context, dir, stamp string) (string, error)
	ListCertificatesFunc   func(ctx context.Context) ([]rotation.CertificateInfo, error)
	UploadCertificateFunc  func(ctx context.Context, name string) error
	UploadChainFunc        func(ctx context.Context, name string) error
	CertificateVisibleFunc func(ctx context.Context, name string) (bool, error)
	UpdateFunc             func(ctx context.Context, kind, name, newCert string) error

	// Recorded calls for verification
	Calls           []string
	Uploads         []UploadCall
	VisibilityCalls int
	Updates         []UpdateCall
}

// NewFakeTransport creates a transport that lists certs and serves
// configXML as the configuration backup.
func NewFakeTransport(configXML string, certs ...string) *FakeTransport {
	f := &FakeTransport{
		System: rotation.SystemInfo{
			Hostname:  "fw-test",
			Model:     "PA-VM",
			SWVersion: "11.1.2",
			Serial:    "007200001234",
		},
		ConfigXML: configXML,
	}
	for _, name := range certs {
		f.Certificates = append(f.Certificates, rotation.CertificateInfo{
			Name:       name,
			CommonName: name + ".example.com",
			Issuer:     "Test CA",
			Expiry:     "Dec 31 23:59:59 2030 GMT",
		})
	}
	return f
}

func (f *FakeTransport) called(name string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, name)
	f.mu.Unlock()
}

// CallNames returns a copy of the recorded method names in call order.
func (f *FakeTransport) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// UpdatesOf returns the names updated for kind.
func (f *FakeTransport) UpdatesOf(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, u := range f.Updates {
		if u.Kind == kind {
			names = append(names, u.Name)
		}
	}
	return names
}

// TestConnection returns System.
func (f *FakeTransport) TestConnection(ctx context.Context) (rotation.SystemInfo, error) {
	f.called("TestConnection")
	if f.TestConnectionFunc != nil {
		return f.TestConnectionFunc(ctx)
	}
	return f.System, nil
}

// BackupConfiguration writes ConfigXML under dir.
func (f *FakeTransport) BackupConfiguration(ctx context.Context, dir, stamp string) (string, error) {
	f.called("BackupConfiguration")
	if f.BackupConfigFunc != nil {
		return f.BackupConfigFunc(ctx, dir, stamp)
	}
	return writeBackup(dir, fmt.Sprintf("fw-test-config-%s.xml", stamp), []byte(f.ConfigXML))
}

// BackupDeviceState writes a placeholder archive under dir.
func (f *FakeTransport) BackupDeviceState(ctx context.Context, dir, stamp string) (string, error) {
	f.called("BackupDeviceState")
	if f.BackupDeviceStateFunc != nil {
		return f.BackupDeviceStateFunc(ctx, dir, stamp)
	}
	return writeBackup(dir, fmt.Sprintf("fw-test-device-state-%s.tgz", stamp), []byte("device-state"))
}

// ListCertificates returns Certificates.
func (f *FakeTransport) ListCertificates(ctx context.Context) ([]rotation.CertificateInfo, error) {
	f.called("ListCertificates")
	if f.ListCertificatesFunc != nil {
		return f.ListCertificatesFunc(ctx)
	}
	return append([]rotation.CertificateInfo(nil), f.Certificates...), nil
}

// UploadCertificate records the import.
func (f *FakeTransport) UploadCertificate(ctx context.Context, name string, cert []byte, key, passphrase *secure.SecureBuffer) error {
	f.called("UploadCertificate")

	call := UploadCall{Name: name, Data: append([]byte(nil), cert...), HasPassphrase: !passphrase.IsEmpty()}
	_ = key.Use(func(b []byte) error {
		call.Key = append([]byte(nil), b...)
		return nil
	})
	f.mu.Lock()
	f.Uploads = append(f.Uploads, call)
	f.mu.Unlock()

	if f.UploadCertificateFunc != nil {
		return f.UploadCertificateFunc(ctx, name)
	}
	return nil
}

// UploadCertificateChain records the import.
func (f *FakeTransport) UploadCertificateChain(ctx context.Context, name string, chain []byte) error {
	f.called("UploadCertificateChain")
	f.mu.Lock()
	f.Uploads = append(f.Uploads, UploadCall{Name: name, Data: append([]byte(nil), chain...), Chain: true})
	f.mu.Unlock()

	if f.UploadChainFunc != nil {
		return f.UploadChainFunc(ctx, name)
	}
	return nil
}

// CertificateVisible reports true unless overridden.
func (f *FakeTransport) CertificateVisible(ctx context.Context, name string) (bool, error) {
	f.called("CertificateVisible")
	f.mu.Lock()
	f.VisibilityCalls++
	f.mu.Unlock()

	if f.CertificateVisibleFunc != nil {
		return f.CertificateVisibleFunc(ctx, name)
	}
	return true, nil
}

// UpdateSSLTLSProfile records a "profile" update.
func (f *FakeTransport) UpdateSSLTLSProfile(ctx context.Context, profile, newCert string) error {
	return f.update(ctx, "profile", profile, newCert)
}

// UpdatePortalCertificate records a "portal" update.
func (f *FakeTransport) UpdatePortalCertificate(ctx context.Context, portal, newCert string) error {
	return f.update(ctx, "portal", portal, newCert)
}

// UpdateGatewayCertificate records a "gateway" update.
func (f *FakeTransport) UpdateGatewayCertificate(ctx context.Context, gateway, newCert string) error {
	return f.update(ctx, "gateway", gateway, newCert)
}

func (f *FakeTransport) update(ctx context.Context, kind, name, newCert string) error {
	f.called("Update:" + kind)
	f.mu.Lock()
	f.Updates = append(f.Updates, UpdateCall{Kind: kind, Name: name, NewCert: newCert})
	f.mu.Unlock()

	if f.UpdateFunc != nil {
		return f.UpdateFunc(ctx, kind, name, newCert)
	}
	return nil
}

func writeBackup(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// FakeSelector is a rotation.Selector returning a preset answer.
type FakeSelector struct {
	Choice string
	Err    error

	// Offered holds the certificates passed to the last Select call.
	Offered []rotation.CertificateInfo
	Calls   int
}

// Select returns Choice or Err.
func (s *FakeSelector) Select(_ context.Context, certs []rotation.CertificateInfo) (string, error) {
	s.Calls++
	s.Offered = append([]rotation.CertificateInfo(nil), certs...)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Choice, nil
}

// FakeRecorder collects metrics calls.
type FakeRecorder struct {
	mu         sync.Mutex
	Phases     map[string][2]int
	References map[string]int
	Runs       []string
}

// NewFakeRecorder creates an empty recorder.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{Phases: map[string][2]int{}, References: map[string]int{}}
}

func (r *FakeRecorder) RecordPhase(phase string, succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phases[phase] = [2]int{succeeded, failed}
}

func (r *FakeRecorder) RecordReferences(kind string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.References[kind] = count
}

func (r *FakeRecorder) RecordRun(state string, success, dryRun bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, fmt.Sprintf("%s success=%t dry_run=%t", state, success, dryRun))
}

// FakeNotifier collects run events.
type FakeNotifier struct {
	mu     sync.Mutex
	Events []notifications.RunEvent
}

func (n *FakeNotifier) Send(event notifications.RunEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, event)
}

// Types returns the event types in send order.
func (n *FakeNotifier) Types() []notifications.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.EventType, 0, len(n.Events))
	for _, e := range n.Events {
		out = append(out, e.Type)
	}
	return out
}

// FakeHistory collects saved run records.
type FakeHistory struct {
	mu      sync.Mutex
	Records []*storage.RunRecord
	Err     error
}

func (h *FakeHistory) SaveRun(_ context.Context, record *storage.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.Records = append(h.Records, record)
	return nil
}
