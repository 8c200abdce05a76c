package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/systmms/pacert/internal/rotation/notifications"
	"github.com/systmms/pacert/internal/rotation/storage"
	"github.com/systmms/pacert/internal/secure"
)

// Transport is the firewall API as seen by the orchestrator.
//
// Every method may block on the network. Implementations report failure
// through the returned error and must not retry on their own; verification
// retries are owned by the orchestrator's Waiter. The orchestrator also
// recovers panics raised by a Transport and treats them as failures of the
// call that raised them.
type Transport interface {
	// TestConnection checks that the API is reachable and the key is valid.
	TestConnection(ctx context.Context) (SystemInfo, error)

	// BackupConfiguration exports the running configuration into dir and
	// returns the path of the written file. stamp is shared by all backups
	// of one run.
	BackupConfiguration(ctx context.Context, dir, stamp string) (string, error)

	// BackupDeviceState exports the device state archive into dir.
	BackupDeviceState(ctx context.Context, dir, stamp string) (string, error)

	// ListCertificates returns the certificates present in shared config.
	ListCertificates(ctx context.Context) ([]CertificateInfo, error)

	// UploadCertificate imports a certificate and private key under name.
	// passphrase may be nil for unencrypted keys.
	UploadCertificate(ctx context.Context, name string, cert []byte, key, passphrase *secure.SecureBuffer) error

	// UploadCertificateChain imports intermediate certificates under name.
	UploadCertificateChain(ctx context.Context, name string, chain []byte) error

	// CertificateVisible reports whether name is present in the candidate
	// configuration.
	CertificateVisible(ctx context.Context, name string) (bool, error)

	// UpdateSSLTLSProfile points an SSL/TLS service profile at newCert.
	UpdateSSLTLSProfile(ctx context.Context, profile, newCert string) error

	// UpdatePortalCertificate points a GlobalProtect portal at newCert.
	UpdatePortalCertificate(ctx context.Context, portal, newCert string) error

	// UpdateGatewayCertificate points a GlobalProtect gateway at newCert.
	UpdateGatewayCertificate(ctx context.Context, gateway, newCert string) error
}

// SystemInfo identifies the firewall after a successful connection test.
type SystemInfo struct {
	Hostname  string
	Model     string
	SWVersion string
	Serial    string
	IPAddress string
	MultiVsys bool
}

// CertificateInfo describes a certificate installed on the firewall.
type CertificateInfo struct {
	Name       string
	CommonName string
	Issuer     string
	// Expiry is the firewall's own rendering of not-valid-after.
	Expiry string
}

// ErrSelectionCancelled is returned by a Selector when the operator declines
// to choose. The run ends cleanly.
var ErrSelectionCancelled = errors.New("certificate selection cancelled")

// Selector chooses the certificate to replace.
type Selector interface {
	// Select returns the name of one of certs, or ErrSelectionCancelled.
	Select(ctx context.Context, certs []CertificateInfo) (string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, certs []CertificateInfo) (string, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, certs []CertificateInfo) (string, error) {
	return f(ctx, certs)
}

// Recorder receives metrics about a run. Implemented by
// internal/rotation/metrics.RunMetrics.
type Recorder interface {
	RecordPhase(phase string, succeeded, failed int)
	RecordReferences(kind string, count int)
	RecordRun(state string, success, dryRun bool, duration time.Duration)
}

// Notifier publishes run events. Send must not block; implemented by
// internal/rotation/notifications.Manager.
type Notifier interface {
	Send(event notifications.RunEvent)
}

// HistoryStore persists finished runs. Implemented by the backends in
// internal/rotation/storage.
type HistoryStore interface {
	SaveRun(ctx context.Context, record *storage.RunRecord) error
}
