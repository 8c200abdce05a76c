// Package credentials resolves secret references such as the firewall API
// key and the private key passphrase. A reference names where the value
// lives; resolved values are returned in memguard-backed buffers.
//
// Supported forms:
//
//	env:NAME
//	file:/path/to/file
//	keyring:[service/]account
//	aws-sm:secret-id[#json-field]
//	aws-ssm:/parameter/name
//	gcp-sm:project/secret[/version][#json-field]
//	azure-kv:vault/secret[/version][#json-field]
//
// Anything else is taken literally.
package credentials

import (
	"fmt"
	"strings"
)

// Scheme identifies a credential source.
type Scheme string

const (
	SchemeLiteral Scheme = "literal"
	SchemeEnv     Scheme = "env"
	SchemeFile    Scheme = "file"
	SchemeKeyring Scheme = "keyring"
	SchemeAWSSM   Scheme = "aws-sm"
	SchemeAWSSSM  Scheme = "aws-ssm"
	SchemeGCPSM   Scheme = "gcp-sm"
	SchemeAzureKV Scheme = "azure-kv"
)

var schemes = []Scheme{SchemeEnv, SchemeFile, SchemeKeyring, SchemeAWSSM, SchemeAWSSSM, SchemeGCPSM, SchemeAzureKV}

// DefaultKeyringService is used when a keyring reference names only the
// account.
const DefaultKeyringService = "pacert"

// Reference is a parsed credential reference.
type Reference struct {
	Scheme Scheme
	// Path is the scheme-specific location.
	Path string
	// Field selects a key when the stored value is a JSON object.
	Field string

	raw string
}

// String returns a description safe for logs. Literal values are hidden.
func (r Reference) String() string {
	if r.Scheme == SchemeLiteral {
		return "literal value"
	}
	return r.raw
}

// ParseReference parses s. It fails only for a known scheme with an
// empty path.
func ParseReference(s string) (Reference, error) {
	for _, scheme := range schemes {
		prefix := string(scheme) + ":"
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		ref := Reference{Scheme: scheme, Path: strings.TrimPrefix(s, prefix), raw: s}
		if supportsField(scheme) {
			if i := strings.LastIndex(ref.Path, "#"); i >= 0 {
				ref.Field = ref.Path[i+1:]
				ref.Path = ref.Path[:i]
			}
		}
		if strings.TrimSpace(ref.Path) == "" {
			return Reference{}, fmt.Errorf("credential reference %q has no location", s)
		}
		return ref, nil
	}
	return Reference{Scheme: SchemeLiteral, Path: s}, nil
}

// IsReference reports whether s uses one of the reference schemes.
func IsReference(s string) bool {
	ref, err := ParseReference(s)
	return err != nil || ref.Scheme != SchemeLiteral
}

func supportsField(s Scheme) bool {
	return s == SchemeAWSSM || s == SchemeGCPSM || s == SchemeAzureKV
}

// keyringLocation splits "service/account"; a bare account uses the
// default service.
func keyringLocation(path string) (service, account string) {
	if i := strings.Index(path, "/"); i > 0 {
		return path[:i], path[i+1:]
	}
	return DefaultKeyringService, path
}

// gcpSecretVersionName builds the resource name for "project/secret[/version]"
// or passes a full "projects/..." name through.
func gcpSecretVersionName(path string) (string, error) {
	if strings.HasPrefix(path, "projects/") {
		if !strings.Contains(path, "/versions/") {
			return path + "/versions/latest", nil
		}
		return path, nil
	}
	parts := strings.Split(path, "/")
	switch len(parts) {
	case 2:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", parts[0], parts[1]), nil
	case 3:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", parts[0], parts[1], parts[2]), nil
	default:
		return "", fmt.Errorf("gcp-sm reference must be project/secret[/version], got %q", path)
	}
}

// azureLocation splits "vault/secret[/version]". vault may be a bare name
// or a full https URL.
func azureLocation(path string) (vaultURL, secret, version string, err error) {
	rest := path
	if strings.HasPrefix(rest, "https://") {
		rest = strings.TrimPrefix(rest, "https://")
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("azure-kv reference must be vault/secret[/version], got %q", path)
	}
	host := parts[0]
	if !strings.Contains(host, ".") {
		host += ".vault.azure.net"
	}
	vaultURL = "https://" + host + "/"
	secret = parts[1]
	if len(parts) == 3 {
		version = parts[2]
	}
	return vaultURL, secret, version, nil
}
