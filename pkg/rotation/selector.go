package rotation

import (
	"context"
	"fmt"
)

// FixedSelector selects name without prompting. It fails when name is not
// among the listed certificates.
func FixedSelector(name string) Selector {
	return SelectorFunc(func(_ context.Context, certs []CertificateInfo) (string, error) {
		for _, c := range certs {
			if c.Name == name {
				return name, nil
			}
		}
		return "", fmt.Errorf("certificate %q not found on firewall", name)
	})
}
