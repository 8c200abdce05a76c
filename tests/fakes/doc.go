// Package fakes provides test doubles for pacert.
//
// FakeTransport stands in for the PAN-OS client so the rotation pipeline
// can be driven end to end without a firewall. The cloud SDK fakes satisfy
// the narrow client interfaces of internal/credentials. Fakes are written
// by hand, not generated, to keep precise control over test behavior.
//
// Usage:
//
//	transport := fakes.NewFakeTransport(configXML, "wildcard-2024")
//	transport.UpdateFunc = func(ctx context.Context, kind, name, cert string) error {
//	    if name == "vpn-profile" {
//	        return errors.New("object locked")
//	    }
//	    return nil
//	}
//	orch := rotation.NewOrchestrator(rotation.RunContext{Transport: transport, ...})
package fakes
