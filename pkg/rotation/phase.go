package rotation

import (
	"fmt"

	"github.com/systmms/pacert/pkg/locator"
)

// Phase names used in RunOutcome.
const (
	PhaseUpload         = "upload"
	PhaseVerify         = "verify"
	PhaseSSLTLSProfiles = "ssl-tls-profiles"
	PhasePortals        = "portals"
	PhaseGateways       = "gateways"
)

// updatePhases maps each updatable reference kind to its fan-out phase, in
// execution order.
var updatePhases = []struct {
	kind locator.Kind
	name string
}{
	{locator.KindSSLTLSProfile, PhaseSSLTLSProfiles},
	{locator.KindPortal, PhasePortals},
	{locator.KindGateway, PhaseGateways},
}

// PhaseResult is the frozen result of one phase. The zero value describes a
// phase that was never entered.
type PhaseResult struct {
	Name string
	// Attempted lists every item in the order it was tried.
	Attempted []string
	Succeeded []string
	Failed    []string
	// Errors holds the failure detail of each item in Failed.
	Errors map[string]string
}

// OK reports whether no item failed.
func (p PhaseResult) OK() bool {
	return len(p.Failed) == 0
}

// Entered reports whether the phase ran.
func (p PhaseResult) Entered() bool {
	return p.Name != ""
}

// Err returns the failure detail for item, or "".
func (p PhaseResult) Err(item string) string {
	return p.Errors[item]
}

type itemOutcome struct {
	err error
}

// phaseRecorder accumulates one outcome per item. Once frozen it ignores
// further records.
type phaseRecorder struct {
	name     string
	order    []string
	outcomes map[string]itemOutcome
	frozen   bool
}

func newPhase(name string) *phaseRecorder {
	return &phaseRecorder{name: name, outcomes: make(map[string]itemOutcome)}
}

// record stores the outcome of item. The first outcome for an item wins.
func (r *phaseRecorder) record(item string, err error) {
	if r.frozen {
		return
	}
	if _, seen := r.outcomes[item]; seen {
		return
	}
	r.order = append(r.order, item)
	r.outcomes[item] = itemOutcome{err: err}
}

func (r *phaseRecorder) succeed(item string) {
	r.record(item, nil)
}

func (r *phaseRecorder) fail(item string, err error) {
	if err == nil {
		err = fmt.Errorf("failed")
	}
	r.record(item, err)
}

func (r *phaseRecorder) freeze() PhaseResult {
	r.frozen = true
	res := PhaseResult{
		Name:      r.name,
		Attempted: make([]string, 0, len(r.order)),
		Succeeded: []string{},
		Failed:    []string{},
		Errors:    map[string]string{},
	}
	for _, item := range r.order {
		res.Attempted = append(res.Attempted, item)
		if o := r.outcomes[item]; o.err != nil {
			res.Failed = append(res.Failed, item)
			res.Errors[item] = o.err.Error()
		} else {
			res.Succeeded = append(res.Succeeded, item)
		}
	}
	return res
}
