package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/systmms/pacert/pkg/rotation"
)

// promptSelector asks the operator which certificate to replace.
type promptSelector struct {
	// run shows the form; replaced in tests.
	run func(ctx context.Context, form *huh.Form) error
}

func newPromptSelector() *promptSelector {
	return &promptSelector{
		run: func(ctx context.Context, form *huh.Form) error {
			return form.RunWithContext(ctx)
		},
	}
}

func (s *promptSelector) Select(ctx context.Context, certs []rotation.CertificateInfo) (string, error) {
	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select the certificate to replace").
			Description(fmt.Sprintf("%d certificates on the firewall", len(certs))).
			Options(certificateOptions(certs)...).
			Value(&choice),
	))

	if err := s.run(ctx, form); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", rotation.ErrSelectionCancelled
		}
		return "", err
	}
	return choice, nil
}

func certificateOptions(certs []rotation.CertificateInfo) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(certs))
	for _, c := range certs {
		label := fmt.Sprintf("%s  (CN: %s, expires: %s)", c.Name, c.CommonName, c.Expiry)
		opts = append(opts, huh.NewOption(label, c.Name))
	}
	return opts
}
