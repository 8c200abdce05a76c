package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/systmms/pacert/internal/config"
	"github.com/systmms/pacert/internal/credentials"
	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/secure"
)

const apiKeyInstructions = `To obtain your PAN-OS API key, use one of these methods:

METHOD 1: Using curl
--------------------
curl -k -X GET 'https://<FIREWALL>/api/?type=keygen&user=<USERNAME>&password=<PASSWORD>'

METHOD 2: Using web browser
---------------------------
https://<FIREWALL>/api/?type=keygen&user=<USERNAME>&password=<PASSWORD>

The response will contain your API key in XML format:
    <response status="success">
      <result>
        <key>LUFRPT14MW5xOEo1R09KVlBZNnpnemh0VHRBOWl6TGM9...</key>
      </result>
    </response>

Store the key in your OS keyring so it never appears on the command line:

    pacert api-key store --firewall <FIREWALL>

then pass --api-key keyring:<FIREWALL>, or set firewall.api_key in pacert.yaml.
Environment variables (env:NAME), files (file:/path) and cloud secret managers
(aws-sm:, aws-ssm:, gcp-sm:, azure-kv:) work as well.

IMPORTANT: Store your API key securely and never commit it to version control!`

// NewAPIKeyCommand creates the api-key command group
func NewAPIKeyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Obtain and store PAN-OS API keys",
	}
	cmd.AddCommand(newAPIKeyInstructionsCommand(), newAPIKeyStoreCommand(cfg))
	return cmd
}

func newAPIKeyInstructionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "instructions",
		Short: "Explain how to generate an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rule := strings.Repeat("=", 80)
			_, err := fmt.Fprintf(out, "\n%s\nHOW TO GET YOUR API KEY\n%s\n\n%s\n%s\n\n", rule, rule, apiKeyInstructions, rule)
			return err
		},
	}
}

func newAPIKeyStoreCommand(cfg *config.Config) *cobra.Command {
	var (
		host    string
		account string
		from    string
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Save an API key in the OS keyring",
		Long: `Save an API key in the OS keyring under the "pacert" service.

The key is prompted for without echo. In non-interactive mode it is read
from the first line of standard input, or copied from --from.`,
		Example: `  pacert api-key store --firewall fw01.example.com
  echo "$KEY" | pacert api-key store --firewall fw01 --non-interactive
  pacert api-key store --firewall fw01 --from env:PAN_API_KEY`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				account = host
			}
			if account == "" {
				return pacerterrors.UserError{
					Message:    "--firewall or --account is required",
					Suggestion: "The keyring entry is named after the firewall",
				}
			}

			ctx := cmd.Context()
			resolver := credentials.NewResolver(credentials.Clients{}, cfg.Logger)

			var (
				key *secure.SecureBuffer
				err error
			)
			switch {
			case from != "":
				key, err = resolver.Resolve(ctx, from)
			case cfg.NonInteractive:
				key, err = readKeyLine(cmd.InOrStdin())
			default:
				key, err = promptKey(ctx, account)
			}
			if err != nil {
				return err
			}
			defer key.Destroy()

			ref, err := resolver.StoreAPIKey(account, key)
			if err != nil {
				return err
			}
			cfg.Logger.Info("API key stored in the OS keyring")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Use it with: --api-key %s\n", ref)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "firewall", "", "Firewall the key belongs to")
	cmd.Flags().StringVar(&account, "account", "", "Keyring account name (defaults to the firewall)")
	cmd.Flags().StringVar(&from, "from", "", "Copy the key from another credential reference")
	return cmd
}

func readKeyLine(r io.Reader) (*secure.SecureBuffer, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read API key from stdin: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, pacerterrors.UserError{
			Message:    "no API key on standard input",
			Suggestion: "Pipe the key in, or use --from env:NAME",
		}
	}
	return secure.FromString(line)
}

func promptKey(ctx context.Context, account string) (*secure.SecureBuffer, error) {
	var value string
	input := huh.NewInput().
		Title(fmt.Sprintf("API key for %s", account)).
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("the key cannot be empty")
			}
			return nil
		}).
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, context.Canceled
		}
		return nil, err
	}
	return secure.FromString(strings.TrimSpace(value))
}
