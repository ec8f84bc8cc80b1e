// ABOUTME: Root command, global flags and shared setup for every subcommand
// ABOUTME: Loads .env, configures logging and validates output flags
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/config"
	"github.com/harper/twin/internal/logging"
)

// Output formats accepted by --format
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

var (
	verbose bool
	quiet   bool
	format  string
)

const banner = `
████████╗██╗    ██╗██╗███╗   ██╗
╚══██╔══╝██║    ██║██║████╗  ██║
   ██║   ██║ █╗ ██║██║██╔██╗ ██║
   ██║   ██║███╗██║██║██║╚██╗██║
   ██║   ╚███╔███╔╝██║██║ ╚████║
   ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Digital twin that routes each message to the right specialist",
		Long: banner + `

twin classifies every message into one of five domains (professional,
communication, knowledge, decision, general), answers it with the matching
specialist and keeps the conversation history.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().StringVar(&format, "format", FormatAuto, "Output format: auto, text or json")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewRouteCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	switch format {
	case FormatAuto, FormatText, FormatJSON:
	default:
		return fmt.Errorf("--format must be auto, text or json, got %q", format)
	}

	// Load .env file if it exists (for API keys)
	_ = godotenv.Load()

	level := "warn"
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	logging.SetupWriter(cmd.ErrOrStderr(), level, true)
	return nil
}

// loadConfig reads configuration after setup has loaded .env
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return format == FormatJSON
}
