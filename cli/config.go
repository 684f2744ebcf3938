package cli

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/santif/pgbridge/config"
	"github.com/santif/pgbridge/data"
)

func newConfigCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Display the configuration after merging the file, environment and flags.
The password in the DSN is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := renderConfig(a.cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml, json, toml)")
	return cmd
}

func renderConfig(cfg *config.Config, format string) ([]byte, error) {
	shown := *cfg
	shown.DSN = data.RedactDSN(cfg.Driver, cfg.ResolveDSN())

	var (
		out []byte
		err error
	)
	switch format {
	case "yaml", "yml":
		out, err = yaml.Marshal(&shown)
	case "json":
		out, err = json.MarshalIndent(&shown, "", "  ")
		out = append(out, '\n')
	case "toml":
		out, err = toml.Marshal(&shown)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}
