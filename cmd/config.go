package main

import (
	"io"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tramites-sync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long:  "Prints the configuration after defaults, config.yaml and TRAMITES_* environment variables are merged. Credentials are masked.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return writeConfig(os.Stdout, cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func writeConfig(out io.Writer, c *config.Config) error {
	masked := *c
	masked.Store.DatabaseURL = maskURL(c.Store.DatabaseURL)
	masked.Monitoring.WebhookURL = maskURL(c.Monitoring.WebhookURL)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return eris.Wrap(err, "config show: encode")
	}
	return eris.Wrap(enc.Close(), "config show: flush")
}

// maskURL hides the password of a URL and any query string, which for
// webhooks usually carries a token.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
