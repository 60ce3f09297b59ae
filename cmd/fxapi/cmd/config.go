package cmd

import (
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"go.pilab.hu/fxapi/config"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var secretKeys = map[string]bool{
	"JWT_SECRET":            true,
	"GOOGLE_CLIENT_SECRET":  true,
	"EXCHANGE_RATE_API_KEY": true,
	"REDIS_PASSWORD":        true,
	"MONGO_URI":             true,
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(configView(cfg))
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
}

// configView maps every setting to its config key. The result is a valid
// config.yaml.
func configView(c *config.ServerConfig) map[string]any {
	view := make(map[string]any)
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		value := v.Field(i).Interface()
		switch val := value.(type) {
		case time.Duration:
			value = val.String()
		case string:
			if secretKeys[key] && val != "" {
				value = redacted
			}
		}
		view[key] = value
	}
	return view
}
