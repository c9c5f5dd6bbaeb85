package subcommands

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"MemHarness/internal/config"
)

const redacted = "********"

// RunConfig writes the resolved configuration as YAML with secrets masked.
func RunConfig(w io.Writer, cfg config.Config) error {
	for _, key := range []*string{&cfg.Network.APIKey, &cfg.Server.APIKey, &cfg.LLM.APIKey} {
		if *key != "" {
			*key = redacted
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintln(w, "# MemHarness configuration")
	_, err = w.Write(data)
	return err
}
