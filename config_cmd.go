package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# voice profile whose output channels route playback
profile: ""
# click on the waveform to seek
mouse: false
# reload local files when they change on disk
watch: false
# wrap around at the ends of the queue
wrap: false

# TTS server the channel assignments and audio are fetched from
server:
  url: "http://127.0.0.1:17493"
  timeout: "10s"
  # requests per second (0 disables limiting)
  rate_limit: 10
  rate_burst: 5

playback:
  # use the native multi-device sink when a profile has routed channels
  native: true
  device_name: "System Default"
  sample_rate: 44100
  # start playing as soon as audio is ready
  auto_play: true
  # initial volume (0.0 to 1.0); saved preferences take precedence
  volume: 1.0
  loop: false

waveform:
  bars: 64
  tick_rate: "100ms"

# audio fetched from the server is cached in memory and on disk
cache:
  enabled: true
  memory_bytes: 67108864
  disk_bytes: 536870912
  # dir: "/path/to/cache"
  ttl: "168h"
`

var printConfigPath bool

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the voxplay config file",
	Long:    paragraph(fmt.Sprintf("\n%s the voxplay config file with $EDITOR. A commented default file is written first if none exists.", keyword("Edit"))),
	Example: paragraph("voxplay config\nvoxplay config --path\nvoxplay config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if printConfigPath {
			fmt.Fprintln(cmd.OutOrStdout(), configFile)
			return nil
		}

		c, err := editor.Cmd("voxplay", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run editor: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfigPath, "path", false, "print the config file path and exit")
}

// ensureConfigFile resolves configFile and writes the default config there
// when it does not exist yet.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if configFile == "" {
		return errors.New("no config file location")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return writeDefaultConfig(configFile)
}

func writeDefaultConfig(name string) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	if err := os.WriteFile(name, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
