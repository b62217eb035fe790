package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"prodsum/internal/config"
)

type globalFlags struct {
	configPath      string
	urlConfig       string
	transformConfig string
	json            bool
	quiet           bool
}

type commandContext struct {
	flags *globalFlags

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.LoadWithOverlays(strings.TrimSpace(c.flags.configPath), config.Overlays{
			URLConfigPath:       strings.TrimSpace(c.flags.urlConfig),
			TransformConfigPath: strings.TrimSpace(c.flags.transformConfig),
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.flags != nil && c.flags.json
}

func (c *commandContext) quiet() bool {
	return c.flags != nil && c.flags.quiet
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
