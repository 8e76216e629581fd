package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatdesk/cmd/chatdesk/cmds"
	"github.com/go-go-golems/chatdesk/pkg/helpers"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatdesk",
	Short: "chatdesk manages chats with an assistant backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return initLogger()
	},
}

func initLogger() error {
	return helpers.InitLogger(&helpers.LogConfig{
		Level:      viper.GetString("log-level"),
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("chatdesk")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.chatdesk")
		viper.AddConfigPath("/etc/chatdesk")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/chatdesk")
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	// picks up the config file and environment before flags are parsed
	if err := initLogger(); err != nil {
		return err
	}

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal, disabled)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("with-caller", false, "Log caller")

	pf.String(settings.KeySettingsFile, "", "YAML settings file")
	pf.String(settings.KeyBackend, string(settings.BackendDemo), "Assistant backend (demo, echo, openai, ollama)")
	pf.String(settings.KeyModel, "", "Model name, defaults per backend")
	pf.String(settings.KeyAPIKey, "", "API key for the openai backend")
	pf.String(settings.KeyBaseURL, "", "Base URL of an OpenAI-compatible API")
	pf.Bool(settings.KeyAllowInsecure, false, "Accept http and local network base URLs")
	pf.String(settings.KeySystemPrompt, "", "System prompt sent before the chat history")
	pf.Int(settings.KeyMaxTokens, 0, "Maximum reply tokens, 0 for the backend default")
	pf.Duration(settings.KeyDemoDelay, settings.DefaultDemoDelay, "Reply delay of the demo backend")
	pf.Duration(settings.KeyReplyTimeout, settings.DefaultReplyTimeout, "Timeout of a single reply, 0 to disable")
	pf.Int(settings.KeyHistoryMaxTokens, 0, "Token budget of the history sent to the backend, 0 for no limit")
	pf.Int(settings.KeyHistoryMaxMessages, 0, "Maximum number of history messages sent to the backend, 0 for no limit")
	pf.String(settings.KeyUserName, "", "Initial display name")

	// the config path has to be known before cobra parses flags
	configPath := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		} else if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		}
	}
	pf.String("config", "", "Path to the viper config file")

	err := initCommands(rootCmd, configPath)
	cobra.CheckErr(err)

	rootCmd.AddCommand(cmds.NewChatCommand())
	rootCmd.AddCommand(cmds.NewEventsCommand())
	rootCmd.AddCommand(cmds.NewVersionCommand(version))
}
