package cmd

import (
	"errors"
	"fmt"
	"os"

	"feedpush/internal/config"
	"feedpush/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	appCfg  config.Config
)

// rootCmd is the base command called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "feedpush",
	Short:         "Topic-aware news and board digest pushed to a chat",
	Long:          "feedpush polls news feeds and link-aggregator boards, picks a short deduplicated digest and delivers it to a Telegram chat.",
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

// envBindings maps config keys to the environment variables holding secrets.
var envBindings = map[string]string{
	"telegram.bot_token":       "TG_BOT_TOKEN",
	"telegram.chat_id":         "TG_CHAT_ID",
	"sources.guardian.api_key": "GUARDIAN_API_KEY",
	"openai.api_key":           "OPENAI_API_KEY",
	"store.postgres_dsn":       "FEEDPUSH_POSTGRES_DSN",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
}

func initConfig() {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/feedpush")
		v.AddConfigPath("configs")
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&appCfg); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing config: %v\n", err)
		os.Exit(1)
	}

	appCfg.FillDefaults()
	if err := appCfg.LoadTopics(); err != nil {
		fmt.Fprintf(os.Stderr, "error loading topics: %v\n", err)
		os.Exit(1)
	}
	logger.SetupDefault(os.Stderr, appCfg.App.LogLevel, appCfg.App.LogFormat)
}

// GetConfig exposes the loaded configuration to subcommands.
func GetConfig() config.Config {
	return appCfg
}
