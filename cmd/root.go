package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "applypilot"
)

type Config struct {
	Search  *SearchConfig  `mapstructure:"search"`
	Apply   *ApplyConfig   `mapstructure:"apply"`
	Memory  *MemoryConfig  `mapstructure:"memory"`
	AI      *AIConfig      `mapstructure:"ai"`
	Browser *BrowserConfig `mapstructure:"browser"`
	Slots   *SlotsConfig   `mapstructure:"slots"`
	Curator *CuratorConfig `mapstructure:"curator"`
}

type SearchConfig struct {
	URL      string `mapstructure:"url"`
	MaxPages int    `mapstructure:"max-pages"`
}

type ApplyConfig struct {
	ResumeFile   string `mapstructure:"resume-file"`
	HaltOnMissed bool   `mapstructure:"halt-on-missed"`
}

type MemoryConfig struct {
	File             string `mapstructure:"file"`
	MissedLog        string `mapstructure:"missed-log"`
	MissedCounts     string `mapstructure:"missed-counts"`
	AppliedLogPrefix string `mapstructure:"applied-log-prefix"`
}

type AIConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxAnswerChars int           `mapstructure:"max-answer-chars"`
	MaxResumeChars int           `mapstructure:"max-resume-chars"`
	Gemini         *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type BrowserConfig struct {
	Bin        string `mapstructure:"bin"`
	Headless   bool   `mapstructure:"headless"`
	ProfileDir string `mapstructure:"profile-dir"`
}

type SlotsConfig struct {
	// Patterns maps slot keys to regular expressions, overriding or
	// extending the built-in detection rules.
	Patterns map[string]string `mapstructure:"patterns"`
}

type CuratorConfig struct {
	NegativeTriggers []string `mapstructure:"negative-triggers"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "applypilot is a cli for applying to job listings with a persistent question/answer memory",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is applypilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	viper.SetDefault("apply.halt-on-missed", true)
	viper.SetDefault("memory.file", "qa_memory.json")
	viper.SetDefault("memory.missed-log", "missed_questions.csv")
	viper.SetDefault("memory.missed-counts", "missed_questions_counts.json")
	viper.SetDefault("memory.applied-log-prefix", "applied_")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// memoryConfig returns the memory paths with defaults applied.
func (c *Config) memoryConfig() *MemoryConfig {
	if c != nil && c.Memory != nil {
		return c.Memory
	}
	return &MemoryConfig{
		File:             viper.GetString("memory.file"),
		MissedLog:        viper.GetString("memory.missed-log"),
		MissedCounts:     viper.GetString("memory.missed-counts"),
		AppliedLogPrefix: viper.GetString("memory.applied-log-prefix"),
	}
}
