package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/ai"
	"github.com/applypilot/applypilot/internal/ai/gemini"
	"github.com/applypilot/applypilot/internal/browser"
	"github.com/applypilot/applypilot/internal/flow"
	"github.com/applypilot/applypilot/internal/joblog"
	"github.com/applypilot/applypilot/internal/logger"
	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/missed"
	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/resolve"
	"github.com/applypilot/applypilot/internal/secrets"
)

const geminiKeyEnv = "GEMINI_API_KEY"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the applypilot main command",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before processing jobs")
	runCmd.Flags().IntP("max-pages", "p", 0, "maximum result pages to walk (0 means unlimited)")

	viper.BindPFlag("search.max-pages", runCmd.Flags().Lookup("max-pages"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the applypilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil || config.Search == nil || config.Search.URL == "" {
		logger.Fatal("a search url is required under search.url")
	}

	memCfg := config.memoryConfig()
	store := memory.Open(&memory.FileBackend{Path: memCfg.File}, logger)

	slots, err := slotTable(config)
	if err != nil {
		logger.Fatal("building slot rules", zap.Error(err))
	}

	assistant, err := buildAssistant(ctx, config, logger)
	if err != nil {
		logger.Fatal("setting up the generative backend", zap.Error(err))
	}

	engine := resolve.New(store, slots, assistant, resolveConfig(config, logger), logger)

	missedLog := missed.NewLogger(memCfg.MissedLog, memCfg.MissedCounts, logger)
	applied := joblog.New(memCfg.AppliedLogPrefix, logger)

	runner := flow.NewRunner(flow.Policy{HaltOnMissed: haltOnMissed(config)}, missedLog, logger)

	session, err := browser.NewSession(ctx, browserConfig(config), logger)
	if err != nil {
		logger.Fatal("starting the browser", zap.Error(err))
	}
	defer session.Close()

	if err := session.OpenSearch(ctx, config.Search.URL); err != nil {
		logger.Fatal("opening the search page", zap.Error(err))
	}

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		prompt := promptui.Prompt{Label: "Start processing jobs", IsConfirm: true}
		if _, err := prompt.Run(); err != nil {
			logger.Info("exiting", zap.String("reason", "not confirmed"))
			return
		}
	}

	processSearch(ctx, session, runner, engine, applied, config, logger)
}

// processSearch walks the result pages and runs the application flow for
// every easy-apply listing.
func processSearch(ctx context.Context, session *browser.Session, runner *flow.Runner, engine *resolve.Engine, applied *joblog.Log, config *Config, logger *zap.Logger) {
	maxPages := viper.GetInt("search.max-pages")

	for pageNum := 1; ; pageNum++ {
		logger.Info("processing results page", zap.Int("page", pageNum))

		listings, err := session.EasyApplyListings(ctx)
		if err != nil {
			logger.Error("listing search results", zap.Error(err))
			return
		}

		for _, listing := range listings {
			processListing(ctx, session, runner, engine, applied, listing, logger)
		}

		if maxPages > 0 && pageNum >= maxPages {
			logger.Info("exiting", zap.String("reason", "page limit reached"))
			return
		}

		more, err := session.NextResultsPage(ctx)
		if err != nil {
			logger.Error("advancing pagination", zap.Error(err))
			return
		}
		if !more {
			logger.Info("exiting", zap.String("reason", "no more result pages"))
			return
		}
	}
}

func processListing(ctx context.Context, session *browser.Session, runner *flow.Runner, engine *resolve.Engine, applied *joblog.Log, listing *browser.Listing, logger *zap.Logger) {
	title, company, description, err := session.OpenListing(ctx, listing)
	if err != nil {
		logger.Warn("opening listing failed", zap.Error(err))
		return
	}
	log := logger.With(zap.String("title", title), zap.String("company", company))

	// Listings demanding a security clearance are not worth the steps.
	if strings.Contains(strings.ToLower(description), "clearance") {
		log.Info("skipping listing", zap.String("reason", "clearance required"))
		applied.Append(title, company, "", "skipped", "clearance required")
		return
	}

	page, err := session.StartApplication(ctx)
	if err != nil {
		log.Warn("starting application failed", zap.Error(err))
		return
	}
	defer page.Close()

	outcome, err := runner.Run(ctx, &applicationPage{ApplyPage: page, engine: engine})

	url, _ := page.URL(ctx)
	switch {
	case err != nil:
		log.Error("application flow failed", zap.Error(err))
		applied.Append(title, company, url, "error", err.Error())
	case outcome.Submitted:
		log.Info("application submitted", zap.Int("steps", outcome.Steps))
		applied.Append(title, company, url, "applied", "")
	case outcome.Halted:
		log.Warn("application halted",
			zap.String("state", string(outcome.Final)),
			zap.Int("missed", outcome.Missed),
		)
		applied.Append(title, company, url, "halted", string(outcome.Final))
	default:
		log.Warn("application abandoned", zap.String("state", string(outcome.Final)))
		applied.Append(title, company, url, "abandoned", string(outcome.Final))
	}
}

// applicationPage wires the resolution engine into the flow runner's view
// of the application tab.
type applicationPage struct {
	*browser.ApplyPage
	engine *resolve.Engine
}

func (p *applicationPage) ResolveQuestions(ctx context.Context) (*resolve.StepResult, error) {
	return p.engine.ResolveStep(ctx, p.ApplyPage)
}

func slotTable(config *Config) (*question.SlotTable, error) {
	if config.Slots == nil || len(config.Slots.Patterns) == 0 {
		return question.DefaultSlotTable(), nil
	}
	return question.NewSlotTable(config.Slots.Patterns)
}

func haltOnMissed(config *Config) bool {
	if config != nil && config.Apply != nil {
		return config.Apply.HaltOnMissed
	}
	return viper.GetBool("apply.halt-on-missed")
}

func browserConfig(config *Config) browser.Config {
	cfg := browser.Config{NavigationTimeout: 30 * time.Second}
	if config.Browser != nil {
		cfg.Bin = config.Browser.Bin
		cfg.Headless = config.Browser.Headless
		cfg.ProfileDir = config.Browser.ProfileDir
	}
	return cfg
}

func resolveConfig(config *Config, logger *zap.Logger) resolve.Config {
	cfg := resolve.Config{}
	if config.AI == nil || !config.AI.Enabled {
		return cfg
	}

	cfg.AIEnabled = true
	cfg.MaxAnswerChars = config.AI.MaxAnswerChars
	cfg.MaxKnowledgeChars = config.AI.MaxResumeChars

	if config.Apply != nil && config.Apply.ResumeFile != "" {
		data, err := os.ReadFile(config.Apply.ResumeFile)
		if err != nil {
			logger.Warn("reading resume file failed, continuing without it", zap.Error(err))
		} else {
			cfg.Knowledge = string(data)
		}
	}
	return cfg
}

// buildAssistant returns nil when the generative backend is disabled.
func buildAssistant(ctx context.Context, config *Config, logger *zap.Logger) (ai.Assistant, error) {
	if config.AI == nil || !config.AI.Enabled {
		return nil, nil
	}

	key, model, _, err := geminiSettings(config)
	if err != nil {
		return nil, err
	}

	generator, err := gemini.NewGenerator(ctx, key, model)
	if err != nil {
		return nil, err
	}
	return gemini.NewAssistant(generator, logger), nil
}

// geminiSettings resolves the API key and model names from config.
func geminiSettings(config *Config) (key, model, embeddingModel string, err error) {
	src := secrets.Source{Name: "gemini api key", Env: geminiKeyEnv}
	if config.AI != nil && config.AI.Gemini != nil {
		src.File = config.AI.Gemini.APIKeyFile
		model = config.AI.Gemini.Model
		embeddingModel = config.AI.Gemini.EmbeddingModel
	}

	key, err = secrets.Load(src)
	if err != nil {
		return "", "", "", errors.New("gemini api key is not configured: set ai.gemini.api-key-file or " + geminiKeyEnv)
	}
	return key, model, embeddingModel, nil
}
