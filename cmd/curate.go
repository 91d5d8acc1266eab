package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/ai/gemini"
	"github.com/applypilot/applypilot/internal/curator"
	"github.com/applypilot/applypilot/internal/logger"
	"github.com/applypilot/applypilot/internal/memory"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deduplicate the answer memory by clustering equivalent questions",
	Long: "Clusters semantically equivalent questions within each answer category, " +
		"asks which answer to keep when a cluster disagrees, and writes the result " +
		"to a new *_cleaned.json file for review.",
	Run: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove questions already covered by a consistent slot value",
	Run: func(_ *cobra.Command, _ []string) {
		prune()
	},
}

var suggestSlotsCmd = &cobra.Command{
	Use:   "suggest-slots",
	Short: "Report the most frequent question topics as slot candidates",
	Run: func(_ *cobra.Command, _ []string) {
		suggestSlots()
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(suggestSlotsCmd)
}

func cleanup() {
	logger, config, doc := curatorSetup()

	embedder, err := buildEmbedder(context.Background(), config)
	if err != nil {
		logger.Fatal("setting up the embedding backend", zap.Error(err))
	}

	opts := curator.CleanupOptions{}
	if config.Curator != nil {
		opts.NegativeTriggers = config.Curator.NegativeTriggers
	}

	out, stats, err := curator.Cleanup(context.Background(), doc, embedder, &promptDecider{}, opts, logger)
	if err != nil {
		logger.Fatal("cleanup failed", zap.Error(err))
	}

	path := outputPath(config.memoryConfig().File, "_cleaned")
	writeDocument(logger, out, path)

	logger.Info("cleanup written",
		zap.String("file", path),
		zap.Int("groups", stats.Groups),
		zap.Int("merged", stats.Merged),
		zap.Int("conflicts", stats.Conflicts),
	)
	fmt.Printf("Review %s, then replace %s with it.\n", path, config.memoryConfig().File)
}

func prune() {
	logger, config, doc := curatorSetup()

	slots, err := slotTable(config)
	if err != nil {
		logger.Fatal("building slot rules", zap.Error(err))
	}

	out, stats := curator.Prune(doc, slots, logger)

	path := outputPath(config.memoryConfig().File, "_pruned")
	writeDocument(logger, out, path)

	logger.Info("prune written",
		zap.String("file", path),
		zap.Int("removed", stats.Removed),
		zap.Int("kept", stats.Kept),
		zap.Int("conflicts", stats.Conflicts),
	)
	fmt.Printf("Review %s, then replace %s with it.\n", path, config.memoryConfig().File)
}

func suggestSlots() {
	logger, config, doc := curatorSetup()

	embedder, err := buildEmbedder(context.Background(), config)
	if err != nil {
		logger.Fatal("setting up the embedding backend", zap.Error(err))
	}

	topics, err := curator.SuggestTopics(context.Background(), doc, embedder, 0, 0)
	if err != nil {
		logger.Fatal("clustering questions", zap.Error(err))
	}
	if len(topics) == 0 {
		fmt.Println("No recurring topics found; not enough questions in memory yet.")
		return
	}

	const top = 15
	fmt.Println("Most frequent question topics (slot candidates):")
	for i, topic := range topics {
		if i >= top {
			break
		}
		fmt.Printf("  %2d. count %-4d %q\n", i+1, topic.Count, topic.Representative)
	}
}

// curatorSetup loads the logger, config and memory document shared by the
// maintenance commands.
func curatorSetup() (*zap.Logger, *Config, *memory.Document) {
	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	path := config.memoryConfig().File
	data, err := os.ReadFile(path)
	if err != nil {
		zlog.Fatal("reading memory file", zap.String("file", path), zap.Error(err))
	}
	doc, err := memory.ParseDocument(data)
	if err != nil {
		zlog.Fatal("parsing memory file", zap.String("file", path), zap.Error(err))
	}

	return zlog, config, doc
}

func buildEmbedder(ctx context.Context, config *Config) (*gemini.Embedder, error) {
	if config.AI == nil || !config.AI.Enabled {
		return nil, fmt.Errorf("the curator needs ai.enabled with a gemini key")
	}
	key, _, embeddingModel, err := geminiSettings(config)
	if err != nil {
		return nil, err
	}
	return gemini.NewEmbedder(ctx, key, embeddingModel)
}

func writeDocument(logger *zap.Logger, doc *memory.Document, path string) {
	data, err := doc.Marshal()
	if err != nil {
		logger.Fatal("encoding memory document", zap.Error(err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Fatal("writing memory document", zap.String("file", path), zap.Error(err))
	}
}

func outputPath(path, suffix string) string {
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + suffix + ".json"
	}
	return path + suffix
}

// promptDecider resolves answer conflicts interactively.
type promptDecider struct{}

func (promptDecider) Resolve(c curator.Conflict) (memory.Answer, error) {
	fmt.Printf("\nConflicting answers for equivalent questions:\n")
	for _, q := range c.Questions {
		fmt.Printf("  - %s\n", q)
	}

	items := make([]string, 0, len(c.Answers)+1)
	for _, ans := range c.Answers {
		items = append(items, ans.Primary())
	}
	items = append(items, "Enter a new answer")

	sel := promptui.Select{
		Label: fmt.Sprintf("Best answer for %q", c.Representative),
		Items: items,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return memory.Answer{}, err
	}

	if idx < len(c.Answers) {
		return c.Answers[idx], nil
	}

	prompt := promptui.Prompt{Label: "New answer"}
	value, err := prompt.Run()
	if err != nil {
		return memory.Answer{}, err
	}
	return memory.String(strings.TrimSpace(value)), nil
}
