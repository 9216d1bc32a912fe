package graphquery

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/query"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Run a question through basic, local and global search",
	Long: `Run a question through the configured search modes and save every answer
with its context under the queries folder.

The question comes from the arguments, or from query.text in the configuration
(default "What is H2@home used for?"). A failing mode is reported and the
remaining modes still run.`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	f := queryCmd.Flags()
	f.StringSlice("modes", []string{"basic", "local", "global"}, "search modes to run, in order")
	f.Int("community-level", 2, "community hierarchy level for local and global search")
	f.String("response-type", "Multiple Paragraphs", "desired answer length and format")
	f.Bool("dynamic-community-selection", false, "let the model pick relevant communities for global search")
	f.Int("concurrency", 1, "number of modes to run at once")
	f.Int("timeout", 0, "per-mode timeout in seconds (0 disables)")

	// Model flags
	f.String("model", "gpt-4o-mini", "chat model")
	f.String("base-url", "", "OpenAI-compatible API base URL")
	f.Bool("no-cache", false, "bypass the LLM response cache")

	viper.BindPFlag("query.modes", f.Lookup("modes"))
	viper.BindPFlag("query.community_level", f.Lookup("community-level"))
	viper.BindPFlag("query.response_type", f.Lookup("response-type"))
	viper.BindPFlag("query.dynamic_community_selection", f.Lookup("dynamic-community-selection"))
	viper.BindPFlag("query.concurrency", f.Lookup("concurrency"))
	viper.BindPFlag("query.timeout", f.Lookup("timeout"))
	viper.BindPFlag("nlp.model", f.Lookup("model"))
	viper.BindPFlag("nlp.base_url", f.Lookup("base-url"))
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) > 0 {
		cfg.Query.Text = strings.Join(args, " ")
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if strings.TrimSpace(cfg.Query.Text) == "" {
		return fmt.Errorf("a question is required")
	}

	a := newApp(cfg, cmd.ErrOrStderr())
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := a.loadIndex(ctx)
	if err != nil {
		return err
	}
	plan, err := query.PlanFrom(cfg.Query, tables)
	if err != nil {
		return err
	}

	engine, err := a.engine()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	saver, err := a.persister(out)
	if err != nil {
		return err
	}

	runner := query.NewRunner(engine, saver, query.WithConsole(out), query.WithLogger(a.logger))
	outcomes := runner.Run(ctx, plan)

	fmt.Fprintln(out)
	query.Summary(out, outcomes)
	a.logUsage()
	// failed modes were reported above and do not change the exit status
	return nil
}
