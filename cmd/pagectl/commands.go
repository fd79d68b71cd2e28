package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/client"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/platform/config"
	"github.com/pathgen/page/internal/platform/database"
	"github.com/pathgen/page/internal/status"
)

const defaultDir = "curriculum"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagectl",
		Short:         "Administer the learning portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSeedCmd(),
		newGraphCmd(),
		newBoardCmd(),
	)
	return root
}

func newSeedCmd() *cobra.Command {
	var dir string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load curriculum YAML into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := curriculum.NewLoader(dir)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if dryRun {
				res, err := loader.Seed(ctx, curriculum.NewMemoryStore(), assessment.NewMemoryStore())
				if err != nil {
					return err
				}
				printSeed(out, "would seed", res)
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return errors.New("seeding needs PAGE_STORE=postgres; use --dry-run to check the files")
			}
			res, err := seedPostgres(ctx, cfg, loader)
			if err != nil {
				return err
			}
			printSeed(out, "seeded", res)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", defaultDir, "Curriculum directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and count without writing to the database")
	return cmd
}

func seedPostgres(ctx context.Context, cfg *config.Config, loader *curriculum.Loader) (curriculum.SeedResult, error) {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return curriculum.SeedResult{}, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return curriculum.SeedResult{}, fmt.Errorf("migrate database: %w", err)
	}
	topics, err := curriculum.NewPostgresStore(db.Pool)
	if err != nil {
		return curriculum.SeedResult{}, err
	}
	tests, err := assessment.NewPostgresStore(db.Pool)
	if err != nil {
		return curriculum.SeedResult{}, err
	}
	return loader.Seed(ctx, topics, tests)
}

func printSeed(w io.Writer, verb string, res curriculum.SeedResult) {
	fmt.Fprintf(w, "%s %d topics, %d contents, %d assessments, %d practice banks\n",
		verb, res.Topics, res.Contents, res.Assessments, res.PracticeBanks)
}

func newGraphCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the prerequisite graph of a curriculum directory",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", defaultDir, "Curriculum directory")

	load := func() (*curriculum.Graph, error) {
		loader, err := curriculum.NewLoader(dir)
		if err != nil {
			return nil, err
		}
		return loader.Graph(), nil
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Fail if the graph has a cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := load()
			if err != nil {
				return err
			}
			if err := g.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d topics, no cycles\n", len(g.Nodes()))
			return nil
		},
	}

	levels := &cobra.Command{
		Use:   "levels",
		Short: "Print each topic's depth in topological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := load()
			if err != nil {
				return err
			}
			order, err := g.TopoOrder()
			if err != nil {
				return err
			}
			lv, err := g.Levels()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LEVEL\tTOPIC\tPREREQUISITES")
			for _, id := range order {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", lv[id], id, strings.Join(g.Predecessors(id), ","))
			}
			return tw.Flush()
		},
	}

	var mastered []string
	var limit int
	recommend := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest the next topics for a set of mastered topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := load()
			if err != nil {
				return err
			}
			next, err := g.RecommendNext(mastered, limit)
			if err != nil {
				return err
			}
			for _, id := range next {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	recommend.Flags().StringSliceVar(&mastered, "mastered", nil, "Mastered topic IDs")
	recommend.Flags().IntVar(&limit, "limit", 5, "Maximum suggestions (0 for all)")

	cmd.AddCommand(validate, levels, recommend)
	return cmd
}

func newBoardCmd() *cobra.Command {
	var server string
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "board STUDENT_ID",
		Short: "Print a student's topic statuses as the portal shows them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(server)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			v, err := c.LoadView(ctx, args[0])
			if err != nil {
				return err
			}
			if !watch {
				return printBoard(out, status.BuildBoard(v, c.Clock().Now()))
			}
			err = c.Watch(ctx, v, interval, func(b status.Board) {
				if err := printBoard(out, b); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "print board: %v\n", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:5000", "Portal API base URL")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reprint whenever a status changes")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultInterval, "Re-derive interval with --watch")
	return cmd
}

func printBoard(w io.Writer, b status.Board) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "# %s\n", b.Now.UTC().Format(time.RFC3339))
	fmt.Fprintln(tw, "STATUS\tTOPIC\tNAME\tMISSING")
	for _, e := range b.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Status, e.TopicID, e.Name, strings.Join(e.MissingPrereqs, ","))
	}
	keys := make([]string, 0, len(b.Counts))
	for s := range b.Counts {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, b.Counts[status.Status(k)]))
	}
	fmt.Fprintf(tw, "# %s\n", strings.Join(parts, " "))
	return tw.Flush()
}
