package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alimgiray/bountyscope/internal/app"
	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/database"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var application *app.App

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bountyscope-crawl",
		Short:         "Run bounty crawls against GitHub without the server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			logger.Init(config.AppConfig.LogLevel)

			if err := database.Init(config.AppConfig.Database.Path); err != nil {
				return err
			}

			var err error
			application, err = app.New(config.AppConfig, database.DB)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if application != nil {
				application.Close()
			}
			return database.Close()
		},
	}

	cmd.AddCommand(
		crawlCommand(),
		syncIssueCommand(),
		exportCommand(),
	)

	return cmd
}

func crawlCommand() *cobra.Command {
	var (
		query     string
		languages []string
		minAmount int64
		maxPages  int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Search GitHub for bounty issues and store them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := application.Config.Sync
			opts := services.CrawlOptionsFromConfig(cfg)
			if query != "" {
				opts.Query = query
			}
			if cmd.Flags().Changed("min-amount") {
				cents, err := models.DollarsToCents(minAmount)
				if err != nil {
					return err
				}
				opts.MinAmount = cents
			}
			if maxPages > 0 {
				opts.MaxPages = maxPages
			}
			if !cmd.Flags().Changed("language") {
				languages = cfg.Languages
			}

			start := time.Now()
			result := application.Crawler.CrawlLanguages(cmd.Context(), opts, languages)

			if err := application.Publisher.Publish(cmd.Context(), result.Issues); err != nil {
				logger.WithError(err).Warn("Failed to publish crawled issues")
			}

			var total int64
			for _, issue := range result.Issues {
				total += issue.BountyAmount
			}

			cmd.Printf("Crawled %d pages in %s (%s)\n", result.PagesFetched, time.Since(start).Round(time.Millisecond), result.StopReason)
			cmd.Printf("Stored %s issues worth %s\n", humanize.Comma(int64(len(result.Issues))), models.FormatCents(total))
			for _, issue := range result.Issues {
				cmd.Printf("  %-10s %s %s\n", issue.BountyFormatted(), issue.ShortURL(), issue.Title)
			}

			status := application.Limiter.Status()
			if status.ResetAt != nil {
				cmd.Printf("%d requests left, budget resets %s\n", status.Remaining, humanize.Time(*status.ResetAt))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search terms (defaults to SYNC_QUERY)")
	cmd.Flags().StringSliceVarP(&languages, "language", "l", nil, "Languages to crawl, one crawl each")
	cmd.Flags().Int64Var(&minAmount, "min-amount", 0, "Minimum bounty in dollars for new issues")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Maximum result pages per crawl")

	return cmd
}

func syncIssueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-issue ISSUE_ID",
		Short: "Re-fetch a stored issue and its new comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := application.IssueService.SyncIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			issue := result.Issue
			cmd.Printf("%s %s\n", issue.ShortURL(), issue.Title)
			cmd.Printf("Bounty: %s, state: %s, updated %s\n",
				issue.BountyFormatted(), issue.Status, humanize.Time(issue.GithubUpdatedAt))
			cmd.Printf("%d new comments\n", result.NewComments)
			return nil
		},
	}

	return cmd
}

func exportCommand() *cobra.Command {
	var (
		output    string
		language  string
		minAmount int64
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored bounty issues to an .xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.IssueFilter
			if language != "" {
				filter.Language = &language
			}
			if minAmount > 0 {
				cents, err := models.DollarsToCents(minAmount)
				if err != nil {
					return err
				}
				filter.MinAmount = &cents
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()

			count, err := application.ExportService.ExportIssues(f, filter, models.IssueListOptions{SortBy: models.IssueSortBounty})
			if err != nil {
				return err
			}

			cmd.Printf("Exported %s issues to %s\n", humanize.Comma(int64(count)), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "bounties.xlsx", "Output file")
	cmd.Flags().StringVar(&language, "language", "", "Only issues in repositories of this language")
	cmd.Flags().Int64Var(&minAmount, "min-amount", 0, "Minimum bounty in dollars")

	return cmd
}
