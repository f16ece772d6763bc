package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/agent/compliance"
	"github.com/reels-agent/internal/agent/discovery"
	"github.com/reels-agent/internal/agent/monitoring"
	"github.com/reels-agent/internal/agent/publishing"
	"github.com/reels-agent/internal/agent/scheduling"
	"github.com/reels-agent/internal/agent/scoring"
	"github.com/reels-agent/internal/config"
	"github.com/reels-agent/internal/meta"
	"github.com/reels-agent/internal/models"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/internal/storage/sqlite"
	"github.com/reels-agent/pkg/logger"
	"github.com/reels-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reels-agent",
		Short: "Instagram reels republishing pipeline",
		Long: `An autonomous pipeline that discovers reels from official sources,
scores and compliance-checks them, and schedules and publishes the best
candidates to managed accounts.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reelsCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(oauthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// buildAgent constructs a single agent by name, wiring the Graph API
// client only for the agents that talk to the platform.
func buildAgent(name string) (agent.Agent, *agent.Runner, error) {
	limiter := ratelimit.NewDefaultLimiter()
	platform := meta.NewClient(meta.Config{
		BaseURL:    cfg.Meta.BaseURL,
		APIVersion: cfg.Meta.APIVersion,
	}, limiter, log)

	runner := agent.NewRunner(repo, cfg.Agents.MaxRetries, cfg.Agents.BaseBackoff(), log)

	publishingAgent := publishing.NewAgent(repo, platform, publishing.Config{
		RateLimitPerHour: cfg.Publishing.RateLimitPerHour,
		MaxRetries:       cfg.Publishing.MaxRetries,
		BaseBackoff:      cfg.Agents.BaseBackoff(),
		ProcessingDelay:  cfg.Publishing.ProcessingDelay(),
	}, log)
	schedulingAgent := scheduling.NewAgent(repo, log)

	switch name {
	case "discovery":
		return discovery.NewAgent(repo, platform, log), runner, nil
	case "scoring":
		return scoring.NewAgent(repo, log), runner, nil
	case "compliance":
		return compliance.NewAgent(repo, log), runner, nil
	case "scheduling":
		return schedulingAgent, runner, nil
	case "publishing":
		return publishingAgent, runner, nil
	case "monitoring":
		return monitoring.NewAgent(repo, runner, publishingAgent, schedulingAgent, log), runner, nil
	default:
		return nil, nil, fmt.Errorf("unknown agent %q (expected discovery, scoring, compliance, scheduling, publishing or monitoring)", name)
	}
}

// ============ RUN COMMAND ============

func runCmd() *cobra.Command {
	var accountID uint
	var scheduleID uint
	var date string

	cmd := &cobra.Command{
		Use:   "run [agent]",
		Short: "Run a single agent once for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, runner, err := buildAgent(args[0])
			if err != nil {
				return err
			}

			in := agent.Input{AccountID: accountID, ScheduleID: scheduleID}
			if date != "" {
				t, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date, use: YYYY-MM-DD")
				}
				in.TargetDate = &t
			}

			outcome := runner.Run(ctx, a, in)
			if outcome.Err != nil {
				return outcome.Err
			}

			fmt.Printf("\n=== %s ===\n", args[0])
			fmt.Println(outcome.Result.Message())
			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Account ID to run for (required)")
	cmd.Flags().UintVar(&scheduleID, "schedule", 0, "Schedule ID (publishing only)")
	cmd.Flags().StringVar(&date, "date", "", "Target date (scheduling only, YYYY-MM-DD)")
	cmd.MarkFlagRequired("account")

	return cmd
}

// ============ REELS COMMANDS ============

func reelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reels",
		Short: "List and manage discovered reels",
	}

	cmd.AddCommand(reelsListCmd())
	return cmd
}

func reelsListCmd() *cobra.Command {
	var accountID uint
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered reels",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.DefaultReelFilter()
			filter.Limit = limit

			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if status != "" {
				s := models.ReelStatus(status)
				filter.Status = &s
			}

			reels, err := repo.ListReels(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Reels (%d) ===\n\n", len(reels))
			for _, r := range reels {
				fmt.Printf("[%d] score %d | %s\n", r.ID, r.ViralScore, r.Status)
				if r.Source != nil {
					fmt.Printf("    Source: %s (@%s)\n", r.Source.Name, r.Source.InstagramHandle)
				}
				fmt.Printf("    Views: %d | Likes: %d | Comments: %d | Shares: %d\n",
					r.Views, r.Likes, r.Comments, r.Shares)
				fmt.Printf("    Posted: %s\n", r.PostedAt.Format(time.RFC1123))
				if r.Caption != "" {
					fmt.Printf("    Caption: %s\n", truncateStr(r.Caption, 100))
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Filter by account ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (discovered, approved, rejected, scheduled, published, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum reels to show")

	return cmd
}

// ============ SCHEDULES COMMANDS ============

func schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List and manage publish schedules",
	}

	cmd.AddCommand(schedulesListCmd())
	cmd.AddCommand(schedulesQueueCmd())
	return cmd
}

func schedulesListCmd() *cobra.Command {
	var accountID uint
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.ScheduleFilter{
				Limit:       limit,
				PreloadReel: true,
				OrderByTime: true,
			}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if status != "" {
				s := models.ScheduleStatus(status)
				filter.Status = &s
			}

			schedules, err := repo.ListSchedules(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Schedules (%d) ===\n\n", len(schedules))
			for _, s := range schedules {
				printSchedule(s)
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Filter by account ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum schedules to show")

	return cmd
}

func schedulesQueueCmd() *cobra.Command {
	var accountID uint

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the next 24 hours of pending publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			now := time.Now()
			until := now.Add(24 * time.Hour)
			st := models.ScheduleStatusScheduled

			filter := storage.ScheduleFilter{
				Status:      &st,
				To:          &until,
				PreloadReel: true,
				OrderByTime: true,
			}
			if accountID > 0 {
				filter.AccountID = &accountID
			}

			schedules, err := repo.ListSchedules(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Publish Queue (%d) ===\n\n", len(schedules))
			if len(schedules) == 0 {
				fmt.Println("Nothing scheduled in the next 24 hours")
				return nil
			}

			for _, s := range schedules {
				printSchedule(s)
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Filter by account ID")

	return cmd
}

func printSchedule(s *models.Schedule) {
	fmt.Printf("[%d] %s | %s\n", s.ID, s.Status, s.ScheduledFor.Format(time.RFC1123))
	if s.Reel != nil {
		fmt.Printf("    Reel: #%d (score %d)\n", s.Reel.ID, s.Reel.ViralScore)
		if s.Reel.Caption != "" {
			fmt.Printf("    Caption: %s\n", truncateStr(s.Reel.Caption, 100))
		}
	}
	if s.PublishedAt != nil {
		fmt.Printf("    Published: %s\n", s.PublishedAt.Format(time.RFC1123))
	}
	fmt.Println()
}

// ============ ACCOUNTS COMMANDS ============

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage publishing accounts",
	}

	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsListCmd())
	return cmd
}

func accountsAddCmd() *cobra.Command {
	var metaAccountID string
	var username string
	var token string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a managed account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			account := &models.Account{
				MetaAccountID: metaAccountID,
				Username:      username,
				AccessToken:   token,
				Status:        models.AccountStatusActive,
			}
			if err := repo.CreateAccount(ctx, account); err != nil {
				return err
			}

			fmt.Printf("Account %d (@%s) created\n", account.ID, account.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&metaAccountID, "meta-id", "", "Instagram business account ID (required)")
	cmd.Flags().StringVar(&username, "username", "", "Account username (required)")
	cmd.Flags().StringVar(&token, "token", "", "Long-lived access token")
	cmd.MarkFlagRequired("meta-id")
	cmd.MarkFlagRequired("username")

	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			accounts, err := repo.ListActiveAccounts(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Accounts (%d) ===\n\n", len(accounts))
			for _, a := range accounts {
				fmt.Printf("[%d] @%s | %s | meta id %s\n", a.ID, a.Username, a.Status, a.MetaAccountID)
				if a.TokenExpiresAt != nil {
					fmt.Printf("    Token expires: %s\n", a.TokenExpiresAt.Format(time.RFC1123))
				}
				fmt.Println()
			}

			return nil
		},
	}
}

// ============ SOURCES COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage official content sources",
	}

	cmd.AddCommand(sourcesAddCmd())
	cmd.AddCommand(sourcesListCmd())
	return cmd
}

func sourcesAddCmd() *cobra.Command {
	var name string
	var officialID string
	var handle string
	var followers int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an official source to discover reels from",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			source := &models.Source{
				Name:            name,
				OfficialID:      officialID,
				InstagramHandle: handle,
				FollowerCount:   followers,
				IsActive:        true,
			}
			if err := repo.SaveSource(ctx, source); err != nil {
				return err
			}

			fmt.Printf("Source %d (%s) saved\n", source.ID, source.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&officialID, "official-id", "", "Instagram account ID of the source (required)")
	cmd.Flags().StringVar(&handle, "handle", "", "Instagram handle for crediting")
	cmd.Flags().IntVar(&followers, "followers", 0, "Follower count used in scoring")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("official-id")

	return cmd
}

func sourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			sources, err := repo.ListActiveSources(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Sources (%d) ===\n\n", len(sources))
			for _, s := range sources {
				fmt.Printf("[%d] %s (@%s) | %d followers\n", s.ID, s.Name, s.InstagramHandle, s.FollowerCount)
			}
			fmt.Println()

			return nil
		},
	}
}

// ============ SETTINGS COMMANDS ============

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Per-account pipeline settings",
	}

	cmd.AddCommand(settingsShowCmd())
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsShowCmd() *cobra.Command {
	var accountID uint

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective settings for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			stored, err := repo.GetSettings(ctx, accountID)
			if err != nil {
				return err
			}
			s := models.SettingsOrDefault(stored, accountID)

			fmt.Printf("\n=== Settings (account %d) ===\n\n", accountID)
			fmt.Printf("Posting slots:       %s\n", strings.Join(s.PostingSchedule, ", "))
			fmt.Printf("Daily reel count:    %d\n", s.DailyReelCount)
			fmt.Printf("Min gap (minutes):   %d\n", s.MinReelGapMinutes)
			fmt.Printf("Score threshold:     %d\n", s.ViralScoreThreshold)
			if s.CaptionTemplate != "" {
				fmt.Printf("Caption template:    %s\n", s.CaptionTemplate)
			}
			if stored == nil {
				fmt.Println("\n(defaults - nothing stored for this account)")
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Account ID (required)")
	cmd.MarkFlagRequired("account")

	return cmd
}

func settingsSetCmd() *cobra.Command {
	var accountID uint
	var slots string
	var daily int
	var gap int
	var threshold int
	var template string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update settings for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			stored, err := repo.GetSettings(ctx, accountID)
			if err != nil {
				return err
			}
			s := models.SettingsOrDefault(stored, accountID)

			if slots != "" {
				s.PostingSchedule = models.StringSlice(strings.Split(slots, ","))
			}
			if daily > 0 {
				s.DailyReelCount = daily
			}
			if gap > 0 {
				s.MinReelGapMinutes = gap
			}
			if threshold > 0 {
				s.ViralScoreThreshold = threshold
			}
			if template != "" {
				s.CaptionTemplate = template
			}

			if err := repo.SaveSettings(ctx, s); err != nil {
				return err
			}

			fmt.Printf("Settings saved for account %d\n", accountID)
			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Account ID (required)")
	cmd.Flags().StringVar(&slots, "slots", "", "Comma-separated posting slots (HH:MM,HH:MM,...)")
	cmd.Flags().IntVar(&daily, "daily", 0, "Reels to publish per day")
	cmd.Flags().IntVar(&gap, "gap", 0, "Minimum minutes between posts")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Viral score approval threshold")
	cmd.Flags().StringVar(&template, "template", "", "Caption template ({source_name} is replaced)")
	cmd.MarkFlagRequired("account")

	return cmd
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Meta OAuth management",
	}

	cmd.AddCommand(oauthURLCmd())
	cmd.AddCommand(oauthExchangeCmd())
	return cmd
}

func oauthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the authorization URL to connect an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := meta.NewOAuthManager(cfg.Meta, log)

			state, err := meta.GenerateState()
			if err != nil {
				return fmt.Errorf("failed to generate state: %w", err)
			}

			fmt.Println("Open this URL in your browser to authorize the app:")
			fmt.Println(manager.AuthURL(state))
			fmt.Printf("\nState (verify it on the callback): %s\n", state)
			return nil
		},
	}
}

func oauthExchangeCmd() *cobra.Command {
	var code string
	var accountID uint

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code and store the token on an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			manager := meta.NewOAuthManager(cfg.Meta, log)
			token, err := manager.Exchange(ctx, code)
			if err != nil {
				return err
			}

			if accountID > 0 {
				account, err := repo.GetAccountByID(ctx, accountID)
				if err != nil {
					return err
				}
				account.AccessToken = token.AccessToken
				account.TokenExpiresAt = &token.Expiry
				if err := repo.UpdateAccount(ctx, account); err != nil {
					return err
				}
				fmt.Printf("Token stored on account %d\n", accountID)
				return nil
			}

			fmt.Printf("Access token: %s\n", token.AccessToken)
			fmt.Printf("Expires at:   %s\n", token.Expiry.Format(time.RFC1123))
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the callback (required)")
	cmd.Flags().UintVar(&accountID, "account", 0, "Account ID to store the token on")
	cmd.MarkFlagRequired("code")

	return cmd
}

// Helper function to truncate strings
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
