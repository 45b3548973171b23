// Package cli implements fikactl, the operator command line for the scheduler.
//
// Command structure:
//
//	fikactl
//	├── generate   generate and store a user's schedule for a day
//	├── evaluate   score a schedule file against preferences
//	├── gaps       print the open gaps of a day around fixed blocks
//	└── version
//
// Database settings come from the same environment variables as the server.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/makenakalei/fika-scheduling/internal/config"
	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/policystore"
	"github.com/makenakalei/fika-scheduling/internal/rpc"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

// Version is set at build time.
var Version = "dev"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "fikactl",
		Short:         "Operate the fika scheduler",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildGenerateCommand(),
		buildEvaluateCommand(),
		buildGapsCommand(),
		buildVersionCommand(),
	)
	return root
}

func buildGenerateCommand() *cobra.Command {
	var userID, date, policyDir, server string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store the schedule of a user for one day",
		Long:  "Generate a schedule locally against the configured database, or remotely with --server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("user is required (use --user or -u)")
			}
			day, err := domain.ParseDay(date, time.Now())
			if err != nil {
				return err
			}

			var sched *scheduler.Schedule
			if server != "" {
				sched, err = generateRemote(cmd.Context(), server, userID, day)
			} else {
				sched, err = generateLocal(cmd.Context(), userID, day, policyDir)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sched)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringVarP(&date, "date", "d", "", "day to schedule (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "load and save learned policy tables in this directory")
	cmd.Flags().StringVar(&server, "server", "", "gRPC address of a running server")
	return cmd
}

func generateLocal(ctx context.Context, userID string, day time.Time, policyDir string) (*scheduler.Schedule, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(ctx, store.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	if policyDir == "" {
		policyDir = cfg.PolicyDir
	}
	var opts []scheduler.GeneratorOption
	if policyDir != "" {
		tables, err := policystore.New(policyDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scheduler.WithTableStore(tables))
	}

	gen := scheduler.NewGenerator(repo, scheduler.GeneratorConfig{
		Workday:       cfg.Workday,
		ClearExisting: cfg.ClearBeforeGenerate,
	}, opts...)

	ctx, cancel := context.WithTimeout(ctx, cfg.GenerateTimeout)
	defer cancel()
	return gen.Generate(ctx, userID, day)
}

func generateRemote(ctx context.Context, addr, userID string, day time.Time) (*scheduler.Schedule, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.GenerateSchedule(ctx, userID, day)
}

func buildEvaluateCommand() *cobra.Command {
	var userID, file, focus, style string
	var stress int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a schedule file",
		Long: "Score a JSON schedule (an entry list or an object with \"entries\") against the stored " +
			"preferences of --user, or against --focus/--style/--stress.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("schedule file is required (use --file or -f)")
			}
			entries, err := readEntries(file)
			if err != nil {
				return err
			}

			var prefs domain.UserPreferences
			if focus != "" || style != "" {
				prefs = domain.UserPreferences{
					FocusPeriod: domain.FocusPeriod(focus),
					WorkStyle:   domain.WorkStyle(style),
					StressLevel: stress,
				}
			} else {
				if userID == "" {
					return fmt.Errorf("either --user or --focus/--style is required")
				}
				if prefs, err = storedPreferences(cmd.Context(), userID); err != nil {
					return err
				}
			}
			if err := prefs.Validate(); err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"reward":           scheduler.Evaluate(entries, prefs),
				"average_duration": scheduler.AverageDuration(entries),
				"entries":          len(entries),
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user whose stored preferences are used")
	cmd.Flags().StringVarP(&file, "file", "f", "", "schedule JSON file")
	cmd.Flags().StringVar(&focus, "focus", "", "focus period: morning, afternoon or evening")
	cmd.Flags().StringVar(&style, "style", "", "work style: long_chunks or short_sprints")
	cmd.Flags().IntVar(&stress, "stress", 5, "stress level 0-10")
	return cmd
}

func storedPreferences(ctx context.Context, userID string) (domain.UserPreferences, error) {
	cfg, err := config.Load()
	if err != nil {
		return domain.UserPreferences{}, err
	}
	repo, err := store.Open(ctx, store.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		return domain.UserPreferences{}, fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	if user == nil {
		return domain.UserPreferences{}, fmt.Errorf("%w: %s", store.ErrUserNotFound, userID)
	}
	return user.Preferences, nil
}

func readEntries(path string) ([]domain.ScheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))

	var entries []domain.ScheduleEntry
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &entries)
	} else {
		var doc struct {
			Entries []domain.ScheduleEntry `json:"entries"`
		}
		err = json.Unmarshal(raw, &doc)
		entries = doc.Entries
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}
	return entries, nil
}

func buildGapsCommand() *cobra.Command {
	var date, dayStart, dayEnd string
	var fixed []string

	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Print the open gaps of a day",
		Example: "  fikactl gaps --day-start 08:00 --day-end 17:00 --fixed 09:00-10:00 --fixed 12:00-13:00",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := domain.ParseDay(date, time.Now())
			if err != nil {
				return err
			}
			start, err := clockOn(day, dayStart)
			if err != nil {
				return err
			}
			end, err := clockOn(day, dayEnd)
			if err != nil {
				return err
			}

			var blocks []scheduler.Interval
			for _, f := range fixed {
				from, to, ok := strings.Cut(f, "-")
				if !ok {
					return fmt.Errorf("fixed block %q must be HH:MM-HH:MM", f)
				}
				s, err := clockOn(day, from)
				if err != nil {
					return err
				}
				e, err := clockOn(day, to)
				if err != nil {
					return err
				}
				blocks = append(blocks, scheduler.Interval{Start: s, End: e})
			}

			out := cmd.OutOrStdout()
			for _, g := range scheduler.ComputeGaps(start, end, blocks) {
				fmt.Fprintf(out, "%s-%s (%d min)\n", g.Start.Format("15:04"), g.End.Format("15:04"), int(g.Duration().Minutes()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&dayStart, "day-start", "08:00", "start of the working day")
	cmd.Flags().StringVar(&dayEnd, "day-end", "17:00", "end of the working day")
	cmd.Flags().StringArrayVar(&fixed, "fixed", nil, "fixed block HH:MM-HH:MM, repeatable")
	return cmd
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fikactl %s\n", Version)
		},
	}
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be HH:MM, got %q", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
