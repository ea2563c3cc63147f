// timemctl inspects the timem database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("TIMEM")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "timemctl",
		Short:         "Inspect timem users, tasks and chat history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "./data/timem.db", "path to the SQLite database")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = c.v.BindPFlag("db", root.PersistentFlags().Lookup("db"))
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	root.AddCommand(c.usersCmd(), c.tasksCmd(), c.historyCmd())
	return root
}

func (c *cli) withRepo(ctx context.Context, fn func(context.Context, store.Repository) error) error {
	path := c.v.GetString("db")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database %s: %w", path, err)
	}
	repo, err := store.NewSQLite(path)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

func (c *cli) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
				users, err := repo.GetAllUsers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.v.GetBool("json") {
					return printJSON(out, users)
				}
				now := time.Now()
				tw := newTable(out)
				tw.AppendHeader(table.Row{"Chat ID", "Name", "UTC Offset", "Local Time"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, formatOffset(u.TimezoneOffset), u.LocalTime(now).Format("2006-01-02 15:04")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func (c *cli) tasksCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "tasks <chat-id>",
		Short: "List a user's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
				var (
					tasks []*domain.Task
					err   error
				)
				if day != "" {
					d, parseErr := time.Parse("2006-01-02", day)
					if parseErr != nil {
						return fmt.Errorf("invalid --day %q: %w", day, parseErr)
					}
					tasks, err = repo.GetTasksForDay(ctx, args[0], d)
				} else {
					tasks, err = repo.GetTasks(ctx, args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.v.GetBool("json") {
					return printJSON(out, tasks)
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"Name", "Deadline", "Reminded", "Description"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.Name, domain.FormatDeadline(t.Deadline), t.Reminded, t.Description})
				}
				tw.AppendFooter(table.Row{"", "", "Total", len(tasks)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "only tasks due on this date (YYYY-MM-DD)")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Show recent conversation turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
				turns, err := repo.GetRecentHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.v.GetBool("json") {
					return printJSON(out, turns)
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"Time (UTC)", "Role", "Content"})
				for _, turn := range turns {
					tw.AppendRow(table.Row{turn.CreatedAt.UTC().Format(time.DateTime), turn.Role, turn.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of turns to show")
	return cmd
}

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatOffset(hours int) string {
	if hours >= 0 {
		return fmt.Sprintf("UTC+%d", hours)
	}
	return fmt.Sprintf("UTC%d", hours)
}
