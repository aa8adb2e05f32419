package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/bookkeeping/internal/app"
	"github.com/odyssey-erp/bookkeeping/internal/rbac"
	"github.com/odyssey-erp/bookkeeping/jobs"
)

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the bookkeeping ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(newReconcileCommand(), newQueueCommand(), newRolesCommand(), newSeedCommand())
	return root
}

func loadConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

func newReconcileCommand() *cobra.Command {
	var (
		periodID int64
		enqueue  bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount the aggregates of a period",
		Long:  "Recount account and period aggregates from their records. Without --period the current open period is used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if enqueue {
				client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
				defer func() { _ = client.Close() }()
				id, err := client.EnqueueReconcile(ctx, periodID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", id)
				return nil
			}
			return reconcileNow(ctx, cmd.OutOrStdout(), cfg, logger, periodID)
		},
	}
	cmd.Flags().Int64Var(&periodID, "period", 0, "period id (0 = current open period)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the run for the worker instead of running it here")
	return cmd
}

func reconcileNow(ctx context.Context, out io.Writer, cfg *app.Config, logger *slog.Logger, periodID int64) error {
	l, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	job := jobs.NewReconcileJob(l.Service.Balancer(), l.Resolver, logger, nil)
	report, err := job.Run(ctx, periodID)
	if err != nil {
		return err
	}
	if report.PeriodID == 0 {
		fmt.Fprintln(out, "no open period")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "period\t%d\n", report.PeriodID)
	fmt.Fprintf(tw, "accounts\t%d\n", report.AccountCount)
	fmt.Fprintf(tw, "records\t%d\n", report.RecordCount)
	fmt.Fprintf(tw, "end value\t%.2f\n", report.EndValue)
	fmt.Fprintf(tw, "drifts\t%d\n", len(report.Drifts))
	for _, d := range report.Drifts {
		fmt.Fprintf(tw, "  %d %s\t%.2f -> %.2f\n", d.EntityID, d.Field, d.Stored, d.Actual)
	}
	return tw.Flush()
}

func newQueueCommand() *cobra.Command {
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queue",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() { _ = inspector.Close() }()
			s, err := jobs.Stats(inspector)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() { _ = inspector.Close() }()
			tasks, err := inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNEXT")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	queue.AddCommand(stats, scheduled)
	return queue
}

func newRolesCommand() *cobra.Command {
	roles := &cobra.Command{
		Use:   "roles",
		Short: "Manage ledger roles",
	}

	var userID int64
	var roleName string
	withStore := func(cmd *cobra.Command, fn func(context.Context, rbac.RoleStore, rbac.Role) error) error {
		role, err := rbac.ParseRole(roleName)
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := app.OpenLedger(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer l.Close()
		return fn(cmd.Context(), l.Roles, role)
	}

	assign := &cobra.Command{
		Use:   "assign",
		Short: "Grant a role to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store rbac.RoleStore, role rbac.Role) error {
				if err := store.Assign(ctx, userID, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %d\n", role, userID)
				return nil
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Revoke a role from a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store rbac.RoleStore, role rbac.Role) error {
				if err := store.Remove(ctx, userID, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %d\n", role, userID)
				return nil
			})
		},
	}
	for _, c := range []*cobra.Command{assign, remove} {
		c.Flags().Int64Var(&userID, "user", 0, "user id")
		c.Flags().StringVar(&roleName, "role", "", "admin, accountant, spectator or member")
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("role")
	}
	roles.AddCommand(assign, remove)
	return roles
}
