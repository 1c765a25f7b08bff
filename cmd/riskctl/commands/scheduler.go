package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler management",
	Long: `Start the scheduler or manage its jobs.

Subcommands:
  start   - start the scheduler
  list    - list registered jobs
  run     - run one job now
  status  - show job statistics

Example:
  go run ./cmd/riskctl scheduler start
  go run ./cmd/riskctl scheduler list
  go run ./cmd/riskctl scheduler run risk_monitoring`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Start the scheduler and schedule every registered job.

Registered jobs:
- risk_monitoring: RISK_MONITOR_SCHEDULE (default every 5 minutes)
- risk_report: RISK_REPORT_SCHEDULE (default every day at 6 PM)
- scenario_expiry: RISK_EXPIRY_SCHEDULE (default hourly, database only)

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	a, err := newApp(context.Background(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	PrintSuccess(w, "Scheduler started")
	fmt.Fprintln(w, "\nRegistered jobs:")
	PrintList(w, sched.GetAllJobs())
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(w, "\nShutting down scheduler...")
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	w := cmd.OutOrStdout()
	stats := sched.GetJobStats()
	widths := []int{18, 16}
	PrintTableHeader(w, []string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow(w, []string{name, stats[name].Schedule}, widths)
	}
	return nil
}

// runJob runs a job in the foreground; the process owns no schedule, so it waits for the result
func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	res, err := sched.RunJobSync(ctx, args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	w := cmd.OutOrStdout()
	if !res.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", res.JobName, res.Attempts, res.Error)
	}
	PrintSuccess(w, fmt.Sprintf("Job %s completed in %s", res.JobName, res.Duration))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	w := cmd.OutOrStdout()
	stats := sched.GetJobStats()

	PrintHeader(w, "Job Statistics")
	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Fprintf(w, "📊 %s\n", jobName)
		PrintKeyValue(w, "Schedule", stat.Schedule, 12)
		PrintKeyValue(w, "Total Runs", fmt.Sprintf("%d", stat.TotalRuns), 12)
		PrintKeyValue(w, "Success", fmt.Sprintf("%d (%.1f%%)", stat.SuccessCount, stat.SuccessRate*100), 12)
		PrintKeyValue(w, "Failures", fmt.Sprintf("%d", stat.FailureCount), 12)

		if stat.LastRun != nil {
			PrintKeyValue(w, "Last Run", stat.LastRun.Format("2006-01-02 15:04:05"), 12)
		}
		if stat.NextRun != nil {
			PrintKeyValue(w, "Next Run", stat.NextRun.Format("2006-01-02 15:04:05"), 12)
		}
		fmt.Fprintln(w)
	}

	return nil
}
