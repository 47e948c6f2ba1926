package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/schedule"
	"github.com/spf13/cobra"
)

var scheduleRunName string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Ask the configured schedules[] questions on their cron specs",
	Long: `Run in the foreground and ask every enabled schedules[] entry on its cron
spec. Specs take 5 fields (minute precision) or 6 fields (with seconds), or a
descriptor such as @daily. Each run is written and archived like "quorum ask".`,
	RunE: runSchedule,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured schedules and their next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Schedules) == 0 {
			fmt.Println("No schedules configured.")
			return nil
		}
		for _, sc := range cfg.Schedules {
			status := "enabled"
			if !sc.Enabled {
				status = "disabled"
			}
			next := "-"
			if err := schedule.ValidateSpec(sc.Spec); err != nil {
				status = "invalid: " + err.Error()
			} else if t, ok := schedule.Next(sc.Spec, time.Now()); ok && sc.Enabled {
				next = t.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("- %s [%s] spec=%q next=%s\n  %s\n", sc.Name, status, sc.Spec, next, sc.Question)
		}
		return nil
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one configured schedule now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleRunName == "" {
			return fmt.Errorf("--name is required")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, runOverrides{})
		if err != nil {
			return err
		}
		defer a.Close()

		s := schedule.NewScheduler(a.pipeline, a.scheduleSink)
		for _, sc := range cfg.Schedules {
			if sc.Name != scheduleRunName {
				continue
			}
			job, err := s.AddJob(sc.Name, sc.Spec, sc.Question)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.RunNow(ctx, job.ID)
		}
		return fmt.Errorf("schedule %q not found", scheduleRunName)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleRunCmd.Flags().StringVar(&scheduleRunName, "name", "", "Schedule name")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, runOverrides{})
	if err != nil {
		return err
	}
	defer a.Close()

	s, n, err := a.startSchedules()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no enabled schedules in config")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(ctx)
}

// startSchedules registers every enabled schedules[] entry and starts the
// scheduler. It returns the number of jobs registered.
func (a *app) startSchedules() (*schedule.Scheduler, int, error) {
	s := schedule.NewScheduler(a.pipeline, a.scheduleSink)
	n := 0
	for _, sc := range a.cfg.Schedules {
		if !sc.Enabled {
			continue
		}
		job, err := s.AddJob(sc.Name, sc.Spec, sc.Question)
		if err != nil {
			return nil, 0, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		logger.Info("[SCHEDULE] registered %s (%s)", job.Name, job.Schedule)
		n++
	}
	s.Start()
	return s, n, nil
}

func (a *app) scheduleSink(job *schedule.Job, res *pipeline.Result) error {
	if a.writer == nil && a.store == nil {
		logger.Warn("[SCHEDULE] job %s finished but output and archive are both disabled", job.Name)
		return nil
	}
	a.record(res)
	return nil
}
