package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/teleop"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

type ReplayCommand struct {
	From        int           `long:"from" default:"0" description:"First episode number"`
	Count       int           `long:"count" default:"0" description:"Number of episodes (default: until one is missing)"`
	Pause       time.Duration `long:"pause" default:"0s" description:"Hold between episodes, e.g. 2s"`
	Hz          int           `long:"hz" description:"Replay frequency (default: replay.hz from the config)"`
	Mirror      bool          `long:"mirror" description:"Mirror mode: invert shoulder_pan and wrist_roll positions"`
	DryRun      bool          `long:"dry-run" description:"Log actions instead of moving the follower"`
	LogFile     string        `long:"log-file" description:"Log file (default: stderr)"`
	MetricsAddr string        `long:"metrics-addr" value-name:"ADDR" description:"Serve Prometheus metrics on ADDR"`
}

type episodeResult struct {
	name string
	rows int
	took time.Duration
	err  error
}

func (c *ReplayCommand) Execute(args []string) error {
	w, err := openWorkspace(c.LogFile)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	live := motion.NewRegister(robot.JointVector{})
	var actuator teleop.Actuator
	if c.DryRun {
		actuator = teleop.NewLogActuator(w.logger.Named("dry-run"))
	} else {
		follower, err := w.openArm("follower", w.cfg.Follower)
		if err != nil {
			return err
		}
		defer follower.Close()

		if err := teleop.Seed(ctx, follower, live); err != nil {
			w.logger.Warnw("live fallback starts at zero", "error", err)
		}
		if err := follower.Enable(ctx); err != nil {
			return fmt.Errorf("follower torque: %w", err)
		}
		defer func() {
			// ctx may be canceled by now
			offCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := follower.Disable(offCtx); err != nil {
				w.logger.Warnw("follower torque off failed", "error", err)
			}
		}()
		actuator = follower
	}

	mux, err := w.multiplexer(live)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	serveMetrics(ctx, c.MetricsAddr, reg, w.logger)

	ctrl := teleop.NewController(mux, actuator, teleop.Config{
		Hz:      lo.Ternary(c.Hz > 0, c.Hz, w.cfg.Replay.Hz),
		Mirror:  c.Mirror || w.cfg.Replay.Mirror,
		Logger:  w.logger.Named("replay"),
		Metrics: teleop.NewMetrics(reg),
	})
	defer ctrl.Close()

	results, err := replayEpisodes(ctx, w, ctrl, c.From, c.Count, c.Pause)
	printEpisodes(results)
	fmt.Printf("Control loop: %s\n", ctrl.Timing())
	if teleop.IsCanceled(err) {
		fmt.Println("Replay interrupted.")
		return nil
	}
	return err
}

// replayEpisodes plays episode_<from> onwards. With count 0 it stops at the
// first missing episode; a missing first episode is an error either way.
func replayEpisodes(ctx context.Context, w *workspace, ctrl *teleop.Controller, from, count int, pause time.Duration) ([]episodeResult, error) {
	clk := clock.New()
	var results []episodeResult
	for i := from; count == 0 || i < from+count; i++ {
		name := episodeName(i)
		start := clk.Now()
		n, err := ctrl.RunEpisode(ctx, w.store(name))
		if errors.Is(err, trajectory.ErrNotFound) && count == 0 && len(results) > 0 {
			return results, nil
		}
		results = append(results, episodeResult{name: name, rows: n, took: clk.Since(start), err: err})
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}

		if pause > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-clk.After(pause):
			}
		}
	}
	return results, nil
}

func printEpisodes(results []episodeResult) {
	if len(results) == 0 {
		return
	}
	rows := lo.Map(results, func(r episodeResult, _ int) []string {
		status := successStyle.Render("ok")
		if r.err != nil {
			status = errorStyle.Render(r.err.Error())
		}
		return []string{r.name, strconv.Itoa(r.rows), r.took.Round(10 * time.Millisecond).String(), status}
	})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Episode", "Rows", "Took", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	fmt.Println(t.Render())
}
