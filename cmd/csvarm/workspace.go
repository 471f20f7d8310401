package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/csvarm/pkg/logging"
	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

const episodePrefix = "episode_"

// workspace bundles what the motion commands share: configuration, logger
// and the recording backend.
type workspace struct {
	cfg      *robot.Config
	logger   *zap.SugaredLogger
	closeLog func() error
	db       *sql.DB
}

// openWorkspace loads the config file named on the command line. A non-empty
// logFile overrides the configured log destination.
func openWorkspace(logFile string) (*workspace, error) {
	cfg, err := robot.LoadConfigOrDefault(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	return newWorkspace(cfg, logFile)
}

func newWorkspace(cfg *robot.Config, logFile string) (*workspace, error) {
	if logFile != "" {
		cfg.Log.File = logFile
	}
	logger, closeLog, err := logging.New("csvarm", cfg.Log)
	if err != nil {
		return nil, err
	}

	w := &workspace{cfg: cfg, logger: logger, closeLog: closeLog}
	if cfg.Replay.Backend == "sqlite" {
		db, err := trajectory.OpenDatabase(cfg.Replay.Database)
		if err != nil {
			return nil, multierr.Append(err, closeLog())
		}
		w.db = db
	}
	return w, nil
}

func (w *workspace) Close() error {
	var err error
	if w.db != nil {
		err = w.db.Close()
	}
	return multierr.Append(err, w.closeLog())
}

func (w *workspace) fieldPolicy() (motion.FieldPolicy, error) {
	mode, err := motion.ParseFieldMode(w.cfg.Replay.Fields)
	if err != nil {
		return motion.FieldPolicy{}, err
	}
	return motion.FieldPolicy{Mode: mode, Offset: w.cfg.Replay.Offset}, nil
}

func (w *workspace) multiplexer(live motion.LiveSource) (*motion.Multiplexer, error) {
	policy, err := w.fieldPolicy()
	if err != nil {
		return nil, err
	}
	return motion.New(live,
		motion.WithFieldPolicy(policy),
		motion.WithLogger(w.logger.Named("motion")),
	), nil
}

// store returns the recording called name on the configured backend. For the
// csv backend, name may also be a path to a .csv file.
func (w *workspace) store(name string) trajectory.Store {
	if w.db != nil {
		return trajectory.NewSQLiteStore(w.db, name)
	}
	var fileOpts []trajectory.FileOption
	if w.cfg.Replay.Header {
		fileOpts = append(fileOpts, trajectory.WithHeader(trajectory.FrameColumns()...))
	}
	return trajectory.NewFileStore(w.recordingPath(name), fileOpts...)
}

func (w *workspace) recordingPath(name string) string {
	if strings.HasSuffix(name, ".csv") {
		return name
	}
	return filepath.Join(w.cfg.Replay.Dir, name+".csv")
}

// recordings lists the recordings on the configured backend, episodes in
// numeric order first.
func (w *workspace) recordings() ([]string, error) {
	var names []string
	if w.db != nil {
		var err error
		if names, err = trajectory.RecordingNames(w.db); err != nil {
			return nil, err
		}
	} else {
		paths, err := filepath.Glob(filepath.Join(w.cfg.Replay.Dir, "*.csv"))
		if err != nil {
			return nil, err
		}
		names = lo.Map(paths, func(p string, _ int) string {
			return strings.TrimSuffix(filepath.Base(p), ".csv")
		})
	}
	slices.SortFunc(names, compareRecordings)
	return names, nil
}

// nextEpisode returns the lowest episode number not yet recorded.
func (w *workspace) nextEpisode() (int, error) {
	names, err := w.recordings()
	if err != nil {
		return 0, err
	}
	i := 0
	for lo.Contains(names, episodeName(i)) {
		i++
	}
	return i, nil
}

// prepareWrite makes sure a new csv recording has a directory to go to.
func (w *workspace) prepareWrite() error {
	if w.db != nil {
		return nil
	}
	return os.MkdirAll(w.cfg.Replay.Dir, 0o755)
}

func (w *workspace) openArm(role string, cfg robot.ArmConfig) (*robot.Arm, error) {
	if cfg.Port == "" || !cfg.IsCalibrated() {
		return nil, fmt.Errorf("%s arm not configured, run 'csvarm setup' first", role)
	}
	arm, err := robot.NewArm(cfg.Port, cfg.Calibration)
	if err != nil {
		return nil, fmt.Errorf("%s arm: %w", role, err)
	}
	return arm, nil
}

func episodeName(i int) string {
	return episodePrefix + strconv.Itoa(i)
}

func episodeNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, episodePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func compareRecordings(a, b string) int {
	na, oka := episodeNumber(a)
	nb, okb := episodeNumber(b)
	switch {
	case oka && okb:
		return na - nb
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(a, b)
}

// serveMetrics exposes reg on addr until ctx is done. An empty addr disables it.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnw("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Infow("serving metrics", "addr", addr)
}
