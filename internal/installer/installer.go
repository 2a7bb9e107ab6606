package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"piexed/internal/db"
	"piexed/internal/dirlock"
	"piexed/internal/envfile"
	"piexed/internal/logging"
	"piexed/internal/marker"
	"piexed/internal/metrics"
	"piexed/internal/models"
	"piexed/internal/progress"
	"piexed/internal/seed"
	"piexed/internal/ws"
)

const (
	EnvFileName    = ".env"
	InstallDirName = "install"

	defaultProbeTimeout = 10 * time.Second
	defaultStageTimeout = 60 * time.Second

	msgSuccess          = "Installation completed successfully"
	msgFailed           = "Installation failed"
	msgMissingConfig    = "Missing required configuration data"
	msgIncompleteAdmin  = "Admin user information is incomplete"
	msgAlreadyInstalled = "Application is already installed"
	msgInProgress       = "Installation is already in progress"
)

// Seeder loads the bootstrap admin and default catalog.
type Seeder interface {
	Load(ctx context.Context, gdb *gorm.DB, req models.InstallRequest) (seed.Report, error)
}

type Options struct {
	// WorkDir holds the .env file and the install directory.
	WorkDir string

	Marker   *marker.Marker
	Progress *progress.Tracker
	Metrics  *metrics.Metrics
	Hub      *ws.Hub
	Seeder   Seeder

	ProbeTimeout time.Duration
	StageTimeout time.Duration
	Now          func() time.Time
}

type Installer struct {
	workDir      string
	marker       *marker.Marker
	progress     *progress.Tracker
	metrics      *metrics.Metrics
	hub          *ws.Hub
	seeder       Seeder
	probeTimeout time.Duration
	stageTimeout time.Duration
	now          func() time.Time

	running atomic.Bool
}

func New(opts Options) *Installer {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	installDir := filepath.Join(workDir, InstallDirName)

	in := &Installer{
		workDir:      workDir,
		marker:       opts.Marker,
		progress:     opts.Progress,
		metrics:      opts.Metrics,
		hub:          opts.Hub,
		seeder:       opts.Seeder,
		probeTimeout: opts.ProbeTimeout,
		stageTimeout: opts.StageTimeout,
		now:          opts.Now,
	}
	if in.marker == nil {
		in.marker = marker.New(installDir)
	}
	if in.progress == nil {
		in.progress = progress.New(installDir, opts.Hub)
	}
	if in.seeder == nil {
		in.seeder = seed.Loader{}
	}
	if in.probeTimeout <= 0 {
		in.probeTimeout = defaultProbeTimeout
	}
	if in.stageTimeout <= 0 {
		in.stageTimeout = defaultStageTimeout
	}
	if in.now == nil {
		in.now = time.Now
	}
	return in
}

func (in *Installer) Marker() *marker.Marker { return in.marker }

func (in *Installer) Progress() *progress.Tracker { return in.progress }

func (in *Installer) EnvPath() string { return filepath.Join(in.workDir, EnvFileName) }

func (in *Installer) InstallDir() string { return filepath.Join(in.workDir, InstallDirName) }

func (in *Installer) Status() models.InstallStatus {
	return models.InstallStatus{
		Installed:   in.marker.Installed(),
		InstalledAt: in.marker.InstalledAt(),
	}
}

// Validate checks the request shape before anything is touched.
func Validate(req models.InstallRequest) error {
	switch {
	case req.DBConfig == nil:
		return &ValidationError{Field: "dbConfig", Message: msgMissingConfig}
	case req.AdminUser == nil:
		return &ValidationError{Field: "adminUser", Message: msgMissingConfig}
	case req.SiteConfig == nil:
		return &ValidationError{Field: "siteConfig", Message: msgMissingConfig}
	case req.StorageConfig == nil:
		return &ValidationError{Field: "storageConfig", Message: msgMissingConfig}
	}

	admin := req.AdminUser
	switch {
	case strings.TrimSpace(admin.Username) == "":
		return &ValidationError{Field: "adminUser.username", Message: msgIncompleteAdmin}
	case strings.TrimSpace(admin.Email) == "":
		return &ValidationError{Field: "adminUser.email", Message: msgIncompleteAdmin}
	case admin.Password == "":
		return &ValidationError{Field: "adminUser.password", Message: msgIncompleteAdmin}
	}

	switch req.StorageConfig.Type {
	case models.StorageLocal, models.StorageCloud, "":
	default:
		return &ValidationError{Field: "storageConfig.type", Message: fmt.Sprintf("unsupported storage type %q (expected local or cloud)", req.StorageConfig.Type)}
	}

	if _, err := db.ConfigFromRequest(*req.DBConfig); err != nil {
		return &ValidationError{Field: "dbConfig", Message: err.Error()}
	}
	return nil
}

// Install runs connect, migrate, seed, config and marker in order. Progress
// reaches 10, 30, 60, 80 and 100 as each stage completes, and the step names
// the stage being worked on. It stops at the first failing stage without
// writing the completion marker; every stage before the marker is safe to
// repeat, so the operator can fix the input and submit again. The returned
// result is always populated; err is nil on success.
func (in *Installer) Install(ctx context.Context, req models.InstallRequest) (models.InstallResult, error) {
	if err := Validate(req); err != nil {
		var ve *ValidationError
		errors.As(err, &ve)
		return models.InstallResult{Success: false, Message: ve.Message, Error: ve.Field, Stage: string(StageValidate)}, err
	}
	if in.marker.Installed() {
		return models.InstallResult{Success: false, Message: msgAlreadyInstalled, Error: ErrAlreadyInstalled.Error()}, ErrAlreadyInstalled
	}
	if !in.running.CompareAndSwap(false, true) {
		return models.InstallResult{Success: false, Message: msgInProgress, Error: ErrInProgress.Error()}, ErrInProgress
	}
	defer in.running.Store(false)

	lock, err := dirlock.Acquire(in.InstallDir())
	if err != nil {
		if errors.Is(err, dirlock.ErrLocked) {
			return models.InstallResult{Success: false, Message: msgInProgress, Error: ErrInProgress.Error()}, ErrInProgress
		}
		return in.fail(&StageError{Stage: StageValidate, Cause: CauseFilesystem, Err: err})
	}
	defer func() { _ = lock.Release() }()

	// Another process may have finished while we waited for the lock.
	if err := in.marker.Load(); err == nil && in.marker.Installed() {
		in.metrics.SetInstalled(true)
		return models.InstallResult{Success: false, Message: msgAlreadyInstalled, Error: ErrAlreadyInstalled.Error()}, ErrAlreadyInstalled
	}

	started := time.Now()
	in.progress.Reset()
	logging.L().Info().Str("engine", req.DBConfig.Type).Msg("installation started")

	dbCfg, err := in.resolveDB(*req.DBConfig)
	if err != nil {
		return in.fail(&StageError{Stage: StageValidate, Cause: string(db.CauseUnknown), Err: err})
	}

	in.setProgress(0, "Checking database connection")
	var gdb *gorm.DB
	if err := in.runStage(ctx, StageConnect, in.probeTimeout, func(ctx context.Context) error {
		var err error
		gdb, err = db.Connect(ctx, dbCfg)
		return err
	}); err != nil {
		return in.fail(err)
	}
	defer db.Close(gdb)

	in.setProgress(10, "Creating database tables")
	if err := in.runStage(ctx, StageMigrate, in.stageTimeout, func(ctx context.Context) error {
		applied, err := db.Migrate(ctx, gdb, dbCfg.Backend)
		logging.L().Debug().Strs("tables", applied).Msg("schema applied")
		return err
	}); err != nil {
		return in.fail(err)
	}

	in.setProgress(30, "Seeding default data")
	if err := in.runStage(ctx, StageSeed, in.stageTimeout, func(ctx context.Context) error {
		report, err := in.seeder.Load(ctx, gdb, req)
		if err != nil {
			return err
		}
		logging.L().Info().
			Bool("admin_created", report.AdminCreated).
			Int("plans_created", report.PlansCreated).
			Int("models_created", report.ModelsCreated).
			Msg("seed data loaded")
		return nil
	}); err != nil {
		return in.fail(err)
	}

	in.setProgress(60, "Writing configuration")
	if err := in.runStage(ctx, StageConfig, in.stageTimeout, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := envfile.Emit(in.EnvPath(), req)
		if err != nil {
			return err
		}
		logging.L().Info().Str("path", report.Path).Bool("secret_generated", report.SecretGenerated).Msg("configuration written")
		return nil
	}); err != nil {
		return in.fail(err)
	}

	in.setProgress(80, "Finalizing installation")
	if err := in.runStage(ctx, StageMarker, in.stageTimeout, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := in.marker.Write(in.now())
		if errors.Is(err, marker.ErrAlreadyInstalled) {
			return nil
		}
		return err
	}); err != nil {
		return in.fail(err)
	}

	in.setProgress(100, "Installation complete")
	in.metrics.SetInstalled(true)
	in.metrics.IncInstallRuns("success")
	in.hub.Publish(ws.Event{Type: ws.EventInstallCompleted, Payload: in.Status()})
	logging.L().Info().Dur("elapsed", time.Since(started)).Msg("installation completed")
	return models.InstallResult{Success: true, Message: msgSuccess}, nil
}

// CheckTables reports which application tables exist in the target store.
func (in *Installer) CheckTables(ctx context.Context, dbc models.DBConfig) ([]models.TableStatus, error) {
	dbCfg, err := in.resolveDB(dbc)
	if err != nil {
		return nil, &ValidationError{Field: "dbConfig", Message: err.Error()}
	}

	var out []models.TableStatus
	err = in.runStage(ctx, StageConnect, in.probeTimeout, func(ctx context.Context) error {
		gdb, err := db.Connect(ctx, dbCfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		out, err = db.ExistingTables(ctx, gdb)
		return err
	})
	return out, err
}

func (in *Installer) resolveDB(dbc models.DBConfig) (db.Config, error) {
	cfg, err := db.ConfigFromRequest(dbc)
	if err != nil {
		return db.Config{}, err
	}
	if cfg.Backend == db.BackendSQLite && !filepath.IsAbs(cfg.SQLitePath) {
		cfg.SQLitePath = filepath.Join(in.workDir, cfg.SQLitePath)
	}
	return cfg, nil
}

// runStage bounds fn with timeout, recovers panics and wraps any failure in
// a *StageError.
func (in *Installer) runStage(ctx context.Context, stage Stage, timeout time.Duration, fn func(context.Context) error) (err error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Cause: CausePanic, Err: fmt.Errorf("panic: %v", r)}
		}
		status := "ok"
		if err != nil {
			status = "failed"
		}
		in.metrics.ObserveStage(string(stage), status, time.Since(start))
	}()

	if err := fn(stageCtx); err != nil {
		if stageCtx.Err() != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return &StageError{Stage: stage, Cause: causeOf(stage, err), Err: err}
	}
	return nil
}

func (in *Installer) fail(err error) (models.InstallResult, error) {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: StageValidate, Cause: string(db.CauseUnknown), Err: err}
	}
	in.progress.Fail("Failed: " + string(se.Stage))
	in.metrics.SetProgress(in.progress.Get().Progress)
	in.metrics.IncStageFailures(string(se.Stage), se.Cause)
	in.metrics.IncInstallRuns("failed")
	logging.L().Error().Str("stage", string(se.Stage)).Str("cause", se.Cause).Err(se.Err).Msg("installation failed")

	return models.InstallResult{
		Success: false,
		Message: msgFailed,
		Error:   se.Error(),
		Stage:   string(se.Stage),
		Cause:   se.Cause,
	}, se
}

func (in *Installer) setProgress(percent int, step string) {
	p := in.progress.Set(percent, step)
	in.metrics.SetProgress(p.Progress)
}
