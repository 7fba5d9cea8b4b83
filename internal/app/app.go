// Package app provides the main application context and dependency injection.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dongho-jung/lanes/internal/config"
	"github.com/dongho-jung/lanes/internal/constants"
	"github.com/dongho-jung/lanes/internal/embed"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/ledger"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/metrics"
	"github.com/dongho-jung/lanes/internal/service"
)

// App represents the main application context with all dependencies.
type App struct {
	// Paths
	ProjectDir string // Directory lanes was started from (repo root when inside git)
	LanesDir   string // .lanes directory path

	Config  *config.Config
	Metrics *metrics.Metrics

	logger logging.Logger
	ledger *ledger.Ledger
}

// New creates an App for projectDir and loads its configuration.
func New(projectDir string) (*App, error) {
	absPath, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	cfg, err := config.Load(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &App{
		ProjectDir: absPath,
		LanesDir:   filepath.Join(absPath, constants.LanesDirName),
		Config:     cfg,
		Metrics:    metrics.New(),
	}
	return a, nil
}

// ResolveProjectDir returns the repository root containing dir, or dir itself
// when it is not inside a git repository.
func ResolveProjectDir(client git.Client, dir string) string {
	if client.IsGitRepo(dir) {
		if root, err := client.GetRepoRoot(dir); err == nil {
			return root
		}
	}
	return dir
}

// SetupLogging installs the global logger. The log file lives under the
// .lanes directory; when it cannot be opened logging falls back to stderr.
// Config repairs are reported once the logger is in place.
func (a *App) SetupLogging(command string) {
	var logger logging.Logger
	if a.Config.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.Config.LogPath), 0755); err == nil {
			logger, _ = logging.New(a.Config.LogPath, a.Config.Debug)
		}
	}
	if logger == nil {
		logger = logging.NewStdout(a.Config.Debug)
	}
	logger.SetScript(command)
	logging.SetGlobal(logger)
	a.logger = logger

	for _, warning := range a.Config.Normalize() {
		logging.Warn("config: %s", warning)
	}
}

// SetRun tags later log entries with the run slug.
func (a *App) SetRun(slug string) {
	if a.logger != nil {
		a.logger.SetRun(slug)
	}
}

// PromptDir returns the directory holding prompt overrides.
func (a *App) PromptDir() string {
	return filepath.Join(a.LanesDir, constants.PromptsDirName)
}

// ConflictGuide renders the conflict-resolution prompt for a halted merge,
// preferring a project override of the prompt.
func (a *App) ConflictGuide(c *merge.ConflictInfo) (string, error) {
	template, err := embed.LoadPrompt(a.PromptDir(), embed.PromptConflictResolution)
	if err != nil {
		return "", fmt.Errorf("failed to load conflict prompt: %w", err)
	}
	return embed.RenderConflictGuide(template, c.LaneID, c.Branch, c.Worktree, c.Files), nil
}

// OpenService opens the ledger and builds the merge service.
func (a *App) OpenService() (*service.MergeService, error) {
	if a.ledger == nil {
		if err := os.MkdirAll(a.Config.RunsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create runs directory: %w", err)
		}
		l, err := ledger.Open(a.Config.LedgerPath())
		if err != nil {
			return nil, err
		}
		a.ledger = l
	}

	return service.New(a.Config.RunsDir, service.Options{
		Git:         git.NewWithTimeout(a.Config.GitTimeoutDuration()),
		Ledger:      a.ledger,
		Metrics:     a.Metrics,
		Concurrency: a.Config.InspectConcurrency,
		PromptDir:   a.PromptDir(),
	}), nil
}

// Close releases the ledger and the log file.
func (a *App) Close() error {
	var firstErr error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			firstErr = err
		}
		a.ledger = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		logging.SetGlobal(logging.NewStdout(a.Config.Debug))
		a.logger = nil
	}
	return firstErr
}
