package activelearn

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"activelearn/internal/experiment"
	"activelearn/internal/model"
	"activelearn/internal/stats"
	"activelearn/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultStorePath    = "activelearn.db"
)

type Options struct {
	StoreKind    string
	StorePath    string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.Logger
}

// Client runs experiments against one store and one artifacts directory.
type Client struct {
	store        storage.Store
	storeReady   bool
	logger       *zap.Logger
	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Config  experiment.Config
	OnEpoch func(model.EpochMetrics)
	OnRound func(model.RoundResult)
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Rounds       []model.RoundResult
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	ExperimentName string
	Dataset        string
	Strategy       string
	Seed           int64
	NRuns          int
	FinalLabeled   int
	FinalTestAcc   float64
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type ShowSummary struct {
	Config    stats.RunConfig
	Rounds    []model.RoundResult
	Summaries []stats.RoundSummary
	Curve     []stats.CurvePoint
}

type PlotRequest struct {
	RunID  string
	Latest bool
}

type PlotSummary struct {
	RunID string
	Path  string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	storePath := opts.StorePath
	if storePath == "" {
		storePath = defaultStorePath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, storePath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.storeReady {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.storeReady = true
	return nil
}

// Run executes one experiment. The client's store and artifacts directory
// replace those named in the configuration.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config.Defaults()
	cfg.ArtifactsDir = c.artifactsDir

	runner, err := experiment.NewRunner(cfg, experiment.WithStore(c.store), experiment.WithLogger(c.logger))
	if err != nil {
		return RunSummary{}, err
	}
	if req.OnEpoch != nil || req.OnRound != nil {
		ctx = experiment.WithSink(ctx, experiment.SinkFuncs{Epoch: req.OnEpoch, Round: req.OnRound})
	}
	report, err := runner.Execute(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:        report.RunID,
		ArtifactsDir: filepath.Clean(report.ArtifactsDir),
		Rounds:       report.Rounds,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			ExperimentName: e.ExperimentName,
			Dataset:        e.Dataset,
			Strategy:       e.Strategy,
			Seed:           e.Seed,
			NRuns:          e.NRuns,
			FinalLabeled:   e.FinalLabeled,
			FinalTestAcc:   float64(e.FinalTestAcc),
		})
	}
	return out, nil
}

// Show reads a finished run back. Rounds come from the store when it still
// holds them and from the artifacts otherwise.
func (c *Client) Show(ctx context.Context, req ShowRequest) (ShowSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ShowSummary{}, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ShowSummary{}, err
	}

	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil {
		return ShowSummary{}, err
	}
	if !ok {
		return ShowSummary{}, errors.New("run config not found")
	}

	rounds, ok, err := c.store.GetRoundResults(ctx, runID)
	if err != nil {
		return ShowSummary{}, err
	}
	if !ok {
		if rounds, _, err = stats.ReadRounds(c.artifactsDir, runID); err != nil {
			return ShowSummary{}, err
		}
	}
	epochs, ok, err := c.store.GetEpochMetrics(ctx, runID)
	if err != nil {
		return ShowSummary{}, err
	}
	if !ok {
		if epochs, _, err = stats.ReadEpochs(c.artifactsDir, runID); err != nil {
			return ShowSummary{}, err
		}
	}

	return ShowSummary{
		Config:    cfg,
		Rounds:    rounds,
		Summaries: stats.SummarizeRounds(epochs),
		Curve:     stats.BuildLearningCurve(rounds),
	}, nil
}

func (c *Client) Plot(_ context.Context, req PlotRequest) (PlotSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return PlotSummary{}, err
	}
	path, err := stats.WriteLearningCurve(c.artifactsDir, runID)
	if err != nil {
		return PlotSummary{}, err
	}
	return PlotSummary{RunID: runID, Path: path}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	return stats.ResolveRunID(c.artifactsDir, runID)
}
