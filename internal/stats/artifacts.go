package stats

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"activelearn/internal/model"
)

const (
	runIndexFile = "run_index.json"
	configFile   = "config.json"
	epochsFile   = "epochs.json"
	roundsFile   = "rounds.json"
	curveFile    = "learning_curve.png"
)

// RunConfig is the flat summary of an experiment written next to its
// metrics.
type RunConfig struct {
	RunID            string  `json:"run_id"`
	ExperimentName   string  `json:"experiment_name"`
	Dataset          string  `json:"dataset"`
	Strategy         string  `json:"strategy"`
	NeighDist        string  `json:"neigh_dist,omitempty"`
	NRuns            int     `json:"n_runs"`
	NEpochs          int     `json:"n_epochs"`
	BatchSize        int     `json:"batch_size"`
	Seed             int64   `json:"seed"`
	UpdateRatio      float64 `json:"update_ratio"`
	InitLabeledRatio float64 `json:"init_lbl_ratio"`
	ValRatio         float64 `json:"val_ratio"`
	TrainVAE         bool    `json:"train_vae"`
	Store            string  `json:"store"`
	// Settings is the complete resolved configuration.
	Settings any `json:"settings,omitempty"`
}

type RunArtifacts struct {
	Config RunConfig            `json:"config"`
	Epochs []model.EpochMetrics `json:"epochs"`
	Rounds []model.RoundResult  `json:"rounds"`
}

type RunIndexEntry struct {
	RunID          string       `json:"run_id"`
	ExperimentName string       `json:"experiment_name"`
	Dataset        string       `json:"dataset"`
	Strategy       string       `json:"strategy"`
	NRuns          int          `json:"n_runs"`
	Seed           int64        `json:"seed"`
	FinalLabeled   int          `json:"final_labeled"`
	FinalTestAcc   model.Metric `json:"final_test_acc"`
	CreatedAtUTC   string       `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", errors.New("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, epochsFile), artifacts.Epochs); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, roundsFile), artifacts.Rounds); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return errors.New("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, path)
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies the files of one run into outDir/<runID>. The
// learning curve is copied when it was rendered.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", errors.New("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, epochsFile, roundsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	curvePath := filepath.Join(src, curveFile)
	if _, err := os.Stat(curvePath); err == nil {
		if err := copyFile(curvePath, filepath.Join(dst, curveFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadEpochs(baseDir, runID string) ([]model.EpochMetrics, bool, error) {
	var epochs []model.EpochMetrics
	ok, err := readJSON(filepath.Join(baseDir, runID, epochsFile), &epochs)
	return epochs, ok, err
}

func ReadRounds(baseDir, runID string) ([]model.RoundResult, bool, error) {
	var rounds []model.RoundResult
	ok, err := readJSON(filepath.Join(baseDir, runID, roundsFile), &rounds)
	return rounds, ok, err
}

// ResolveRunID accepts a full run id or a unique prefix of one from the
// index.
func ResolveRunID(baseDir, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("run id is required")
	}
	index, err := ListRunIndex(baseDir)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, entry := range index {
		if entry.RunID == query {
			return query, nil
		}
		if strings.HasPrefix(entry.RunID, query) {
			matches = append(matches, entry.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no run matches %q", query)
	case 1:
		return matches[0], nil
	default:
		return "", errors.Errorf("run id %q is ambiguous: %s", query, strings.Join(matches, ", "))
	}
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(err, path)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
