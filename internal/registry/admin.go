package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/silohq/silosearch/pkg/types"
)

// Overlap sampling parameters.
const (
	overlapSampleSize = 100
	highOverlapCutoff = 0.8
)

// BackupFile is the on-disk format of a namespace backup: the namespace
// record plus its full chunk and vector tables.
type BackupFile struct {
	Namespace  *types.Namespace `json:"namespace"`
	Chunks     []*types.Chunk   `json:"chunks"`
	Vectors    [][]float32      `json:"vectors"`
	BackedUpAt time.Time        `json:"backed_up_at"`
}

// RestoreResult reports what a backup restore did.
type RestoreResult struct {
	Namespace      string `json:"namespace"`
	ChunksRestored int    `json:"chunks_restored"`
}

// OverlapReport quantifies how similar two namespaces' content is, measured
// by matching a sample of the source's vectors against the target.
type OverlapReport struct {
	Source             string  `json:"source"`
	Target             string  `json:"target"`
	SampleSize         int     `json:"sample_size"`
	AverageSimilarity  float64 `json:"average_similarity"`
	MaxSimilarity      float64 `json:"max_similarity"`
	HighOverlapCount   int     `json:"high_overlap_count"`
	HighOverlapPercent float64 `json:"high_overlap_percent"`
}

// SystemOverview aggregates counts across every namespace.
type SystemOverview struct {
	TotalNamespaces int                    `json:"total_namespaces"`
	TotalDocuments  int                    `json:"total_documents"`
	TotalChunks     int                    `json:"total_chunks"`
	Departments     []string               `json:"departments"`
	Namespaces      []types.NamespaceStats `json:"namespaces"`
	Cache           types.CacheStats       `json:"cache"`
}

// Backup writes the namespace's record, chunks, and vectors as JSON under
// dir, creating the directory if needed, and returns the file path. An empty
// dir defaults to a timestamped directory under backups/.
func (r *Registry) Backup(ctx context.Context, namespace, dir string) (string, error) {
	ns, err := r.storage.GetNamespace(ctx, namespace)
	if err != nil {
		return "", err
	}
	e, err := r.handle(ctx, namespace, false)
	if err != nil {
		return "", err
	}
	chunks, vectors := e.store.Snapshot()

	if dir == "" {
		dir = filepath.Join("backups", time.Now().Format("20060102_150405"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	payload, err := json.MarshalIndent(&BackupFile{
		Namespace:  ns,
		Chunks:     chunks,
		Vectors:    vectors,
		BackedUpAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding backup: %w", err)
	}

	path := filepath.Join(dir, namespace+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return path, nil
}

// RestoreBackup loads a backup file into a namespace, replacing its current
// contents. An empty namespace argument restores into the namespace named in
// the file; a missing namespace is created from the backed-up record.
func (r *Registry) RestoreBackup(ctx context.Context, path, namespace string) (*RestoreResult, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	var bf BackupFile
	if err := json.Unmarshal(payload, &bf); err != nil {
		return nil, fmt.Errorf("decoding backup: %w", err)
	}
	if bf.Namespace == nil || bf.Namespace.ID == "" {
		return nil, fmt.Errorf("%w: backup has no namespace record", types.ErrInvalidArgument)
	}
	if len(bf.Chunks) != len(bf.Vectors) {
		return nil, fmt.Errorf("%w: backup has %d chunks but %d vectors", types.ErrInvalidArgument, len(bf.Chunks), len(bf.Vectors))
	}
	if namespace == "" {
		namespace = bf.Namespace.ID
	}

	if _, err := r.storage.GetNamespace(ctx, namespace); errors.Is(err, types.ErrNotFound) {
		rec := *bf.Namespace
		rec.ID = namespace
		if createErr := r.storage.CreateNamespace(ctx, &rec); createErr != nil && !errors.Is(createErr, types.ErrConflict) {
			return nil, createErr
		}
	} else if err != nil {
		return nil, err
	}

	e, err := r.handle(ctx, namespace, true)
	if err != nil {
		return nil, err
	}
	if err := e.store.Restore(bf.Chunks, bf.Vectors); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, namespace, e.store); err != nil {
		return nil, err
	}
	r.noteMutation(namespace, e.store)

	return &RestoreResult{Namespace: namespace, ChunksRestored: e.store.Len()}, nil
}

// Overlap samples up to overlapSampleSize vectors from the source namespace
// and matches each against its nearest neighbor in the target, reporting how
// similar the two corpora are. Similarities use the vector channel's scale,
// 1 / (1 + distance).
func (r *Registry) Overlap(ctx context.Context, source, target string) (*OverlapReport, error) {
	if source == target {
		return nil, fmt.Errorf("%w: source and target are the same namespace", types.ErrInvalidArgument)
	}

	srcEntry, err := r.handle(ctx, source, false)
	if err != nil {
		return nil, err
	}
	dstEntry, err := r.handle(ctx, target, false)
	if err != nil {
		return nil, err
	}

	_, vectors := srcEntry.store.Snapshot()
	report := &OverlapReport{Source: source, Target: target}
	if len(vectors) == 0 || dstEntry.store.Len() == 0 {
		return report, nil
	}

	step := 1
	if len(vectors) > overlapSampleSize {
		step = len(vectors) / overlapSampleSize
	}

	var total float64
	for i := 0; i < len(vectors) && report.SampleSize < overlapSampleSize; i += step {
		hits, err := dstEntry.store.SearchVector(ctx, vectors[i], 1)
		if err != nil {
			return nil, fmt.Errorf("overlap %s -> %s: %w", source, target, err)
		}
		var sim float64
		if len(hits) > 0 {
			sim = hits[0].Score
		}
		report.SampleSize++
		total += sim
		if sim > report.MaxSimilarity {
			report.MaxSimilarity = sim
		}
		if sim >= highOverlapCutoff {
			report.HighOverlapCount++
		}
	}

	if report.SampleSize > 0 {
		report.AverageSimilarity = total / float64(report.SampleSize)
		report.HighOverlapPercent = 100 * float64(report.HighOverlapCount) / float64(report.SampleSize)
	}
	return report, nil
}

// Overview aggregates per-namespace stats into a whole-system report.
func (r *Registry) Overview(ctx context.Context) (*SystemOverview, error) {
	records, err := r.List(ctx, "")
	if err != nil {
		return nil, err
	}

	ov := &SystemOverview{Cache: r.CacheStats()}
	deptSet := make(map[string]struct{})
	for _, ns := range records {
		stats, err := r.Stats(ctx, ns.ID)
		if err != nil {
			return nil, err
		}
		ov.TotalNamespaces++
		ov.TotalDocuments += stats.DocumentCount
		ov.TotalChunks += stats.ChunkCount
		ov.Namespaces = append(ov.Namespaces, stats)
		if ns.Department != "" {
			deptSet[ns.Department] = struct{}{}
		}
	}

	ov.Departments = make([]string, 0, len(deptSet))
	for d := range deptSet {
		ov.Departments = append(ov.Departments, d)
	}
	sort.Strings(ov.Departments)
	return ov, nil
}
