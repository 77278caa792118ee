// Package candidates loads the normalized cluster files produced by the
// upstream fetch/clean/cluster stages. The engine trusts their contents.
package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/llm"
	"github.com/nmery/needscan/internal/types"
)

// Loader reads candidate clusters from files matching a glob pattern.
// An optional embedder fills in centroids for clusters whose files lack
// them.
type Loader struct {
	embedder llm.Embedder
	log      *zap.Logger
}

// NewLoader creates a loader. embedder may be nil, in which case clusters
// without centroids are rejected.
func NewLoader(embedder llm.Embedder, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{embedder: embedder, log: log}
}

type clusterFile struct {
	Clusters []*types.Cluster `json:"clusters"`
}

// Load reads every file matching pattern and returns the clusters ordered
// by id. Files may hold either a bare JSON array of clusters or an object
// with a "clusters" key.
func (l *Loader) Load(ctx context.Context, pattern string) ([]*types.Cluster, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no candidate files match %q", pattern)
	}
	sort.Strings(paths)

	var clusters []*types.Cluster
	seen := make(map[int]string)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var file clusterFile
		if err := json.Unmarshal(data, &file); err != nil || file.Clusters == nil {
			var bare []*types.Cluster
			if err := json.Unmarshal(data, &bare); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			file.Clusters = bare
		}

		for _, c := range file.Clusters {
			if prev, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("cluster id %d appears in both %s and %s", c.ID, prev, path)
			}
			seen[c.ID] = path

			if c.MemberCount == 0 {
				c.MemberCount = len(c.Examples)
			}
			if len(c.Centroid) == 0 {
				if err := l.fillCentroid(ctx, c); err != nil {
					return nil, fmt.Errorf("cluster %d in %s: %w", c.ID, path, err)
				}
			}
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("invalid cluster in %s: %w", path, err)
			}
			clusters = append(clusters, c)
		}
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	l.log.Info("loaded candidate clusters",
		zap.Int("clusters", len(clusters)),
		zap.Int("files", len(paths)))
	return clusters, nil
}

func (l *Loader) fillCentroid(ctx context.Context, c *types.Cluster) error {
	if l.embedder == nil {
		return fmt.Errorf("no centroid and no embedder configured")
	}
	var titles []string
	for _, it := range c.Examples {
		titles = append(titles, it.Title)
	}
	vector, err := l.embedder.Embed(ctx, strings.Join(titles, "\n"))
	if err != nil {
		return fmt.Errorf("failed to embed cluster text: %w", err)
	}
	c.Centroid = vector
	return nil
}
