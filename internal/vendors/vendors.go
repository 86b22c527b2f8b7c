// Package vendors normalizes the many spellings of a vendor name found in
// receipts and groups them under one canonical name.
package vendors

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/arrowlimo/alms/internal/model"
)

var (
	storeNumber = regexp.MustCompile(`#\s*\d+`)
	nonAlnum    = regexp.MustCompile(`[^A-Z0-9 ]+`)
	suffixes    = map[string]bool{"LTD": true, "INC": true, "CORP": true, "CO": true, "LLC": true, "LIMITED": true, "INCORPORATED": true, "CORPORATION": true}
)

// Normalize upper-cases a name, removes store numbers and punctuation, drops
// corporate suffixes and collapses whitespace. "Fas Gas #12, Ltd." becomes "FAS GAS".
func Normalize(name string) string {
	s := strings.ToUpper(name)
	s = storeNumber.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " AND ")
	s = strings.ReplaceAll(s, "'", "")
	s = nonAlnum.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	for len(words) > 1 && suffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over normalized names.
func Similarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

// Cluster is a group of raw spellings of one vendor.
type Cluster struct {
	Canonical string              `json:"canonical"`
	Members   []model.VendorCount `json:"members"`
	Total     int                 `json:"total"`
}

type group struct {
	key     string
	members []model.VendorCount
	total   int
}

// ClusterNames groups names whose normalized forms are at least threshold
// similar. Larger groups seed clusters first so the result does not depend on
// input order. A cluster's canonical name is its most used raw spelling;
// ties go to the shorter, then the lexically smaller spelling.
func ClusterNames(names []model.VendorCount, threshold float64) []Cluster {
	byKey := map[string]*group{}
	for _, n := range names {
		key := Normalize(n.Name)
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
		}
		g.members = append(g.members, n)
		g.total += n.Count
	}
	groups := make([]*group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].total != groups[j].total {
			return groups[i].total > groups[j].total
		}
		return groups[i].key < groups[j].key
	})

	var seeds []*group
	merged := map[*group][]*group{}
	for _, g := range groups {
		placed := false
		for _, s := range seeds {
			if similarity(s.key, g.key) >= threshold {
				merged[s] = append(merged[s], g)
				placed = true
				break
			}
		}
		if !placed {
			seeds = append(seeds, g)
			merged[g] = []*group{g}
		}
	}

	out := make([]Cluster, 0, len(seeds))
	for _, s := range seeds {
		var c Cluster
		for _, g := range merged[s] {
			c.Members = append(c.Members, g.members...)
			c.Total += g.total
		}
		c.Canonical = canonical(c.Members)
		sort.Slice(c.Members, func(i, j int) bool { return c.Members[i].Name < c.Members[j].Name })
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

func canonical(members []model.VendorCount) string {
	best := members[0]
	for _, m := range members[1:] {
		switch {
		case m.Count > best.Count:
			best = m
		case m.Count < best.Count:
		case len(m.Name) < len(best.Name):
			best = m
		case len(m.Name) == len(best.Name) && m.Name < best.Name:
			best = m
		}
	}
	return best.Name
}

// Aliases maps every member spelling of every cluster to its canonical name.
func Aliases(clusters []Cluster) []model.VendorAlias {
	var out []model.VendorAlias
	for _, c := range clusters {
		for _, m := range c.Members {
			out = append(out, model.VendorAlias{Alias: m.Name, Canonical: c.Canonical})
		}
	}
	return out
}

// Store is the vendor persistence used by Service.
type Store interface {
	VendorCounts(ctx context.Context) ([]model.VendorCount, error)
	ApplyVendorAliases(ctx context.Context, actor string, aliases []model.VendorAlias) (int64, error)
}

// Service plans and applies vendor normalization.
type Service struct {
	store     Store
	threshold float64
	logger    *slog.Logger
}

// NewService creates a vendor normalization service.
func NewService(store Store, threshold float64, logger *slog.Logger) *Service {
	return &Service{store: store, threshold: threshold, logger: logger}
}

// Plan returns the clusters for the current receipt vendor names. Only
// clusters with more than one spelling are returned.
func (s *Service) Plan(ctx context.Context, threshold float64) ([]Cluster, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	names, err := s.store.VendorCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("vendors: %w", err)
	}
	var out []Cluster
	for _, c := range ClusterNames(names, threshold) {
		if len(c.Members) > 1 {
			out = append(out, c)
		}
	}
	return out, nil
}

// Apply stores aliases for every planned cluster and rewrites
// receipts.canonical_vendor. Returns the clusters and receipts updated.
func (s *Service) Apply(ctx context.Context, actor string, threshold float64) ([]Cluster, int64, error) {
	clusters, err := s.Plan(ctx, threshold)
	if err != nil {
		return nil, 0, err
	}
	if len(clusters) == 0 {
		return nil, 0, nil
	}
	updated, err := s.store.ApplyVendorAliases(ctx, actor, Aliases(clusters))
	if err != nil {
		return nil, 0, fmt.Errorf("vendors: %w", err)
	}
	s.logger.Info("vendors: normalized", "clusters", len(clusters), "receipts_updated", updated)
	return clusters, updated, nil
}
