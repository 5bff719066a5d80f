// Package index provides the in-process approximate-nearest-neighbor
// index the search path queries. It is an inverted-file (IVF) structure:
// vectors are k-means-clustered into lists, and a query scans only the
// few lists whose centroids are closest. Snapshots are immutable; the
// Manager swaps them atomically on rebuild.
package index

import (
	"math"
	"math/rand"
	"sort"

	"manualqa/types"
)

// Hit is one ranked candidate from a snapshot query.
type Hit struct {
	Ref      types.ChunkRef
	Distance float64
}

// Options fix the geometry of a snapshot. Lists is the clustering factor
// (clamped to the corpus size at build); Probes is how many lists a query
// scans. Probing every list degenerates to an exact search.
type Options struct {
	Dim    int
	Metric types.Metric
	Lists  int
	Probes int
	Seed   int64
}

const kmeansMaxIters = 15

type entry struct {
	ref types.ChunkRef
	vec []float32
}

// IVF is one immutable index snapshot. Safe for concurrent readers.
type IVF struct {
	dim       int
	metric    types.Metric
	probes    int
	centroids [][]float32
	lists     [][]entry
	size      int
}

// Build clusters the given corpus into a fresh snapshot. Vectors must all
// have opts.Dim dimensions; a stray mismatch aborts the build rather than
// producing an index that silently dropped data.
func Build(items []types.EmbeddedChunk, opts Options) (*IVF, error) {
	if opts.Dim <= 0 {
		return nil, &types.DimensionMismatchError{Want: opts.Dim, Got: 0}
	}
	for _, it := range items {
		if len(it.Embedding) != opts.Dim {
			return nil, &types.DimensionMismatchError{Want: opts.Dim, Got: len(it.Embedding)}
		}
	}

	ivf := &IVF{
		dim:    opts.Dim,
		metric: opts.Metric,
		probes: opts.Probes,
		size:   len(items),
	}
	if ivf.probes < 1 {
		ivf.probes = 1
	}
	if len(items) == 0 {
		return ivf, nil
	}

	entries := make([]entry, len(items))
	for i, it := range items {
		vec := it.Embedding
		if opts.Metric == types.MetricCosine {
			vec = unit(vec)
		}
		entries[i] = entry{ref: it.Ref, vec: vec}
	}

	nlist := opts.Lists
	if nlist < 1 {
		nlist = 1
	}
	if nlist > len(entries) {
		nlist = len(entries)
	}

	centroids, assign := kmeans(entries, nlist, opts)

	lists := make([][]entry, len(centroids))
	for i, e := range entries {
		c := assign[i]
		lists[c] = append(lists[c], e)
	}

	ivf.centroids = centroids
	ivf.lists = lists
	return ivf, nil
}

// kmeans runs Lloyd's algorithm with a seeded init so identical corpora
// build identical snapshots.
func kmeans(entries []entry, nlist int, opts Options) ([][]float32, []int) {
	rng := rand.New(rand.NewSource(opts.Seed))

	centroids := make([][]float32, nlist)
	for i, idx := range rng.Perm(len(entries))[:nlist] {
		c := make([]float32, opts.Dim)
		copy(c, entries[idx].vec)
		centroids[i] = c
	}

	assign := make([]int, len(entries))
	for iter := 0; iter < kmeansMaxIters; iter++ {
		changed := false
		for i, e := range entries {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := distance(opts.Metric, e.vec, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best || iter == 0 {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float64, opts.Dim)
		}
		for i, e := range entries {
			c := assign[i]
			counts[c]++
			for d, v := range e.vec {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centroid.
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
			if opts.Metric == types.MetricCosine {
				centroids[c] = unit(centroids[c])
			}
		}
	}
	return centroids, assign
}

// Search returns up to k hits ordered by ascending distance, ties broken
// by (document_id, chunk_index) so pagination over equal scores is
// stable. An empty snapshot yields an empty result, not an error.
func (ivf *IVF) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ivf.dim {
		return nil, &types.DimensionMismatchError{Want: ivf.dim, Got: len(query)}
	}
	if ivf.size == 0 || k <= 0 {
		return []Hit{}, nil
	}

	if ivf.metric == types.MetricCosine {
		query = unit(query)
	}

	type ranked struct {
		list int
		dist float64
	}
	order := make([]ranked, len(ivf.centroids))
	for i, c := range ivf.centroids {
		order[i] = ranked{list: i, dist: distance(ivf.metric, query, c)}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].dist != order[j].dist {
			return order[i].dist < order[j].dist
		}
		return order[i].list < order[j].list
	})

	probes := ivf.probes
	if probes > len(order) {
		probes = len(order)
	}

	hits := []Hit{}
	for _, r := range order[:probes] {
		for _, e := range ivf.lists[r.list] {
			hits = append(hits, Hit{Ref: e.ref, Distance: distance(ivf.metric, query, e.vec)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].Ref.DocumentID != hits[j].Ref.DocumentID {
			return hits[i].Ref.DocumentID < hits[j].Ref.DocumentID
		}
		return hits[i].Ref.ChunkIndex < hits[j].Ref.ChunkIndex
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Size is the number of indexed vectors.
func (ivf *IVF) Size() int {
	return ivf.size
}

// Lists is the number of clusters actually built.
func (ivf *IVF) Lists() int {
	return len(ivf.centroids)
}

func distance(metric types.Metric, a, b []float32) float64 {
	if metric == types.MetricCosine {
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return 1 - dot
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// unit returns a normalized copy, leaving the input untouched.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
