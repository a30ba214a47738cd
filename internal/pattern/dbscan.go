package pattern

import (
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region dbscan

// point is one embedding under clustering, in a fixed input order so that
// cluster assignment is deterministic across runs.
type point struct {
	id  string
	vec vector.Vec
}

const (
	labelUnvisited = 0
	labelNoise     = -1
)

// dbscan assigns each point a cluster index starting at 1, or noise. Points
// are visited in input order; neighborhoods expand breadth-first, also in
// input order, so identical inputs always produce identical clusters.
func dbscan(points []point, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	clusterID := 0

	for i := range points {
		if labels[i] != labelUnvisited {
			continue
		}
		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = labelNoise
			continue
		}

		clusterID++
		labels[i] = clusterID
		expand(points, labels, neighbors, clusterID, eps, minSamples)
	}
	return labels
}

// expand grows a cluster from a core point's neighborhood.
func expand(points []point, labels []int, frontier []int, clusterID int, eps float64, minSamples int) {
	for k := 0; k < len(frontier); k++ {
		j := frontier[k]
		if labels[j] == labelNoise {
			labels[j] = clusterID // border point reclaimed from noise
			continue
		}
		if labels[j] != labelUnvisited {
			continue
		}
		labels[j] = clusterID

		neighbors := regionQuery(points, j, eps)
		if len(neighbors) >= minSamples {
			frontier = append(frontier, neighbors...)
		}
	}
}

// regionQuery returns the indices within eps cosine distance of points[i],
// including i itself, in input order.
func regionQuery(points []point, i int, eps float64) []int {
	var out []int
	for j := range points {
		if cosineDistance(points[i].vec, points[j].vec) <= eps {
			out = append(out, j)
		}
	}
	return out
}

func cosineDistance(a, b vector.Vec) float64 {
	return 1 - vector.Cosine(a, b)
}

// #endregion dbscan
