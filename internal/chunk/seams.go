package chunk

import "math"

// updateSeams recomputes the seam levels of a chunk about to be rebuilt and
// queues every face neighbour whose own seam levels changed as a result.
func (m *Manager) updateSeams(id int, c *Chunk) {
	c.seams = m.seamsOf(id, c)
	m.adjacent = m.neighbours.AppendTo(m.adjacent[:0])

	for _, nid := range m.adjacent {
		if nid == id {
			continue
		}
		n := m.chunk(nid)
		if n.removing {
			continue
		}
		if s := m.seamsOf(nid, n); s != n.seams {
			n.seams = s
			m.sm.AddState(nid, m.stUpdate)
		}
	}
}

// seamsOf returns, per direction, how many levels coarser the coarsest face
// neighbour of c is. It leaves the touching chunks in m.neighbours.
func (m *Manager) seamsOf(id int, c *Chunk) [6]int {
	var seams [6]int
	eps := c.Step * 0.5

	m.neighbours.Clear()
	m.chunkIndex.QueryBox(c.Box.Expand(eps), &m.neighbours)
	for _, nid := range m.neighbours.IDs() {
		if nid == id {
			continue
		}
		n := m.chunk(nid)
		if n.removing || n.Level <= c.Level {
			continue
		}
		level := min(n.Level-c.Level, m.maxSeam)
		for a := 0; a < 3; a++ {
			if !sharesFace(c, n, a, eps) {
				continue
			}
			if math.Abs(n.Box.Min[a]-c.Box.Max[a]) < eps {
				seams[a] = max(seams[a], level)
			}
			if math.Abs(n.Box.Max[a]-c.Box.Min[a]) < eps {
				seams[3+a] = max(seams[3+a], level)
			}
		}
	}
	return seams
}

// sharesFace reports whether c and n overlap on both axes other than a.
func sharesFace(c, n *Chunk, a int, eps float64) bool {
	for b := 0; b < 3; b++ {
		if b == a {
			continue
		}
		if n.Box.Min[b] >= c.Box.Max[b]-eps || n.Box.Max[b] <= c.Box.Min[b]+eps {
			return false
		}
	}
	return true
}
