package form

// Navigator is the group-sequencing state of a session. Its methods return
// a new Navigator and never modify the receiver.
type Navigator struct {
	index   int
	visited []bool
}

func NewNavigator(groupCount int) Navigator {
	return Navigator{visited: make([]bool, groupCount)}
}

// NavigatorAt restores a navigator at index with the given visited groups.
func NavigatorAt(groupCount, index int, visited []int) Navigator {
	n := NewNavigator(groupCount)
	n.index = clamp(index, groupCount)
	for _, i := range visited {
		if i >= 0 && i < groupCount {
			n.visited[i] = true
		}
	}
	return n
}

func (n Navigator) Index() int { return n.index }
func (n Navigator) Count() int { return len(n.visited) }

// IsLastGroup reports whether "next" should act as "submit".
func (n Navigator) IsLastGroup() bool {
	return len(n.visited) > 0 && n.index == len(n.visited)-1
}

// Next marks the current group visited and advances, clamped to the last
// group.
func (n Navigator) Next() Navigator {
	out := n.leave()
	out.index = clamp(n.index+1, len(n.visited))
	return out
}

// Previous marks the current group visited and steps back, clamped to zero.
func (n Navigator) Previous() Navigator {
	out := n.leave()
	out.index = clamp(n.index-1, len(n.visited))
	return out
}

// VisitAll marks every group visited, as on a submission attempt.
func (n Navigator) VisitAll() Navigator {
	out := n.clone()
	for i := range out.visited {
		out.visited[i] = true
	}
	return out
}

// Progress is (index+1)/groupCount, or 0 for an empty template.
func (n Navigator) Progress() float64 {
	if len(n.visited) == 0 {
		return 0
	}
	return float64(n.index+1) / float64(len(n.visited))
}

func (n Navigator) Visited(i int) bool {
	return i >= 0 && i < len(n.visited) && n.visited[i]
}

// VisitedGroups lists the visited group indexes in order.
func (n Navigator) VisitedGroups() []int {
	out := []int{}
	for i, v := range n.visited {
		if v {
			out = append(out, i)
		}
	}
	return out
}

func (n Navigator) leave() Navigator {
	out := n.clone()
	if n.index < len(out.visited) {
		out.visited[n.index] = true
	}
	return out
}

func (n Navigator) clone() Navigator {
	v := make([]bool, len(n.visited))
	copy(v, n.visited)
	return Navigator{index: n.index, visited: v}
}

func clamp(i, count int) int {
	if i >= count {
		i = count - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
