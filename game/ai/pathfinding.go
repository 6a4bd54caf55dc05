package ai

// neighborDeltas lists the 4-connected moves in expansion order: north, south, west, east.
var neighborDeltas = [4]Cell{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// FindPath returns the minimum-cost route from start to goal on grid, both inclusive.
// Entering a cell costs that cell's weight; moves are 4-connected.
//
// ok is false when no route exists: the grid is empty or ragged, an endpoint is out of
// bounds or blocked, or the goal is walled off. start == goal yields a one-cell route.
func FindPath(grid CostGrid, start, goal Cell) (Route, bool) {
	if !grid.Rectangular() {
		return nil, false
	}
	if _, ok := grid.Weight(start); !ok {
		return nil, false
	}
	if _, ok := grid.Weight(goal); !ok {
		return nil, false
	}
	if start == goal {
		return Route{start}, true
	}

	open := newFrontier()
	closed := make(map[Cell]bool)
	gScore := map[Cell]int{start: 0}
	cameFrom := make(map[Cell]Cell)

	open.push(start, 0, Manhattan(start, goal))

	for open.len() > 0 {
		cur, _ := open.pop()
		if closed[cur.cell] || cur.g != gScore[cur.cell] {
			continue
		}
		if cur.cell == goal {
			return reconstruct(cameFrom, start, goal), true
		}
		closed[cur.cell] = true

		for _, d := range neighborDeltas {
			next := Cell{cur.cell.Row + d.Row, cur.cell.Col + d.Col}
			if closed[next] {
				continue
			}
			w, ok := grid.Weight(next)
			if !ok {
				continue
			}
			ng := cur.g + w
			if prev, seen := gScore[next]; seen && ng >= prev {
				continue
			}
			gScore[next] = ng
			cameFrom[next] = cur.cell
			open.push(next, ng, Manhattan(next, goal))
		}
	}

	return nil, false
}

func reconstruct(cameFrom map[Cell]Cell, start, goal Cell) Route {
	path := Route{goal}
	for cur := goal; cur != start; {
		cur = cameFrom[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
