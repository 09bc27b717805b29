package flowengine

// edgeKey identifies one directed edge for classification and firing
// lookups.
type edgeKey struct {
	source string
	target string
}

// runGraph implements the Graph Executor (SPEC_FULL.md §4.5): classify
// edges via a DFS coloring pass, then dispatch to the DAG fast path or
// the cyclic ready-queue BFS path depending on whether any back-edge
// was found.
func runGraph(ctx *Context, nodes []GraphNodeConfig, edges []GraphEdgeConfig, r *flowRunner) error {
	backEdges, cyclic := classifyGraph(nodes, edges)
	if !cyclic {
		return runGraphDAG(ctx, nodes, edges, r)
	}
	return runGraphCyclic(ctx, nodes, edges, backEdges, r)
}

// classifyGraph runs a white/gray/black DFS over the node/edge set. An
// edge whose target is gray when visited is a back-edge — the
// signature of a cycle.
func classifyGraph(nodes []GraphNodeConfig, edges []GraphEdgeConfig) (map[edgeKey]bool, bool) {
	adj := map[string][]GraphEdgeConfig{}
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e)
	}

	const white, gray, black = 0, 1, 2
	color := map[string]int{}
	backEdges := map[edgeKey]bool{}
	cyclic := false

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		for _, e := range adj[id] {
			switch color[e.Target] {
			case gray:
				backEdges[edgeKey{e.Source, e.Target}] = true
				cyclic = true
			case white:
				visit(e.Target)
			}
		}
		color[id] = black
	}

	for _, n := range nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}

	return backEdges, cyclic
}

type graphIndex struct {
	nodeByID  map[string]GraphNodeConfig
	indexOf   map[string]int
	incoming  map[string][]GraphEdgeConfig
	outgoing  map[string][]GraphEdgeConfig
	indegree  map[string]int
	maxVisits map[string]int
}

func buildGraphIndex(nodes []GraphNodeConfig, edges []GraphEdgeConfig) *graphIndex {
	idx := &graphIndex{
		nodeByID:  make(map[string]GraphNodeConfig, len(nodes)),
		indexOf:   make(map[string]int, len(nodes)),
		incoming:  make(map[string][]GraphEdgeConfig),
		outgoing:  make(map[string][]GraphEdgeConfig),
		indegree:  make(map[string]int, len(nodes)),
		maxVisits: make(map[string]int),
	}
	for i, n := range nodes {
		idx.nodeByID[n.ID] = n
		idx.indexOf[n.ID] = i
		idx.indegree[n.ID] = 0
		if n.MaxVisits != nil {
			idx.maxVisits[n.ID] = *n.MaxVisits
		}
	}
	for _, e := range edges {
		idx.incoming[e.Target] = append(idx.incoming[e.Target], e)
		idx.outgoing[e.Source] = append(idx.outgoing[e.Source], e)
		idx.indegree[e.Target]++
	}
	return idx
}

// reachable reports whether nodeID should run given which upstream
// nodes have already run and what active port each left behind. A node
// with no incoming edges is always reachable (a graph root). Otherwise
// it is reachable if at least one incoming edge fired: its source ran
// and either the edge carries no port or the port matches the source's
// active port (SPEC_FULL.md §4.5, DAG path step 1/3).
func (idx *graphIndex) reachable(nodeID string, ran map[string]bool, activePort map[string]string) bool {
	incoming := idx.incoming[nodeID]
	if len(incoming) == 0 {
		return true
	}
	for _, e := range incoming {
		if !ran[e.Source] {
			continue
		}
		if e.Port == "" || e.Port == activePort[e.Source] {
			return true
		}
	}
	return false
}

// runGraphDAG is the acyclic fast path: a Kahn's-algorithm topological
// pass, always breaking ties toward the node with the smallest
// declaration index among those currently ready.
func runGraphDAG(ctx *Context, nodes []GraphNodeConfig, edges []GraphEdgeConfig, r *flowRunner) error {
	idx := buildGraphIndex(nodes, edges)
	indegree := make(map[string]int, len(idx.indegree))
	for id, d := range idx.indegree {
		indegree[id] = d
	}

	ready := map[string]bool{}
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			ready[n.ID] = true
		}
	}

	ran := map[string]bool{}
	activePort := map[string]string{}

	for len(ready) > 0 {
		pick := pickLowestIndex(ready, idx.indexOf)
		delete(ready, pick)
		node := idx.nodeByID[pick]

		if err := r.guard.checkDeadline(pick); err != nil {
			return err
		}

		if !idx.reachable(pick, ran, activePort) {
			ctx.Metadata.AddSkipped(node.Component)
			r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, pick, "unreachable")
			ran[pick] = false
		} else {
			ctx.clearActivePort()
			comp, err := resolveComponent(r.components, node.Component)
			if err != nil {
				return err
			}

			outcome := invokeComponent(ctx, comp, idx.indexOf[pick], pick, r)
			if outcome.suspended {
				return nil
			}

			if outcome.err != nil {
				switch outcome.err.(type) {
				case *TimeoutError, *DeadlineCheckError:
					return outcome.err
				}
				ctx.Metadata.AddError(node.Component, outcome.err)
				switch effectiveOnError(node.OnError) {
				case "fail":
					return outcome.err
				case "skip":
					ctx.Metadata.AddSkipped(node.Component)
					r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, pick, "on_error_skip")
					ran[pick] = false
				case "continue":
					ran[pick] = true
					activePort[pick] = ""
					ctx.Metadata.CompletedNodes[pick] = true
				}
			} else {
				ran[pick] = true
				activePort[pick] = ctx.ActivePort()
				ctx.Metadata.CompletedNodes[pick] = true
			}
		}

		for _, e := range idx.outgoing[pick] {
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				ready[e.Target] = true
			}
		}
	}

	return nil
}

func pickLowestIndex(ready map[string]bool, indexOf map[string]int) string {
	best := -1
	var pick string
	for id := range ready {
		if best == -1 || indexOf[id] < best {
			best = indexOf[id]
			pick = id
		}
	}
	return pick
}

// runGraphCyclic is the ready-queue BFS path for graphs containing at
// least one back-edge, bounded by max_iterations with per-node visit
// caps (SPEC_FULL.md §4.5).
func runGraphCyclic(ctx *Context, nodes []GraphNodeConfig, edges []GraphEdgeConfig, backEdges map[edgeKey]bool, r *flowRunner) error {
	idx := buildGraphIndex(nodes, edges)
	participants := cycleParticipants(edges, backEdges)

	var queue []string
	for _, n := range nodes {
		if idx.indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	ran := map[string]bool{}
	activePort := map[string]string{}
	stepCounter := 0

	r.hooks.notifyIterationStart(ctx.Metadata.FlowID, ctx.Metadata.IterationCount)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if limit, ok := idx.maxVisits[id]; ok && ctx.Metadata.NodeVisitCounts[id] >= limit {
			continue
		}

		if err := r.guard.checkDeadline(id); err != nil {
			return err
		}

		node := idx.nodeByID[id]

		if !idx.reachable(id, ran, activePort) {
			ctx.Metadata.AddSkipped(node.Component)
			r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, id, "unreachable")
			ran[id] = false
		} else {
			ctx.clearActivePort()
			comp, err := resolveComponent(r.components, node.Component)
			if err != nil {
				return err
			}

			outcome := invokeComponent(ctx, comp, stepCounter, id, r)
			stepCounter++
			ctx.Metadata.NodeVisitCounts[id]++

			if outcome.suspended {
				return nil
			}

			if outcome.err != nil {
				switch outcome.err.(type) {
				case *TimeoutError, *DeadlineCheckError:
					return outcome.err
				}
				ctx.Metadata.AddError(node.Component, outcome.err)
				switch effectiveOnError(node.OnError) {
				case "fail":
					return outcome.err
				case "skip":
					ctx.Metadata.AddSkipped(node.Component)
					r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, id, "on_error_skip")
					ran[id] = false
				case "continue":
					ran[id] = true
					activePort[id] = ""
					if !participants[id] {
						ctx.Metadata.CompletedNodes[id] = true
					}
				}
			} else {
				ran[id] = true
				activePort[id] = ctx.ActivePort()
				if !participants[id] {
					ctx.Metadata.CompletedNodes[id] = true
				}
			}
		}

		if !ran[id] {
			continue
		}

		for _, e := range idx.outgoing[id] {
			fires := e.Port == "" || e.Port == activePort[id]
			if !fires {
				continue
			}

			if backEdges[edgeKey{e.Source, e.Target}] {
				completedIteration := ctx.Metadata.IterationCount
				r.hooks.notifyIterationComplete(ctx.Metadata.FlowID, completedIteration)
				ctx.Metadata.IterationCount++

				if ctx.Metadata.IterationCount >= r.settings.MaxIterations {
					entry := e.Target
					ctx.Metadata.MaxIterationsReached = true
					r.hooks.notifyMaxIterations(ctx.Metadata.FlowID, r.settings.MaxIterations, ctx.Metadata.IterationCount, entry)
					switch r.settings.OnMaxIterations {
					case "fail":
						return &MaxIterationsError{
							MaxIterations:    r.settings.MaxIterations,
							ActualIterations: ctx.Metadata.IterationCount,
							CycleEntryNode:   entry,
						}
					case "warn":
						if r.logger != nil {
							r.logger.Warn("max iterations reached", "node", entry, "max_iterations", r.settings.MaxIterations, "actual", ctx.Metadata.IterationCount)
						}
						fallthrough
					default: // exit, warn
						return nil
					}
				}
				r.hooks.notifyIterationStart(ctx.Metadata.FlowID, ctx.Metadata.IterationCount)
			}

			queue = append(queue, e.Target)
		}
	}

	r.hooks.notifyIterationComplete(ctx.Metadata.FlowID, ctx.Metadata.IterationCount)
	return nil
}

// cycleParticipants finds every node lying on some cycle: for each
// back-edge, the nodes reachable forward from its target that can also
// reach back to its source form the loop body (SPEC_FULL.md §9,
// "Cycles and iteration bookkeeping").
func cycleParticipants(edges []GraphEdgeConfig, backEdges map[edgeKey]bool) map[string]bool {
	fwd := map[string][]string{}
	rev := map[string][]string{}
	for _, e := range edges {
		fwd[e.Source] = append(fwd[e.Source], e.Target)
		rev[e.Target] = append(rev[e.Target], e.Source)
	}

	participants := map[string]bool{}
	for k := range backEdges {
		forward := bfsReachable(fwd, k.target)
		backward := bfsReachable(rev, k.source)
		for id := range forward {
			if backward[id] {
				participants[id] = true
			}
		}
		participants[k.source] = true
		participants[k.target] = true
	}
	return participants
}

func bfsReachable(adj map[string][]string, start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
