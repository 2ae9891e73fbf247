package services

import (
	"sort"
	"strconv"
	"strings"
)

// Cycle is a loop in a survey's branch graph.
type Cycle struct {
	// Section is the section the search started from when the loop was found.
	Section *Section
	// Path lists section ids from the first section of the loop to the one that jumps back.
	Path []int64
}

// DetectCycles reports every distinct loop reachable through branch rules and question-level
// branch configurations. Targets that do not resolve to a section of the survey are ignored.
//
// The result is advisory: surveys with cycles can still be saved and taken.
func DetectCycles(survey *Survey) []Cycle {
	graph := branchGraph(survey)

	var (
		cycles  []Cycle
		path    []int64
		visited = make(map[int64]bool)
		onStack = make(map[int64]int)
		seen    = make(map[string]bool)
	)

	var visit func(root *Section, id int64)
	visit = func(root *Section, id int64) {
		visited[id] = true
		onStack[id] = len(path)
		path = append(path, id)

		for _, next := range graph[id] {
			if idx, ok := onStack[next]; ok {
				loop := append([]int64(nil), path[idx:]...)
				if key := cycleKey(loop); !seen[key] {
					seen[key] = true
					cycles = append(cycles, Cycle{Section: root, Path: loop})
				}
				continue
			}
			if !visited[next] {
				visit(root, next)
			}
		}

		path = path[:len(path)-1]
		delete(onStack, id)
	}

	for _, sec := range survey.OrderedSections() {
		if !visited[sec.ID] {
			visit(sec, sec.ID)
		}
	}

	return cycles
}

// branchGraph builds section -> target adjacency lists, deduplicated and sorted by the target
// section's ordering so the search is deterministic.
func branchGraph(survey *Survey) map[int64][]int64 {
	ordering := make(map[int64]int, len(survey.Sections))
	for _, sec := range survey.Sections {
		ordering[sec.ID] = sec.Ordering
	}

	edges := make(map[int64]map[int64]bool)
	add := func(from int64, t Target) {
		to, ok := t.SectionID()
		if !ok {
			return
		}
		if _, exists := ordering[to]; !exists {
			return
		}
		if edges[from] == nil {
			edges[from] = make(map[int64]bool)
		}
		edges[from][to] = true
	}

	for _, sec := range survey.Sections {
		for _, rule := range sec.Rules {
			add(sec.ID, rule.Target())
		}
		for _, q := range survey.QuestionsIn(sec.ID) {
			if !q.Branches() {
				continue
			}
			for _, t := range q.BranchConfig {
				add(sec.ID, t)
			}
		}
	}

	graph := make(map[int64][]int64, len(edges))
	for from, tos := range edges {
		list := make([]int64, 0, len(tos))
		for to := range tos {
			list = append(list, to)
		}
		sort.Slice(list, func(i, j int) bool {
			if ordering[list[i]] != ordering[list[j]] {
				return ordering[list[i]] < ordering[list[j]]
			}
			return list[i] < list[j]
		})
		graph[from] = list
	}
	return graph
}

// cycleKey identifies a loop independently of where it was entered.
func cycleKey(loop []int64) string {
	start := 0
	for i, id := range loop {
		if id < loop[start] {
			start = i
		}
	}

	parts := make([]string, len(loop))
	for i := range loop {
		parts[i] = strconv.FormatInt(loop[(start+i)%len(loop)], 10)
	}
	return strings.Join(parts, ">")
}
