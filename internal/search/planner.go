package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rasch/internal/direction"
	"rasch/internal/rail"
)

// Task is the line one agent has to serve.
type Task struct {
	Handle    int
	Start     rail.Position
	Target    rail.Position
	Heading   direction.Direction
	Departure int
}

// Problem is everything a search needs.
type Problem struct {
	Network *Network
	Tasks   []Task
	Horizon int
}

// Hop is the cell change caused by one action. From equals To for a stop.
type Hop struct {
	From rail.Position
	To   rail.Position
}

// AgentPlan is the schedule of one agent. Actions[k] is sent k+1 steps after Spawn.
type AgentPlan struct {
	Handle  int
	Spawn   int
	Arrival int
	Actions []rail.Action
	Hops    []Hop
}

// Plan is a complete schedule for every task, in handle order.
type Plan struct {
	Agents []AgentPlan
}

// Facts renders the plan as agent_action and trans facts.
func (p Plan) Facts() []string {
	var facts []string
	for _, a := range p.Agents {
		for k, act := range a.Actions {
			h := a.Hops[k]
			facts = append(facts,
				fmt.Sprintf("agent_action(%d,%d,%d)", a.Handle, int(act), k),
				fmt.Sprintf("trans(%d,%s,%s,%d)", a.Handle, h.From, h.To, k),
			)
		}
	}
	return facts
}

// Makespan is the step after which every agent has arrived.
func (p Plan) Makespan() int {
	m := 0
	for _, a := range p.Agents {
		if a.Arrival+1 > m {
			m = a.Arrival + 1
		}
	}
	return m
}

// Stats counts search effort.
type Stats struct {
	Expanded  int
	Conflicts int
	Plans     int
}

// DefaultPreferences are the action orders tried, one candidate plan per order.
var DefaultPreferences = [][]rail.Action{
	{rail.MoveForward, rail.MoveLeft, rail.MoveRight, rail.StopMoving},
	{rail.MoveLeft, rail.MoveRight, rail.MoveForward, rail.StopMoving},
	{rail.MoveRight, rail.MoveLeft, rail.MoveForward, rail.StopMoving},
	{rail.StopMoving, rail.MoveForward, rail.MoveLeft, rail.MoveRight},
}

// Options tune Solve.
type Options struct {
	// MaxModels caps the number of distinct plans reported. Zero means one per preference.
	MaxModels   int
	Preferences [][]rail.Action
}

// Solve plans agents one at a time against a shared reservation table, once per
// preference order, and reports every distinct plan to onPlan. Agents are planned in
// handle order first; when that fails the other priority orders from agentOrders are
// tried. Finding no plan is not an error.
func Solve(ctx context.Context, p Problem, opts Options, onPlan func(Plan) error) (Stats, error) {
	var stats Stats
	prefs := opts.Preferences
	if len(prefs) == 0 {
		prefs = DefaultPreferences
	}
	limit := opts.MaxModels
	if limit <= 0 || limit > len(prefs) {
		limit = len(prefs)
	}

	seen := make(map[string]bool)
	for _, order := range prefs {
		if stats.Plans >= limit {
			break
		}
		plan, ok, err := planAll(ctx, p, order, &stats)
		if err != nil {
			return stats, err
		}
		if !ok {
			continue
		}
		key := strings.Join(plan.Facts(), " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		stats.Plans++
		if err := onPlan(plan); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func planAll(ctx context.Context, p Problem, order []rail.Action, stats *Stats) (Plan, bool, error) {
	for _, tasks := range agentOrders(p.Tasks) {
		plan, ok, err := planInOrder(ctx, p, tasks, order, stats)
		if err != nil || ok {
			return plan, ok, err
		}
	}
	return Plan{}, false, nil
}

func planInOrder(ctx context.Context, p Problem, tasks []Task, order []rail.Action, stats *Stats) (Plan, bool, error) {
	res := newReservations()
	var plan Plan
	for _, task := range tasks {
		ap, ok, err := planAgent(ctx, p.Network, p.Horizon, task, order, res, stats)
		if err != nil || !ok {
			return Plan{}, false, err
		}
		res.commit(task, ap)
		plan.Agents = append(plan.Agents, ap)
	}
	sort.Slice(plan.Agents, func(i, j int) bool { return plan.Agents[i].Handle < plan.Agents[j].Handle })
	return plan, true, nil
}

// agentOrders lists the planning priorities to try: handle order, reverse handle
// order, then each agent moved to the front of handle order. Duplicates are dropped.
func agentOrders(tasks []Task) [][]Task {
	byHandle := append([]Task(nil), tasks...)
	sort.Slice(byHandle, func(i, j int) bool { return byHandle[i].Handle < byHandle[j].Handle })

	reversed := make([]Task, len(byHandle))
	for i, t := range byHandle {
		reversed[len(byHandle)-1-i] = t
	}
	orders := [][]Task{byHandle, reversed}
	for i := 1; i < len(byHandle); i++ {
		front := append([]Task{byHandle[i]}, byHandle[:i]...)
		orders = append(orders, append(front, byHandle[i+1:]...))
	}

	seen := make(map[string]bool)
	var out [][]Task
	for _, o := range orders {
		key := fmt.Sprint(handles(o))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func handles(tasks []Task) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.Handle
	}
	return out
}

type slot struct {
	pos rail.Position
	t   int
}

// reservations are indexed by step. occupied means present at the end of the step,
// claimed holds the handle that enters the cell during the step, blocked means
// another agent enters the cell in the following step so it must be empty at the
// end of this one.
type reservations struct {
	occupied map[slot]bool
	claimed  map[slot]int
	blocked  map[slot]bool
}

func newReservations() *reservations {
	return &reservations{
		occupied: make(map[slot]bool),
		claimed:  make(map[slot]int),
		blocked:  make(map[slot]bool),
	}
}

func (r *reservations) isClaimed(x rail.Position, t int) bool {
	_, ok := r.claimed[slot{x, t}]
	return ok
}

func (r *reservations) canEnter(x rail.Position, t int) bool {
	return !r.occupied[slot{x, t - 1}] && r.canStay(x, t)
}

func (r *reservations) canStay(x rail.Position, t int) bool {
	return !r.isClaimed(x, t) && !r.occupied[slot{x, t}] && !r.blocked[slot{x, t}]
}

func (r *reservations) canArrive(x rail.Position, t int) bool {
	return !r.occupied[slot{x, t - 1}] && !r.isClaimed(x, t)
}

func (r *reservations) enter(handle int, x rail.Position, t int) {
	r.claimed[slot{x, t}] = handle
	r.blocked[slot{x, t - 1}] = true
}

func (r *reservations) commit(task Task, ap AgentPlan) {
	r.enter(task.Handle, task.Start, ap.Spawn)
	if len(ap.Hops) == 0 {
		return
	}
	r.occupied[slot{task.Start, ap.Spawn}] = true
	for k, h := range ap.Hops {
		t := ap.Spawn + 1 + k
		if h.From != h.To {
			r.enter(task.Handle, h.To, t)
		}
		if t != ap.Arrival {
			r.occupied[slot{h.To, t}] = true
		}
	}
}

type node struct {
	state State
	t     int
}

type edge struct {
	prev   node
	action rail.Action
}

func planAgent(ctx context.Context, net *Network, horizon int, task Task, order []rail.Action, res *reservations, stats *Stats) (AgentPlan, bool, error) {
	// A waiting agent spawns at the first step its start cell is free and loses a
	// contested start cell only to a lower handle.
	spawn := task.Departure
	for ; spawn < horizon; spawn++ {
		if !res.occupied[slot{task.Start, spawn - 1}] && !res.isClaimed(task.Start, spawn) {
			break
		}
		stats.Conflicts++
		if by, ok := res.claimed[slot{task.Start, spawn}]; ok && by > task.Handle {
			return AgentPlan{}, false, nil
		}
	}
	if spawn >= horizon {
		return AgentPlan{}, false, nil
	}
	ap := AgentPlan{Handle: task.Handle, Spawn: spawn, Arrival: spawn}
	if task.Start == task.Target {
		return ap, true, nil
	}
	start := node{State{task.Start, task.Heading}, spawn}
	if res.blocked[slot{task.Start, spawn}] || !net.Reaches(task.Handle, start.state) {
		return AgentPlan{}, false, nil
	}

	parents := map[node]edge{}
	visited := map[node]bool{start: true}
	queue := []node{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		stats.Expanded++
		if stats.Expanded%256 == 0 {
			if err := ctx.Err(); err != nil {
				return AgentPlan{}, false, err
			}
		}
		t := cur.t + 1
		if t >= horizon {
			continue
		}
		for _, action := range order {
			if action == rail.StopMoving {
				next := node{cur.state, t}
				if visited[next] {
					continue
				}
				if !res.canStay(cur.state.Pos, t) {
					stats.Conflicts++
					continue
				}
				visited[next] = true
				parents[next] = edge{cur, action}
				queue = append(queue, next)
				continue
			}
			for _, m := range net.Moves(cur.state) {
				if m.Action != action {
					continue
				}
				if m.To.Pos == task.Target {
					if !res.canArrive(task.Target, t) {
						stats.Conflicts++
						continue
					}
					ap.Arrival = t
					ap.Actions, ap.Hops = unwind(parents, start, cur)
					ap.Actions = append(ap.Actions, action)
					ap.Hops = append(ap.Hops, Hop{cur.state.Pos, task.Target})
					return ap, true, nil
				}
				next := node{m.To, t}
				if visited[next] || !net.Reaches(task.Handle, m.To) {
					continue
				}
				if !res.canEnter(m.To.Pos, t) {
					stats.Conflicts++
					continue
				}
				visited[next] = true
				parents[next] = edge{cur, action}
				queue = append(queue, next)
			}
		}
	}
	return AgentPlan{}, false, nil
}

// unwind returns the actions and hops that lead from start to n.
func unwind(parents map[node]edge, start, n node) ([]rail.Action, []Hop) {
	var (
		actions []rail.Action
		hops    []Hop
	)
	for n != start {
		e := parents[n]
		actions = append(actions, e.action)
		hops = append(hops, Hop{e.prev.state.Pos, n.state.Pos})
		n = e.prev
	}
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
		hops[i], hops[j] = hops[j], hops[i]
	}
	return actions, hops
}
