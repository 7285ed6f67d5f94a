package mangle

import (
	"fmt"

	"github.com/google/mangle/ast"

	"rasch/internal/direction"
	"rasch/internal/encoding"
	"rasch/internal/rail"
	"rasch/internal/search"
)

type instance struct {
	atoms   []ast.Atom
	tasks   []search.Task
	horizon int
}

// convert turns parsed instance facts into Mangle atoms. Position tuples are
// flattened into separate arguments and pools expand into one atom per member, so
// cell((1,2),0,(0;2)) becomes cell(1,2,0,0) and cell(1,2,0,2).
func convert(facts []encoding.Fact) (instance, error) {
	var inst instance
	limitSeen := false
	for _, f := range facts {
		atoms, err := atomsFor(f)
		if err != nil {
			return instance{}, err
		}
		inst.atoms = append(inst.atoms, atoms...)

		switch f.Predicate {
		case "schedule":
			task, err := taskFor(f)
			if err != nil {
				return instance{}, err
			}
			inst.tasks = append(inst.tasks, task)
		case "limit":
			if len(f.Args) != 1 {
				return instance{}, fmt.Errorf("%s: want 1 argument", f)
			}
			h, err := f.Args[0].Value()
			if err != nil {
				return instance{}, fmt.Errorf("%s: %w", f, err)
			}
			inst.horizon = h
			limitSeen = true
		}
	}
	if !limitSeen {
		return instance{}, fmt.Errorf("no limit fact")
	}
	return inst, nil
}

func atomsFor(f encoding.Fact) ([]ast.Atom, error) {
	combos := [][]ast.BaseTerm{nil}
	for _, arg := range f.Args {
		var options [][]ast.BaseTerm
		switch arg.Kind {
		case encoding.Int:
			options = [][]ast.BaseTerm{{ast.Number(int64(arg.Ints[0]))}}
		case encoding.Tuple:
			terms := make([]ast.BaseTerm, len(arg.Ints))
			for i, v := range arg.Ints {
				terms[i] = ast.Number(int64(v))
			}
			options = [][]ast.BaseTerm{terms}
		case encoding.Pool:
			for _, v := range arg.Ints {
				options = append(options, []ast.BaseTerm{ast.Number(int64(v))})
			}
		case encoding.Symbol:
			options = [][]ast.BaseTerm{{ast.String(arg.Name)}}
		default:
			return nil, fmt.Errorf("%s: unsupported argument %s", f, arg)
		}

		next := make([][]ast.BaseTerm, 0, len(combos)*len(options))
		for _, prefix := range combos {
			for _, opt := range options {
				terms := make([]ast.BaseTerm, 0, len(prefix)+len(opt))
				terms = append(terms, prefix...)
				terms = append(terms, opt...)
				next = append(next, terms)
			}
		}
		combos = next
	}

	atoms := make([]ast.Atom, len(combos))
	for i, terms := range combos {
		atoms[i] = ast.NewAtom(f.Predicate, terms...)
	}
	return atoms, nil
}

// taskFor reads schedule(Handle,(R,C),(R2,C2),Facing,Departure).
func taskFor(f encoding.Fact) (search.Task, error) {
	if len(f.Args) != 5 || f.Args[1].Kind != encoding.Tuple || f.Args[2].Kind != encoding.Tuple ||
		len(f.Args[1].Ints) != 2 || len(f.Args[2].Ints) != 2 {
		return search.Task{}, fmt.Errorf("%s: malformed schedule", f)
	}
	handle, err := f.Args[0].Value()
	if err != nil {
		return search.Task{}, fmt.Errorf("%s: %w", f, err)
	}
	facing, err := f.Args[3].Value()
	if err != nil {
		return search.Task{}, fmt.Errorf("%s: %w", f, err)
	}
	departure, err := f.Args[4].Value()
	if err != nil {
		return search.Task{}, fmt.Errorf("%s: %w", f, err)
	}
	if !direction.Direction(facing).Valid() {
		return search.Task{}, fmt.Errorf("%s: invalid direction %d", f, facing)
	}
	return search.Task{
		Handle:    handle,
		Start:     pos(int64(f.Args[1].Ints[0]), int64(f.Args[1].Ints[1])),
		Target:    pos(int64(f.Args[2].Ints[0]), int64(f.Args[2].Ints[1])),
		Heading:   direction.Direction(facing),
		Departure: departure,
	}, nil
}

func pos(r, c int64) rail.Position {
	return rail.Position{Row: int(r), Col: int(c)}
}

func dir(d int64) direction.Direction {
	return direction.Direction(d)
}

func action(a int64) rail.Action {
	return rail.Action(a)
}
