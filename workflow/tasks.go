package workflow

import "fmt"

// ValidateTasks checks the structural invariants of a task list: ids are
// unique and non-empty, every dependency references a known task, and the
// dependency graph is acyclic. Planning fails when any check fails.
func ValidateTasks(tasks []Task) error {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("workflow: task at index %d has an empty id", i)
		}
		if _, dup := index[t.ID]; dup {
			return fmt.Errorf("workflow: duplicate task id %s", t.ID)
		}
		index[t.ID] = i
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return fmt.Errorf("workflow: task %s depends on itself", t.ID)
			}
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("workflow: task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	return checkAcyclic(tasks, index)
}

// checkAcyclic runs a three-color depth-first search over the dependency
// edges and reports the first cycle found.
func checkAcyclic(tasks []Task, index map[string]int) error {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // fully explored
	)
	colors := make([]int, len(tasks))
	var visit func(i int) error
	visit = func(i int) error {
		colors[i] = grey
		for _, dep := range tasks[i].Dependencies {
			j := index[dep]
			switch colors[j] {
			case grey:
				return fmt.Errorf("workflow: dependency cycle through %s and %s", tasks[i].ID, dep)
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		colors[i] = black
		return nil
	}
	for i := range tasks {
		if colors[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}
