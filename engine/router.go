package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wealthdesk/agentflow/workflow"
)

// supervisor is the attribution used for blockers and decisions the routing
// layer itself records.
const supervisor = workflow.AgentID("supervisor")

// Decision is the routing verdict for one executor iteration: either the
// workflow is done or the named agent should take the next turn.
type Decision struct {
	Next   workflow.AgentID
	Done   bool
	Reason string
}

// Route selects the next agent from the task graph. It settles terminal
// states on the way: when every task has finished it closes the workflow as
// completed or failed, and when pending tasks can never become ready it
// records a deadlock blocker and blocks the workflow. A ready set that is
// empty while a task is still in progress breaks the single-threaded
// execution contract and is returned as an error.
func Route(s *workflow.State, now time.Time) (Decision, error) {
	if s.Status.Terminal() {
		return Decision{Done: true, Reason: fmt.Sprintf("workflow is %s", s.Status)}, nil
	}

	if s.AllTerminal() {
		if len(s.Outcome) > 0 || s.AllCompleted() {
			s.Status = workflow.StatusCompleted
			s.Touch(now)
			return Decision{Done: true, Reason: "all tasks finished"}, nil
		}
		s.Status = workflow.StatusFailed
		s.Touch(now)
		return Decision{Done: true, Reason: "tasks finished without an outcome"}, nil
	}

	ready := s.Ready()
	if len(ready) == 0 {
		if t, busy := s.InProgress(); busy {
			return Decision{}, fmt.Errorf("engine: task %s is in progress outside an agent turn", t.ID)
		}
		// Pending tasks remain but none can ever become ready: their
		// dependencies failed or were skipped.
		s.AddBlocker("dependency deadlock: no pending task can become ready", supervisor, now)
		s.Status = workflow.StatusBlocked
		s.Touch(now)
		return Decision{Done: true, Reason: "dependency deadlock"}, nil
	}

	sort.SliceStable(ready, func(i, j int) bool {
		ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return taskIDLess(ready[i].ID, ready[j].ID)
	})
	next := ready[0]
	return Decision{
		Next:   next.Owner,
		Reason: fmt.Sprintf("task %s is ready", next.ID),
	}, nil
}

// taskIDLess orders task ids numerically when both carry the task_N shape so
// task_2 sorts before task_10; anything else falls back to string order.
func taskIDLess(a, b string) bool {
	na, oka := taskNumber(a)
	nb, okb := taskNumber(b)
	if oka && okb {
		return na < nb
	}
	return a < b
}

func taskNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "task_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
