package scheduler

import (
	"sync"

	"github.com/petrijr/agenda/pkg/api"
)

// registry tracks the handle recorded for every accepted submission so
// progress queries can address tasks by task id or by the submitting
// actor instead of by raw workflow identity.
type registry struct {
	mu      sync.RWMutex
	byTask  map[string]api.WorkflowHandle
	byActor map[string]api.WorkflowHandle
}

func newRegistry() *registry {
	return &registry{
		byTask:  make(map[string]api.WorkflowHandle),
		byActor: make(map[string]api.WorkflowHandle),
	}
}

// record stores the handle under the descriptor's task id and, when the
// descriptor names an actor, as that actor's most recent submission.
func (r *registry) record(desc api.TaskDescriptor, h api.WorkflowHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTask[desc.TaskID] = h
	if desc.Actor != "" {
		r.byActor[desc.Actor] = h
	}
}

// rollback undoes a record that never led to a running task, restoring
// whatever was tracked before it. Without this, a failed enqueue would
// leave the task id tracked and a retry of the same submission would be
// refused as a duplicate.
func (r *registry) rollback(desc api.TaskDescriptor, prevTask api.WorkflowHandle, hadTask bool, prevActor api.WorkflowHandle, hadActor bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hadTask {
		r.byTask[desc.TaskID] = prevTask
	} else {
		delete(r.byTask, desc.TaskID)
	}
	if desc.Actor != "" {
		if hadActor {
			r.byActor[desc.Actor] = prevActor
		} else {
			delete(r.byActor, desc.Actor)
		}
	}
}

func (r *registry) taskHandle(taskID string) (api.WorkflowHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byTask[taskID]
	return h, ok
}

func (r *registry) actorHandle(actorID string) (api.WorkflowHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byActor[actorID]
	return h, ok
}
