// Package inmem is a map-backed implementation of the persistence contracts,
// used by tests and single-process deployments without external storage.
package inmem

import (
	"sort"
	"sync"
	"time"

	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
)

type Store struct {
	mu          sync.Mutex
	definitions map[string]*model.FlowDefinition
	nodes       map[string][]*model.FlowNode
	edges       map[string][]*model.FlowEdge
	runs        map[string]*model.FlowRun
	runOrder    []string
	leases      map[string]time.Time
	actions     map[string]*model.ScheduledAction
	actionOrder []string
	now         func() time.Time
}

var _ persistence.GraphStore = new(Store)
var _ persistence.RunStore = new(Store)
var _ persistence.ScheduledActionStore = new(Store)

func NewStore() *Store {
	return &Store{
		definitions: make(map[string]*model.FlowDefinition),
		nodes:       make(map[string][]*model.FlowNode),
		edges:       make(map[string][]*model.FlowEdge),
		runs:        make(map[string]*model.FlowRun),
		leases:      make(map[string]time.Time),
		actions:     make(map[string]*model.ScheduledAction),
		now:         time.Now,
	}
}

func (s *Store) SaveDefinition(def *model.FlowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *def
	s.definitions[def.Id] = &copied
	return nil
}

func (s *Store) GetDefinition(id string) (*model.FlowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "flow", Id: id}
	}
	copied := *def
	return &copied, nil
}

func (s *Store) ListDefinitions() ([]*model.FlowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.FlowDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		copied := *def
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *Store) DeleteDefinition(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[id]; !ok {
		return model.NotFoundError{Kind: "flow", Id: id}
	}
	delete(s.definitions, id)
	delete(s.nodes, id)
	delete(s.edges, id)
	return nil
}

func (s *Store) ReplaceGraph(flowId string, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := make([]*model.FlowNode, len(nodes))
	for i, n := range nodes {
		copied := *n
		ns[i] = &copied
	}
	es := make([]*model.FlowEdge, len(edges))
	for i, e := range edges {
		copied := *e
		es[i] = &copied
	}
	s.nodes[flowId] = ns
	s.edges[flowId] = es
	return nil
}

func (s *Store) GetGraph(flowId string) ([]*model.FlowNode, []*model.FlowEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]*model.FlowNode, len(s.nodes[flowId]))
	for i, n := range s.nodes[flowId] {
		copied := *n
		nodes[i] = &copied
	}
	edges := make([]*model.FlowEdge, len(s.edges[flowId]))
	for i, e := range s.edges[flowId] {
		copied := *e
		edges[i] = &copied
	}
	return nodes, edges, nil
}

func (s *Store) CreateRun(run *model.FlowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.Id] = &copied
	s.runOrder = append(s.runOrder, run.Id)
	return nil
}

func (s *Store) GetRun(id string) (*model.FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "run", Id: id}
	}
	copied := *run
	copied.Context = run.Context.Clone()
	return &copied, nil
}

func (s *Store) SaveRun(run *model.FlowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.Id]; !ok {
		return model.NotFoundError{Kind: "run", Id: run.Id}
	}
	copied := *run
	copied.Context = run.Context.Clone()
	s.runs[run.Id] = &copied
	return nil
}

func (s *Store) AcquireLease(runId string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	until, held := s.leases[runId]
	if held && until.After(now) {
		return false, nil
	}
	s.leases[runId] = now.Add(ttl)
	return true, nil
}

func (s *Store) ReleaseLease(runId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, runId)
	return nil
}

func (s *Store) FindActiveByPhone(phone string) ([]*model.FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FlowRun
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Context.Phone == phone && !run.Terminal() {
			copied := *run
			copied.Context = run.Context.Clone()
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Store) FindWaitingForPhone(phone string) (*model.FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Context.Phone == phone && run.Status == model.RUN_STATUS_WAITING && run.ParkReason == model.PARK_AWAITING_RESPONSE {
			copied := *run
			copied.Context = run.Context.Clone()
			return &copied, nil
		}
	}
	return nil, model.NotFoundError{Kind: "waiting run", Id: phone}
}

func (s *Store) FindDueTimers(now time.Time, limit int) ([]*model.FlowRun, error) {
	return s.findParked(model.PARK_AWAITING_TIMER, now, limit)
}

func (s *Store) FindDueWaits(now time.Time, limit int) ([]*model.FlowRun, error) {
	return s.findParked(model.PARK_AWAITING_RESPONSE, now, limit)
}

func (s *Store) findParked(reason model.ParkReason, now time.Time, limit int) ([]*model.FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FlowRun
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Status != model.RUN_STATUS_WAITING || run.ParkReason != reason {
			continue
		}
		if run.NextRunAt == nil || run.NextRunAt.After(now) {
			continue
		}
		copied := *run
		copied.Context = run.Context.Clone()
		out = append(out, &copied)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FindStale(cutoff time.Time, limit int) ([]*model.FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FlowRun
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Status != model.RUN_STATUS_RUNNING || run.UpdatedAt.After(cutoff) {
			continue
		}
		copied := *run
		copied.Context = run.Context.Clone()
		out = append(out, &copied)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Save(action *model.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[action.Id]; !ok {
		s.actionOrder = append(s.actionOrder, action.Id)
	}
	copied := *action
	s.actions[action.Id] = &copied
	return nil
}

func (s *Store) Get(id string) (*model.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "scheduled action", Id: id}
	}
	copied := *action
	return &copied, nil
}

func (s *Store) FindDue(now time.Time, limit int) ([]*model.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ScheduledAction
	for _, id := range s.actionOrder {
		action := s.actions[id]
		if action.Executado || action.ExecutarEm.After(now) {
			continue
		}
		copied := *action
		out = append(out, &copied)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkExecuted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return model.NotFoundError{Kind: "scheduled action", Id: id}
	}
	action.Executado = true
	return nil
}
