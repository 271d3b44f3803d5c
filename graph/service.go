// Package graph owns flow definition storage: validation, id assignment,
// wholesale graph replacement and the definition cache in front of the store.
package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
)

type Service struct {
	store persistence.GraphStore
	cache *c.Cache
}

type cachedGraph struct {
	def   *model.FlowDefinition
	nodes []*model.FlowNode
	edges []*model.FlowEdge
}

func NewService(store persistence.GraphStore) *Service {
	return &Service{
		store: store,
		cache: c.New(5*time.Minute, 10*time.Minute),
	}
}

// Create validates the payload, assigns stable ids and persists the
// definition with its graph. Nothing is written when validation fails.
func (s *Service) Create(payload *DefinitionPayload) (*model.FlowDefinition, error) {
	return s.save(uuid.New().String(), payload, time.Now())
}

func (s *Service) Update(flowId string, payload *DefinitionPayload) (*model.FlowDefinition, error) {
	existing, err := s.store.GetDefinition(flowId)
	if err != nil {
		return nil, err
	}
	return s.save(flowId, payload, existing.CreatedAt)
}

func (s *Service) save(flowId string, payload *DefinitionPayload, createdAt time.Time) (*model.FlowDefinition, error) {
	def, nodes, edges, err := resolve(flowId, payload)
	if err != nil {
		return nil, err
	}
	if def.WebhookKey != "" {
		if err := s.checkWebhookKeyFree(flowId, def.WebhookKey); err != nil {
			return nil, err
		}
	}
	def.CreatedAt = createdAt
	def.UpdatedAt = time.Now()
	if err := s.store.SaveDefinition(def); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceGraph(flowId, nodes, edges); err != nil {
		return nil, err
	}
	s.cache.Delete(flowId)
	logger.Info("flow graph saved", zap.String("flowId", flowId), zap.Int("nodes", len(nodes)), zap.Int("edges", len(edges)))
	return def, nil
}

// checkWebhookKeyFree rejects a webhook_key already claimed by another
// definition. The postgres backend also enforces this with a unique index;
// the other backends rely on this check alone.
func (s *Service) checkWebhookKeyFree(flowId string, key string) error {
	defs, err := s.store.ListDefinitions()
	if err != nil {
		return err
	}
	for _, other := range defs {
		if other.Id != flowId && other.WebhookKey == key {
			return model.Validationf("webhook_key %q already used by flow %s", key, other.Id)
		}
	}
	return nil
}

// GetFlow loads a definition with its graph. Trigger paths pass
// requireActive; manual run-by-id callers bypass the active check.
func (s *Service) GetFlow(flowId string, requireActive bool) (*model.FlowDefinition, []*model.FlowNode, []*model.FlowEdge, error) {
	if cached, found := s.cache.Get(flowId); found {
		g := cached.(*cachedGraph)
		if requireActive && !g.def.Active() {
			return nil, nil, nil, model.NotFoundError{Kind: "flow", Id: flowId}
		}
		return g.def, g.nodes, g.edges, nil
	}
	def, err := s.store.GetDefinition(flowId)
	if err != nil {
		return nil, nil, nil, err
	}
	nodes, edges, err := s.store.GetGraph(flowId)
	if err != nil {
		return nil, nil, nil, err
	}
	s.cache.Set(flowId, &cachedGraph{def: def, nodes: nodes, edges: edges}, c.DefaultExpiration)
	if requireActive && !def.Active() {
		return nil, nil, nil, model.NotFoundError{Kind: "flow", Id: flowId}
	}
	return def, nodes, edges, nil
}

func (s *Service) Get(flowId string) (*model.FlowDefinition, error) {
	def, _, _, err := s.GetFlow(flowId, false)
	return def, err
}

func (s *Service) List() ([]*model.FlowDefinition, error) {
	return s.store.ListDefinitions()
}

func (s *Service) Delete(flowId string) error {
	if err := s.store.DeleteDefinition(flowId); err != nil {
		return err
	}
	s.cache.Delete(flowId)
	return nil
}

// ToggleStatus flips active/inactive and returns the new status.
func (s *Service) ToggleStatus(flowId string) (model.FlowStatus, error) {
	def, err := s.store.GetDefinition(flowId)
	if err != nil {
		return "", err
	}
	if def.Active() {
		def.Status = model.FLOW_STATUS_INACTIVE
	} else {
		def.Status = model.FLOW_STATUS_ACTIVE
	}
	def.UpdatedAt = time.Now()
	if err := s.store.SaveDefinition(def); err != nil {
		return "", err
	}
	s.cache.Delete(flowId)
	return def.Status, nil
}

// Duplicate deep-copies a definition's graph with fresh node/edge ids. The
// copy starts inactive and without a webhook key so it cannot shadow the
// original's trigger.
func (s *Service) Duplicate(flowId string) (*model.FlowDefinition, error) {
	def, nodes, edges, err := s.GetFlow(flowId, false)
	if err != nil {
		return nil, err
	}
	copied := *def
	copied.Id = uuid.New().String()
	copied.Name = def.Name + " (copy)"
	copied.Status = model.FLOW_STATUS_INACTIVE
	copied.WebhookKey = ""
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt

	idMap := make(map[string]string, len(nodes))
	newNodes := make([]*model.FlowNode, 0, len(nodes))
	for _, node := range nodes {
		n := *node
		n.Id = uuid.New().String()
		n.FlowId = copied.Id
		idMap[node.Id] = n.Id
		newNodes = append(newNodes, &n)
	}
	newEdges := make([]*model.FlowEdge, 0, len(edges))
	for _, edge := range edges {
		e := *edge
		e.Id = uuid.New().String()
		e.FlowId = copied.Id
		e.SourceNodeId = idMap[edge.SourceNodeId]
		e.TargetNodeId = idMap[edge.TargetNodeId]
		newEdges = append(newEdges, &e)
	}
	if err := s.store.SaveDefinition(&copied); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceGraph(copied.Id, newNodes, newEdges); err != nil {
		return nil, err
	}
	return &copied, nil
}

// FindByWebhookKey scans active definitions for an exact webhook key match.
func (s *Service) FindByWebhookKey(key string) (*model.FlowDefinition, error) {
	defs, err := s.store.ListDefinitions()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.WebhookKey == key && def.Active() && def.TriggerType == model.TRIGGER_TYPE_WEBHOOK {
			return def, nil
		}
	}
	return nil, model.NotFoundError{Kind: "webhook flow", Id: key}
}

// StartNode returns the flow's sole start node; zero or multiple start nodes
// is a definition error.
func StartNode(nodes []*model.FlowNode) (*model.FlowNode, error) {
	var start *model.FlowNode
	for _, node := range nodes {
		if node.Type == model.NODE_TYPE_START {
			if start != nil {
				return nil, model.Validationf("flow has multiple start nodes")
			}
			start = node
		}
	}
	if start == nil {
		return nil, model.Validationf("flow has no start node")
	}
	return start, nil
}

// NodeById looks a node up within an already loaded graph.
func NodeById(nodes []*model.FlowNode, id string) (*model.FlowNode, error) {
	for _, node := range nodes {
		if node.Id == id {
			return node, nil
		}
	}
	return nil, fmt.Errorf("node %s not in graph", id)
}

// EdgesFrom returns the outgoing edges of a node in insertion order.
func EdgesFrom(edges []*model.FlowEdge, nodeId string) []*model.FlowEdge {
	var out []*model.FlowEdge
	for _, edge := range edges {
		if edge.SourceNodeId == nodeId {
			out = append(out, edge)
		}
	}
	return out
}
