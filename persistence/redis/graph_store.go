package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
	"github.com/a23comunicacoes/oregon-flow/util"
)

const DEFINITION_KEY string = "FLOWDEF"
const GRAPH_KEY string = "GRAPH"

// graphBlob is the unit of atomicity for ReplaceGraph: the whole node/edge
// set of a flow is written as one hash field, so readers get either the old
// graph or the new one, never a mix.
type graphBlob struct {
	Nodes []*model.FlowNode `json:"nodes"`
	Edges []*model.FlowEdge `json:"edges"`
}

var _ persistence.GraphStore = new(redisGraphStore)

type redisGraphStore struct {
	baseDao
	defEncDec   util.EncoderDecoder[model.FlowDefinition]
	graphEncDec util.EncoderDecoder[graphBlob]
}

func NewRedisGraphStore(conf Config) *redisGraphStore {
	return &redisGraphStore{
		baseDao:     *newBaseDao(conf),
		defEncDec:   util.NewJsonEncoderDecoder[model.FlowDefinition](),
		graphEncDec: util.NewJsonEncoderDecoder[graphBlob](),
	}
}

func (rg *redisGraphStore) SaveDefinition(def *model.FlowDefinition) error {
	key := rg.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	data, err := rg.defEncDec.Encode(*def)
	if err != nil {
		return err
	}
	if err := rg.redisClient.HSet(ctx, key, def.Id, string(data)).Err(); err != nil {
		logger.Error("error saving flow definition", zap.String("flowId", def.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rg *redisGraphStore) GetDefinition(id string) (*model.FlowDefinition, error) {
	key := rg.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	raw, err := rg.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.NotFoundError{Kind: "flow", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rg.defEncDec.Decode([]byte(raw))
}

func (rg *redisGraphStore) ListDefinitions() ([]*model.FlowDefinition, error) {
	key := rg.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	raw, err := rg.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.FlowDefinition, 0, len(raw))
	for _, v := range raw {
		def, err := rg.defEncDec.Decode([]byte(v))
		if err != nil {
			logger.Error("skipping undecodable flow definition", zap.Error(err))
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (rg *redisGraphStore) DeleteDefinition(id string) error {
	ctx := context.Background()
	pipe := rg.redisClient.Pipeline()
	pipe.HDel(ctx, rg.getNamespaceKey(DEFINITION_KEY), id)
	pipe.HDel(ctx, rg.getNamespaceKey(GRAPH_KEY), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rg *redisGraphStore) ReplaceGraph(flowId string, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
	key := rg.getNamespaceKey(GRAPH_KEY)
	ctx := context.Background()
	data, err := rg.graphEncDec.Encode(graphBlob{Nodes: nodes, Edges: edges})
	if err != nil {
		return err
	}
	if err := rg.redisClient.HSet(ctx, key, flowId, string(data)).Err(); err != nil {
		logger.Error("error replacing graph", zap.String("flowId", flowId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rg *redisGraphStore) GetGraph(flowId string) ([]*model.FlowNode, []*model.FlowEdge, error) {
	key := rg.getNamespaceKey(GRAPH_KEY)
	ctx := context.Background()
	raw, err := rg.redisClient.HGet(ctx, key, flowId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil, nil
		}
		return nil, nil, persistence.StorageLayerError{Message: err.Error()}
	}
	blob, err := rg.graphEncDec.Decode([]byte(raw))
	if err != nil {
		return nil, nil, err
	}
	return blob.Nodes, blob.Edges, nil
}
