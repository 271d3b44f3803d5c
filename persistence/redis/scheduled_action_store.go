package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
	"github.com/a23comunicacoes/oregon-flow/util"
)

const ACTION_KEY string = "SCHEDACT"
const ACTION_DUE_KEY string = "SCHEDACT_DUE"

var _ persistence.ScheduledActionStore = new(redisScheduledActionStore)

// redisScheduledActionStore keeps action documents in a hash and a due-time
// sorted set. FindDue reads without removing; MarkExecuted drops the index
// entry, so failed dispatches stay due and get retried.
type redisScheduledActionStore struct {
	baseDao
	encDec util.EncoderDecoder[model.ScheduledAction]
}

func NewRedisScheduledActionStore(conf Config) *redisScheduledActionStore {
	return &redisScheduledActionStore{
		baseDao: *newBaseDao(conf),
		encDec:  util.NewJsonEncoderDecoder[model.ScheduledAction](),
	}
}

func (ra *redisScheduledActionStore) Save(action *model.ScheduledAction) error {
	ctx := context.Background()
	data, err := ra.encDec.Encode(*action)
	if err != nil {
		return err
	}
	pipe := ra.redisClient.Pipeline()
	pipe.HSet(ctx, ra.getNamespaceKey(ACTION_KEY), action.Id, string(data))
	if !action.Executado {
		pipe.ZAdd(ctx, ra.getNamespaceKey(ACTION_DUE_KEY), rd.Z{
			Score:  float64(action.ExecutarEm.UnixMilli()),
			Member: action.Id,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error saving scheduled action", zap.String("id", action.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ra *redisScheduledActionStore) Get(id string) (*model.ScheduledAction, error) {
	ctx := context.Background()
	raw, err := ra.redisClient.HGet(ctx, ra.getNamespaceKey(ACTION_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.NotFoundError{Kind: "scheduled action", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ra.encDec.Decode([]byte(raw))
}

func (ra *redisScheduledActionStore) FindDue(now time.Time, limit int) ([]*model.ScheduledAction, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min:   strconv.Itoa(0),
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}
	ids, err := ra.redisClient.ZRangeByScore(ctx, ra.getNamespaceKey(ACTION_DUE_KEY), opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var out []*model.ScheduledAction
	for _, id := range ids {
		action, err := ra.Get(id)
		if err != nil {
			ra.redisClient.ZRem(ctx, ra.getNamespaceKey(ACTION_DUE_KEY), id)
			continue
		}
		if !action.Executado {
			out = append(out, action)
		}
	}
	return out, nil
}

func (ra *redisScheduledActionStore) MarkExecuted(id string) error {
	action, err := ra.Get(id)
	if err != nil {
		return err
	}
	action.Executado = true
	ctx := context.Background()
	data, err := ra.encDec.Encode(*action)
	if err != nil {
		return err
	}
	pipe := ra.redisClient.Pipeline()
	pipe.HSet(ctx, ra.getNamespaceKey(ACTION_KEY), id, string(data))
	pipe.ZRem(ctx, ra.getNamespaceKey(ACTION_DUE_KEY), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
