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

const RUN_KEY string = "RUN"
const RUN_LEASE_KEY string = "RUNLEASE"
const TIMER_INDEX_KEY string = "RUNTIMER"
const WAIT_INDEX_KEY string = "RUNWAITDL"
const RUNNING_INDEX_KEY string = "RUNACTIVE"
const PHONE_INDEX_KEY string = "RUNPHONE"

var _ persistence.RunStore = new(redisRunStore)

// redisRunStore keeps the run document in a hash and maintains three sorted
// set indexes (timer deadlines, response deadlines, running heartbeats) plus
// a per-phone set, all updated in one pipeline with the document write.
type redisRunStore struct {
	baseDao
	encDec util.EncoderDecoder[model.FlowRun]
}

func NewRedisRunStore(conf Config) *redisRunStore {
	return &redisRunStore{
		baseDao: *newBaseDao(conf),
		encDec:  util.NewJsonEncoderDecoder[model.FlowRun](),
	}
}

func (rs *redisRunStore) CreateRun(run *model.FlowRun) error {
	return rs.write(run, true)
}

func (rs *redisRunStore) SaveRun(run *model.FlowRun) error {
	return rs.write(run, false)
}

func (rs *redisRunStore) write(run *model.FlowRun, create bool) error {
	ctx := context.Background()
	run.UpdatedAt = time.Now()
	data, err := rs.encDec.Encode(*run)
	if err != nil {
		return err
	}
	pipe := rs.redisClient.Pipeline()
	pipe.HSet(ctx, rs.getNamespaceKey(RUN_KEY), run.Id, string(data))
	if create {
		pipe.SAdd(ctx, rs.getNamespaceKey(PHONE_INDEX_KEY, run.Context.Phone), run.Id)
	}

	timerKey := rs.getNamespaceKey(TIMER_INDEX_KEY)
	waitKey := rs.getNamespaceKey(WAIT_INDEX_KEY)
	runningKey := rs.getNamespaceKey(RUNNING_INDEX_KEY)

	pipe.ZRem(ctx, timerKey, run.Id)
	pipe.ZRem(ctx, waitKey, run.Id)
	pipe.ZRem(ctx, runningKey, run.Id)
	switch {
	case run.Status == model.RUN_STATUS_WAITING && run.ParkReason == model.PARK_AWAITING_TIMER && run.NextRunAt != nil:
		pipe.ZAdd(ctx, timerKey, rd.Z{Score: float64(run.NextRunAt.UnixMilli()), Member: run.Id})
	case run.Status == model.RUN_STATUS_WAITING && run.ParkReason == model.PARK_AWAITING_RESPONSE && run.NextRunAt != nil:
		pipe.ZAdd(ctx, waitKey, rd.Z{Score: float64(run.NextRunAt.UnixMilli()), Member: run.Id})
	case run.Status == model.RUN_STATUS_RUNNING:
		pipe.ZAdd(ctx, runningKey, rd.Z{Score: float64(run.UpdatedAt.UnixMilli()), Member: run.Id})
	}
	if run.Terminal() {
		pipe.SRem(ctx, rs.getNamespaceKey(PHONE_INDEX_KEY, run.Context.Phone), run.Id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error saving flow run", zap.String("runId", run.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisRunStore) GetRun(id string) (*model.FlowRun, error) {
	ctx := context.Background()
	raw, err := rs.redisClient.HGet(ctx, rs.getNamespaceKey(RUN_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.NotFoundError{Kind: "run", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encDec.Decode([]byte(raw))
}

func (rs *redisRunStore) AcquireLease(runId string, ttl time.Duration) (bool, error) {
	ctx := context.Background()
	ok, err := rs.redisClient.SetNX(ctx, rs.getNamespaceKey(RUN_LEASE_KEY, runId), "1", ttl).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return ok, nil
}

func (rs *redisRunStore) ReleaseLease(runId string) error {
	ctx := context.Background()
	if err := rs.redisClient.Del(ctx, rs.getNamespaceKey(RUN_LEASE_KEY, runId)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisRunStore) FindActiveByPhone(phone string) ([]*model.FlowRun, error) {
	ctx := context.Background()
	ids, err := rs.redisClient.SMembers(ctx, rs.getNamespaceKey(PHONE_INDEX_KEY, phone)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var out []*model.FlowRun
	for _, id := range ids {
		run, err := rs.GetRun(id)
		if err != nil {
			continue
		}
		if !run.Terminal() {
			out = append(out, run)
		}
	}
	return out, nil
}

func (rs *redisRunStore) FindWaitingForPhone(phone string) (*model.FlowRun, error) {
	runs, err := rs.FindActiveByPhone(phone)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.Status == model.RUN_STATUS_WAITING && run.ParkReason == model.PARK_AWAITING_RESPONSE {
			return run, nil
		}
	}
	return nil, model.NotFoundError{Kind: "waiting run", Id: phone}
}

func (rs *redisRunStore) FindDueTimers(now time.Time, limit int) ([]*model.FlowRun, error) {
	return rs.findDue(rs.getNamespaceKey(TIMER_INDEX_KEY), now, limit)
}

func (rs *redisRunStore) FindDueWaits(now time.Time, limit int) ([]*model.FlowRun, error) {
	return rs.findDue(rs.getNamespaceKey(WAIT_INDEX_KEY), now, limit)
}

func (rs *redisRunStore) FindStale(cutoff time.Time, limit int) ([]*model.FlowRun, error) {
	return rs.findDue(rs.getNamespaceKey(RUNNING_INDEX_KEY), cutoff, limit)
}

func (rs *redisRunStore) findDue(key string, now time.Time, limit int) ([]*model.FlowRun, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min:   strconv.Itoa(0),
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}
	ids, err := rs.redisClient.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var out []*model.FlowRun
	for _, id := range ids {
		run, err := rs.GetRun(id)
		if err != nil {
			logger.Error("dropping indexed run without document", zap.String("runId", id), zap.Error(err))
			rs.redisClient.ZRem(ctx, key, id)
			continue
		}
		out = append(out, run)
	}
	return out, nil
}
