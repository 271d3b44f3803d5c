// Package postgres implements the persistence contracts on a relational
// store via sqlx. The per-run lease is a lease_until column claimed with a
// conditional UPDATE, which gives the same mutual exclusion as the redis
// SET NX path.
package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
)

type Store struct {
	db *sqlx.DB
}

var _ persistence.GraphStore = new(Store)
var _ persistence.RunStore = new(Store)
var _ persistence.ScheduledActionStore = new(Store)

func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &Store{db: db}, nil
}

type definitionRow struct {
	Id                string         `db:"id"`
	Name              string         `db:"name"`
	Status            string         `db:"status"`
	TriggerType       string         `db:"trigger_type"`
	WebhookKey        sql.NullString `db:"webhook_key"`
	TriggerConditions []byte         `db:"trigger_conditions"`
	Priority          int            `db:"priority"`
	Interruptible     bool           `db:"interruptible"`
	GlobalKeywords    []byte         `db:"global_keywords"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r definitionRow) toModel() (*model.FlowDefinition, error) {
	def := &model.FlowDefinition{
		Id:            r.Id,
		Name:          r.Name,
		Status:        model.FlowStatus(r.Status),
		TriggerType:   model.TriggerType(r.TriggerType),
		WebhookKey:    r.WebhookKey.String,
		Priority:      r.Priority,
		Interruptible: r.Interruptible,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if len(r.TriggerConditions) > 0 {
		if err := json.Unmarshal(r.TriggerConditions, &def.TriggerConditions); err != nil {
			return nil, err
		}
	}
	if len(r.GlobalKeywords) > 0 {
		if err := json.Unmarshal(r.GlobalKeywords, &def.GlobalKeywords); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func (s *Store) SaveDefinition(def *model.FlowDefinition) error {
	conditions, err := json.Marshal(def.TriggerConditions)
	if err != nil {
		return err
	}
	keywords, err := json.Marshal(def.GlobalKeywords)
	if err != nil {
		return err
	}
	var webhookKey any
	if def.WebhookKey != "" {
		webhookKey = def.WebhookKey
	}
	_, err = s.db.Exec(`
		INSERT INTO flow_definitions
			(id, name, status, trigger_type, webhook_key, trigger_conditions,
			 priority, interruptible, global_keywords, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type, webhook_key = EXCLUDED.webhook_key,
			trigger_conditions = EXCLUDED.trigger_conditions,
			priority = EXCLUDED.priority, interruptible = EXCLUDED.interruptible,
			global_keywords = EXCLUDED.global_keywords, updated_at = now()`,
		def.Id, def.Name, def.Status, def.TriggerType, webhookKey, conditions,
		def.Priority, def.Interruptible, keywords, def.CreatedAt)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Store) GetDefinition(id string) (*model.FlowDefinition, error) {
	var row definitionRow
	err := s.db.Get(&row, `SELECT * FROM flow_definitions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundError{Kind: "flow", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return row.toModel()
}

func (s *Store) ListDefinitions() ([]*model.FlowDefinition, error) {
	var rows []definitionRow
	if err := s.db.Select(&rows, `SELECT * FROM flow_definitions ORDER BY id`); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.FlowDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.toModel()
		if err != nil {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *Store) DeleteDefinition(id string) error {
	res, err := s.db.Exec(`DELETE FROM flow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFoundError{Kind: "flow", Id: id}
	}
	return nil
}

func (s *Store) ReplaceGraph(flowId string, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM flow_nodes WHERE flow_id = $1`, flowId); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if _, err := tx.Exec(`DELETE FROM flow_edges WHERE flow_id = $1`, flowId); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	for i, node := range nodes {
		config, err := json.Marshal(node.Config)
		if err != nil {
			return err
		}
		position, err := json.Marshal(node.Position)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO flow_nodes (id, flow_id, type, label, config, position, ord)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			node.Id, flowId, node.Type, node.Label, config, position, i); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	for i, edge := range edges {
		cond, err := json.Marshal(edge.Condition)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO flow_edges (id, flow_id, source_node_id, target_node_id, label, condition, ord)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			edge.Id, flowId, edge.SourceNodeId, edge.TargetNodeId, edge.Label, cond, i); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	if err := tx.Commit(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

type nodeRow struct {
	Id       string         `db:"id"`
	FlowId   string         `db:"flow_id"`
	Type     string         `db:"type"`
	Label    sql.NullString `db:"label"`
	Config   []byte         `db:"config"`
	Position []byte         `db:"position"`
	Ord      int            `db:"ord"`
}

type edgeRow struct {
	Id           string         `db:"id"`
	FlowId       string         `db:"flow_id"`
	SourceNodeId string         `db:"source_node_id"`
	TargetNodeId string         `db:"target_node_id"`
	Label        sql.NullString `db:"label"`
	Condition    []byte         `db:"condition"`
	Ord          int            `db:"ord"`
}

func (s *Store) GetGraph(flowId string) ([]*model.FlowNode, []*model.FlowEdge, error) {
	var nodeRows []nodeRow
	if err := s.db.Select(&nodeRows, `SELECT * FROM flow_nodes WHERE flow_id = $1 ORDER BY ord`, flowId); err != nil {
		return nil, nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var edgeRows []edgeRow
	if err := s.db.Select(&edgeRows, `SELECT * FROM flow_edges WHERE flow_id = $1 ORDER BY ord`, flowId); err != nil {
		return nil, nil, persistence.StorageLayerError{Message: err.Error()}
	}
	nodes := make([]*model.FlowNode, 0, len(nodeRows))
	for _, row := range nodeRows {
		node := &model.FlowNode{
			Id:     row.Id,
			FlowId: row.FlowId,
			Type:   model.NodeType(row.Type),
			Label:  row.Label.String,
		}
		if len(row.Config) > 0 {
			if err := json.Unmarshal(row.Config, &node.Config); err != nil {
				return nil, nil, err
			}
		}
		if len(row.Position) > 0 {
			if err := json.Unmarshal(row.Position, &node.Position); err != nil {
				return nil, nil, err
			}
		}
		nodes = append(nodes, node)
	}
	edges := make([]*model.FlowEdge, 0, len(edgeRows))
	for _, row := range edgeRows {
		edge := &model.FlowEdge{
			Id:           row.Id,
			FlowId:       row.FlowId,
			SourceNodeId: row.SourceNodeId,
			TargetNodeId: row.TargetNodeId,
			Label:        row.Label.String,
		}
		if len(row.Condition) > 0 {
			if err := json.Unmarshal(row.Condition, &edge.Condition); err != nil {
				return nil, nil, err
			}
		}
		edges = append(edges, edge)
	}
	return nodes, edges, nil
}

type runRow struct {
	Id                 string         `db:"id"`
	FlowId             string         `db:"flow_id"`
	StartNodeId        string         `db:"start_node_id"`
	CurrentNodeId      string         `db:"current_node_id"`
	Status             string         `db:"status"`
	Context            []byte         `db:"context"`
	ParkReason         string         `db:"park_reason"`
	WaitingForResponse bool           `db:"waiting_for_response"`
	NextRunAt          *time.Time     `db:"next_run_at"`
	ErrorReason        sql.NullString `db:"error_reason"`
	LeaseUntil         *time.Time     `db:"lease_until"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r runRow) toModel() (*model.FlowRun, error) {
	run := &model.FlowRun{
		Id:                 r.Id,
		FlowId:             r.FlowId,
		StartNodeId:        r.StartNodeId,
		CurrentNodeId:      r.CurrentNodeId,
		Status:             model.RunStatus(r.Status),
		ParkReason:         model.ParkReason(r.ParkReason),
		WaitingForResponse: r.WaitingForResponse,
		NextRunAt:          r.NextRunAt,
		ErrorReason:        r.ErrorReason.String,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if len(r.Context) > 0 {
		if err := json.Unmarshal(r.Context, &run.Context); err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (s *Store) CreateRun(run *model.FlowRun) error {
	ctx, err := json.Marshal(run.Context)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO flow_runs
			(id, flow_id, start_node_id, current_node_id, status, context,
			 park_reason, waiting_for_response, next_run_at, error_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())`,
		run.Id, run.FlowId, run.StartNodeId, run.CurrentNodeId, run.Status, ctx,
		run.ParkReason, run.WaitingForResponse, run.NextRunAt, run.ErrorReason, run.CreatedAt)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Store) SaveRun(run *model.FlowRun) error {
	ctx, err := json.Marshal(run.Context)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE flow_runs SET
			current_node_id = $2, status = $3, context = $4, park_reason = $5,
			waiting_for_response = $6, next_run_at = $7, error_reason = $8, updated_at = now()
		WHERE id = $1`,
		run.Id, run.CurrentNodeId, run.Status, ctx, run.ParkReason,
		run.WaitingForResponse, run.NextRunAt, run.ErrorReason)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFoundError{Kind: "run", Id: run.Id}
	}
	return nil
}

func (s *Store) GetRun(id string) (*model.FlowRun, error) {
	var row runRow
	err := s.db.Get(&row, `SELECT * FROM flow_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundError{Kind: "run", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return row.toModel()
}

func (s *Store) AcquireLease(runId string, ttl time.Duration) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE flow_runs SET lease_until = now() + $2::interval
		WHERE id = $1 AND (lease_until IS NULL OR lease_until < now())`,
		runId, ttl.String())
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ReleaseLease(runId string) error {
	_, err := s.db.Exec(`UPDATE flow_runs SET lease_until = NULL WHERE id = $1`, runId)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Store) FindActiveByPhone(phone string) ([]*model.FlowRun, error) {
	return s.selectRuns(`
		SELECT * FROM flow_runs
		WHERE context->>'phone' = $1
		  AND status IN ('running', 'waiting')
		ORDER BY created_at`, phone)
}

func (s *Store) FindWaitingForPhone(phone string) (*model.FlowRun, error) {
	runs, err := s.selectRuns(`
		SELECT * FROM flow_runs
		WHERE context->>'phone' = $1
		  AND status = 'waiting' AND park_reason = 'awaiting_response'
		ORDER BY created_at LIMIT 1`, phone)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, model.NotFoundError{Kind: "waiting run", Id: phone}
	}
	return runs[0], nil
}

func (s *Store) FindDueTimers(now time.Time, limit int) ([]*model.FlowRun, error) {
	return s.selectRuns(`
		SELECT * FROM flow_runs
		WHERE status = 'waiting' AND park_reason = 'awaiting_timer'
		  AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at LIMIT $2`, now, limit)
}

func (s *Store) FindDueWaits(now time.Time, limit int) ([]*model.FlowRun, error) {
	return s.selectRuns(`
		SELECT * FROM flow_runs
		WHERE status = 'waiting' AND park_reason = 'awaiting_response'
		  AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at LIMIT $2`, now, limit)
}

func (s *Store) FindStale(cutoff time.Time, limit int) ([]*model.FlowRun, error) {
	return s.selectRuns(`
		SELECT * FROM flow_runs
		WHERE status = 'running' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`, cutoff, limit)
}

func (s *Store) selectRuns(query string, args ...any) ([]*model.FlowRun, error) {
	var rows []runRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.FlowRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toModel()
		if err != nil {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

type actionRow struct {
	Id         string         `db:"id"`
	Action     string         `db:"action"`
	Parametros []byte         `db:"parametros"`
	ExecutarEm time.Time      `db:"executar_em"`
	Executado  bool           `db:"executado"`
	ClientId   sql.NullString `db:"client_id"`
	Phone      sql.NullString `db:"phone"`
	FlowRunId  sql.NullString `db:"flow_run_id"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r actionRow) toModel() (*model.ScheduledAction, error) {
	action := &model.ScheduledAction{
		Id:         r.Id,
		Action:     r.Action,
		ExecutarEm: r.ExecutarEm,
		Executado:  r.Executado,
		ClientId:   r.ClientId.String,
		Phone:      r.Phone.String,
		FlowRunId:  r.FlowRunId.String,
	}
	if len(r.Parametros) > 0 {
		if err := json.Unmarshal(r.Parametros, &action.Parametros); err != nil {
			return nil, err
		}
	}
	return action, nil
}

func (s *Store) Save(action *model.ScheduledAction) error {
	params, err := json.Marshal(action.Parametros)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO scheduled_actions
			(id, action, parametros, executar_em, executado, client_id, phone, flow_run_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			action = EXCLUDED.action, parametros = EXCLUDED.parametros,
			executar_em = EXCLUDED.executar_em, executado = EXCLUDED.executado`,
		action.Id, action.Action, params, action.ExecutarEm, action.Executado,
		action.ClientId, action.Phone, action.FlowRunId)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Store) Get(id string) (*model.ScheduledAction, error) {
	var row actionRow
	err := s.db.Get(&row, `SELECT * FROM scheduled_actions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundError{Kind: "scheduled action", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return row.toModel()
}

func (s *Store) FindDue(now time.Time, limit int) ([]*model.ScheduledAction, error) {
	var rows []actionRow
	err := s.db.Select(&rows, `
		SELECT * FROM scheduled_actions
		WHERE executado = FALSE AND executar_em <= $1
		ORDER BY executar_em LIMIT $2`, now, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.ScheduledAction, 0, len(rows))
	for _, row := range rows {
		action, err := row.toModel()
		if err != nil {
			continue
		}
		out = append(out, action)
	}
	return out, nil
}

func (s *Store) MarkExecuted(id string) error {
	res, err := s.db.Exec(`UPDATE scheduled_actions SET executado = TRUE WHERE id = $1`, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFoundError{Kind: "scheduled action", Id: id}
	}
	return nil
}
