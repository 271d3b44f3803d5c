package postgres

const schema = `
CREATE TABLE IF NOT EXISTS flow_definitions (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	status             TEXT NOT NULL,
	trigger_type       TEXT NOT NULL,
	webhook_key        TEXT UNIQUE,
	trigger_conditions JSONB,
	priority           INT NOT NULL DEFAULT 0,
	interruptible      BOOLEAN NOT NULL DEFAULT TRUE,
	global_keywords    JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS flow_nodes (
	id       TEXT PRIMARY KEY,
	flow_id  TEXT NOT NULL REFERENCES flow_definitions(id) ON DELETE CASCADE,
	type     TEXT NOT NULL,
	label    TEXT,
	config   JSONB,
	position JSONB,
	ord      INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS flow_edges (
	id             TEXT PRIMARY KEY,
	flow_id        TEXT NOT NULL REFERENCES flow_definitions(id) ON DELETE CASCADE,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	label          TEXT,
	condition      JSONB,
	ord            INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS flow_runs (
	id                   TEXT PRIMARY KEY,
	flow_id              TEXT NOT NULL,
	start_node_id        TEXT NOT NULL,
	current_node_id      TEXT NOT NULL,
	status               TEXT NOT NULL,
	context              JSONB NOT NULL,
	park_reason          TEXT NOT NULL DEFAULT '',
	waiting_for_response BOOLEAN NOT NULL DEFAULT FALSE,
	next_run_at          TIMESTAMPTZ,
	error_reason         TEXT,
	lease_until          TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_flow_runs_due
	ON flow_runs (next_run_at) WHERE status = 'waiting';
CREATE INDEX IF NOT EXISTS idx_flow_runs_phone
	ON flow_runs ((context->>'phone'));

CREATE TABLE IF NOT EXISTS scheduled_actions (
	id          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	parametros  JSONB,
	executar_em TIMESTAMPTZ NOT NULL,
	executado   BOOLEAN NOT NULL DEFAULT FALSE,
	client_id   TEXT,
	phone       TEXT,
	flow_run_id TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scheduled_actions_due
	ON scheduled_actions (executar_em) WHERE executado = FALSE;
`
