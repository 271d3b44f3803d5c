package container

import (
	"github.com/a23comunicacoes/oregon-flow/config"
	"github.com/a23comunicacoes/oregon-flow/gateway"
	"github.com/a23comunicacoes/oregon-flow/persistence"
	"github.com/a23comunicacoes/oregon-flow/persistence/inmem"
	"github.com/a23comunicacoes/oregon-flow/persistence/postgres"
	rd "github.com/a23comunicacoes/oregon-flow/persistence/redis"
	"github.com/a23comunicacoes/oregon-flow/records"
)

// DIContiner wires the storage backend and the outbound service clients
// selected by configuration. Get* panics before Init so a miswired startup
// fails loudly instead of limping with nil stores.
type DIContiner struct {
	initialized bool

	graphStore  persistence.GraphStore
	runStore    persistence.RunStore
	actionStore persistence.ScheduledActionStore
	messenger   gateway.Messenger
	records     records.Store
}

func (d *DIContiner) setInitialized() {
	d.initialized = true
}

func NewDiContainer() *DIContiner {
	return &DIContiner{
		initialized: false,
	}
}

func (d *DIContiner) Init(conf config.Config) error {
	defer d.setInitialized()

	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		}
		d.graphStore = rd.NewRedisGraphStore(rdConf)
		d.runStore = rd.NewRedisRunStore(rdConf)
		d.actionStore = rd.NewRedisScheduledActionStore(rdConf)
	case config.STORAGE_TYPE_POSTGRES:
		store, err := postgres.NewStore(conf.PostgresDSN)
		if err != nil {
			return err
		}
		d.graphStore = store
		d.runStore = store
		d.actionStore = store
	default:
		store := inmem.NewStore()
		d.graphStore = store
		d.runStore = store
		d.actionStore = store
	}

	if conf.GatewayBaseUrl != "" {
		d.messenger = gateway.NewHttpMessenger(conf.GatewayBaseUrl)
	} else {
		d.messenger = gateway.NoopMessenger{}
	}
	if conf.CrudBaseUrl != "" {
		d.records = records.NewHttpStore(conf.CrudBaseUrl)
	} else {
		d.records = records.NoopStore{}
	}
	return nil
}

func (d *DIContiner) GetGraphStore() persistence.GraphStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.graphStore
}

func (d *DIContiner) GetRunStore() persistence.RunStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.runStore
}

func (d *DIContiner) GetScheduledActionStore() persistence.ScheduledActionStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.actionStore
}

func (d *DIContiner) GetMessenger() gateway.Messenger {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.messenger
}

func (d *DIContiner) GetRecordStore() records.Store {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.records
}
