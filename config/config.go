package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	HttpPort       int
	StorageType    StorageType
	RedisConfig    RedisStorageConfig
	PostgresDSN    string
	GatewayBaseUrl string
	CrudBaseUrl    string
	AnalyticsFile  string

	RunSweepInterval    time.Duration
	ActionSweepInterval time.Duration
	SweepBatchSize      int
	StepLimit           int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
