package config

import "time"

const (
	DefaultWorkerCount   = 10
	DefaultBatchSize     = 100
	DefaultPollInterval  = time.Second
	DefaultStorageDriver = Postgres
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 9181
	DefaultLogLevel      = "info"
	DefaultRedisPrefix   = "quirrel:"
)
