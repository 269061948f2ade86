// Package config loads fanflow settings with viper and builds the
// components they describe.
//
// Settings come from a YAML file (fanflow.yaml in the working directory by
// default) and FANFLOW_ environment variables, with dots in keys replaced by
// underscores:
//
//	coordinator:
//	  max_concurrent: 10
//	  permits_per_second: 20
//	fanout:
//	  timeout: 5s
//	redis:
//	  enabled: true
//	  addr: localhost:6379
//
//	FANFLOW_COORDINATOR_MAX_CONCURRENT=4 ./bulk-create
//
// A loaded Config builds the coordinator, the optional Redis-backed permit
// pool, the batch recorder and the orchestrator options:
//
//	cfg, err := config.Load("")
//	logger := cfg.Logger()
//	rdb := cfg.RedisClient()
//	coord, err := cfg.NewCoordinator(logger, rdb)
//	orch := fanout.New[Req, Resp](client, cfg.FanoutOptions("bulk", logger, coord, cfg.NewRecorder(rdb))...)
package config
