// Package distributed provides a token bucket whose state lives in Redis, so
// several processes draw from one permit pool.
//
// A RedisBucket satisfies the same Reserve contract as the in-process
// buckets and can be handed to the coordinator as its permit source:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	permits, err := distributed.New(distributed.Config{
//		Redis: rdb,
//		Key:   "upstream_api",
//		Rate:  20,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	c, err := coordinator.NewWithConfig(coordinator.Config{
//		MaxConcurrent: 10,
//		Permits:       permits,
//	})
//
// Refill and consumption run in a single Lua script using Redis' TIME, so
// the pool is consistent across processes regardless of host clock skew.
// Both keys of a bucket share a hash tag and work on Redis Cluster.
//
// # Fallback
//
// When Redis is unreachable, Reserve returns an *errors.OperationError.
// Setting Config.Fallback to a local bucket keeps admission running with a
// per-process limit until Redis comes back:
//
//	local, _ := bucket.New(20)
//	config.Fallback = local
//
// Stats reports the shared token level plus admitted and delayed counters,
// and Reset clears the shared state.
package distributed
