package distributed_test

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/fanflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/distributed"
)

// Example shows a shared permit pool with a local fallback.
func Example() {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = rdb.Close() }()

	local, _ := bucket.New(20)

	permits, err := distributed.New(distributed.Config{
		Redis:    rdb,
		Key:      "upstream_api",
		Rate:     20,
		Fallback: local,
	})
	if err != nil {
		panic(err)
	}

	wait, err := permits.Reserve(context.Background())
	if err != nil {
		fmt.Println("no permit source:", err)
		return
	}
	fmt.Println("admitted:", wait < time.Second)
	// Output: admitted: true
}
