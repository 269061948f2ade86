/*
Package leakybucket provides a pacing permit source for the coordinator.

Where the token bucket lets an idle caller spend saved-up permits in a
burst, the leaky bucket drains at a constant rate and never accumulates
credit. Use it when the remote service reacts badly to bursts:

	pacer, _ := leakybucket.New(20) // one admission every 50ms
	coord, _ := coordinator.NewWithConfig(coordinator.Config{
		MaxConcurrent:    10,
		PermitsPerSecond: 20,
		Permits:          pacer,
	})

Capacity above 1 lets that many admissions sit in the bucket at once,
which reintroduces a bounded burst.
*/
package leakybucket
