// Package fanout runs batches of remote operations under completion
// policies.
//
// An Orchestrator wraps a Collaborator, the thing that actually talks to the
// remote service, and optionally a coordinator that throttles admission:
//
//	c, _ := coordinator.New(10, 20)
//	orch := fanout.New[Request, Response](client,
//		fanout.WithCoordinator(c),
//		fanout.WithTimeout(2*time.Second),
//	)
//
// # Policies
//
//   - RunAll waits for every operation. Outcomes[i] belongs to ops[i].
//   - RunFirst returns the first success and cancels the rest.
//   - RunProgressive yields outcomes in completion order; stopping early
//     cancels what is still running.
//   - RunUntil aborts the batch on the first outcome matching a predicate,
//     cancelling the rest. RunUntilFirstFailure uses IsFailure.
//
// A dashboard that must give up as soon as the upstream rejects its
// credentials:
//
//	batch, err := orch.RunUntil(ctx, ops, fanout.ErrorIs[Response](ErrUnauthorized))
//	if batch.Aborted {
//		log.Printf("aborted by %s, %d cancelled", batch.Trigger.ID, len(batch.Pending))
//	}
//
// # Outcomes
//
// Every operation ends in exactly one Kind. Failed outcomes carry the
// collaborator's error unchanged; TimedOut and Cancelled outcomes carry
// errors wrapping errors.ErrTimeout and errors.ErrCancelled. The
// per-operation timeout starts once the operation is admitted, so time
// spent waiting for a permit or a slot does not count against it.
//
// Cancellation is cooperative: the collaborator receives a context that is
// cancelled when its operation is abandoned. The orchestrator stops waiting
// for it immediately and discards any late reply, and every policy returns
// only after all operations have left the coordinator.
package fanout
