// Package async runs work concurrently while carrying the current tenant
// across goroutines.
//
// Async starts a function in its own goroutine and returns a Future. The
// goroutine receives a forked tenant scope (see tenant.Fork): it starts with
// the caller's selection, and changes it makes stay local.
//
//	f := async.Async(ctx, id, func(ctx context.Context, id int64) (Order, error) {
//	    db, err := orm.Current(ctx, router)  // same tenant as the caller
//	    ...
//	})
//	order, err := f.Await()
//
// WaitAll and WaitAny coordinate several futures.
//
// Pool is a fixed set of long-lived workers. A submitted task runs with the
// tenant that was current at submit time, and the worker clears its scope
// when the task returns:
//
//	pool := async.NewPool(async.WithWorkers(8))
//	defer pool.Close()
//	f, err := pool.Submit(ctx, func(ctx context.Context) error { ... })
//
// A panicking task completes its future with ErrTaskPanicked; the worker keeps running.
package async
