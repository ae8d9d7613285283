// Package queue provides the Redis job queue that feeds validation workers.
//
// Clients submit a Job naming a domain model and carrying a system model.
// Workers pop jobs, run the assessment, store it, and publish a Result on
// the job's result channel.
//
// # Redis Key Schema
//
//   - riskengine:jobs - List of pending jobs (LPUSH/BRPOP)
//   - riskengine:results:<jobID> - Pub/Sub channel for the job's result
//   - riskengine:worker:<id>:meta - Hash of worker metadata
//   - riskengine:worker:<id>:health - String with 30s TTL for heartbeat
//   - riskengine:workers - Set of registered worker IDs
//   - riskengine:workers:active - Counter of running workers
//
// # Usage
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL: "redis://localhost:6379",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	results, err := client.Subscribe(ctx, queue.ResultChannel(job.JobID))
//	if err != nil {
//		return err
//	}
//	if err := client.Push(ctx, queue.JobsQueue, job); err != nil {
//		return err
//	}
//	res := <-results
//
// Pop waits at most RedisOptions.PollTimeout and returns nil, nil when the
// queue stayed empty, so worker loops can check for shutdown between polls.
package queue
