// Package collector is the entry point for instrumented code.
//
// A MetricsCollector is built once per process and passed to the call
// interception layer. Two variants exist:
//
//   - LocalOnly keeps everything in memory. Reads describe this replica.
//   - Distributed also writes sampled calls to the shared store through a
//     failover-guarded writer, and reads the fleet-wide view from it.
//
// New picks the variant from cfg.Collector.Mode:
//
//	c, err := collector.New(cfg, collector.WithLogger(logger), collector.WithMetrics(m))
//	if err != nil {
//	    return err
//	}
//	for _, job := range c.Jobs() {
//	    scheduler.Add(job)
//	}
//	c.Start(ctx)
//	defer c.Stop(ctx)
//
//	c.RequestStarted()
//	defer c.RequestEnded()
//	c.Record("OrderService.list", elapsed.Milliseconds(), err == nil, callerID)
package collector
