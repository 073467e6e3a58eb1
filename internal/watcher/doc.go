// Package watcher runs health checks on an interval and reloads the catalog
// when its files change.
//
// The monitor checks every unit on each tick, stores the results, and
// rebuilds its targets when catalog.toml or dependencies.conf is written.
// Reloads are rate limited so an editor's burst of writes triggers one
// rebuild.
//
// It can run in the foreground or as a daemon tracked by a PID file:
//
//	w := watcher.New(checker, catalogDir, time.Minute, loadTargets)
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	// Or detach
//	if err := watcher.StartDaemon(pidFile, logFile, "watch", "--daemon-child"); err != nil {
//		log.Fatal(err)
//	}
package watcher
