// Package bootstrap runs flowkit pipelines as a process.
//
// An App turns a loaded config.Config into a running process: it initializes
// the global logger, installs OpenTelemetry providers when enabled, serves
// the monitor endpoints, and waits for the pipelines it was given while
// translating SIGINT/SIGTERM into stage cancellation.
//
// # Quick Start
//
//	cfg, err := config.Load("ingest")
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	src := pipeline.FromChannel(events)
//	parse := pipeline.NewStage("parse", parseFn, app.StageOptions("parse")...)
//	_ = pipeline.ConnectOneToOne[Event](src, parse)
//	if err := app.Run(ctx, parse); err != nil {
//		log.Fatal(err)
//	}
package bootstrap
