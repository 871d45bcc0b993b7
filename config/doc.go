// Package config loads flowkit process configuration.
//
// Viper reads a YAML file from cmd/<service>/config.yml, config/<service>.yml,
// config/config.yml or config.yml (or the file given with WithConfigFile).
// A .env file is loaded through godotenv, then environment variables
// override fixed keys: TRACING_ENDPOINT sets tracing.endpoint. The process
// identity uses FLOWKIT_NAME, FLOWKIT_ENV and FLOWKIT_VERSION. Stage
// settings come from the file only.
//
// # Usage
//
//	cfg, err := config.Load("ingest")
//	if err != nil {
//		return err
//	}
//	logger.Init(cfg.Logging)
//	parse := pipeline.NewStage("parse", parseFn, pipeline.WithConfig(cfg.Stage("parse")))
package config
