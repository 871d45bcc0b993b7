// Package logger provides structured logging for flowkit pipelines
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers. Stages obtain their logger through Get and
// attach stage identity with WithFields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("pipeline")
//	log.Info("stage completed", logger.Fields(logger.FieldStage, "parse"))
package logger
