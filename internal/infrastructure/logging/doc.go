// Package logging provides structured logging using uber/zap.
//
// Production mode emits JSON; development mode emits colored console
// output at debug level. ForApp derives per-application child loggers so
// every sandbox, bus, and effect entry carries the hosting application's
// name.
//
// Example:
//
//	logger := logging.NewDefault().ForApp("dashboard")
//	logger.Info("Application mounted", zap.String("route", "/dash"))
package logging
