// Package logger provides structured logging for igevents on top of zerolog.
//
// A process-wide logger is configured once from the logging section of the
// configuration and reached through GetLogger or the package helpers:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	logger.GetLogger().WithField("username", "clubff").Info("Scrape started")
//
// Components that accept a Logger take it as a constructor argument, which
// lets tests pass a TestLogger and assert on what was written.
package logger
