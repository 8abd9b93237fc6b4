// Package config loads the queue and cache subsystem configuration from a
// YAML file with OPENCLAW_* environment overrides, and translates each
// section into the functional options the target package expects:
//
//	cfg, err := config.Load("openclaw.yaml")
//	if err != nil {
//		return err
//	}
//	q := queue.New(ctx, cfg.QueueOptions()...)
//	store := cache.New(ctx, cfg.CacheOptions()...)
//
// Durations accept the extended syntax of go-str2duration ("90s", "5m", "1d").
// Environment overrides always win over file values.
package config
