// Package config loads and watches the reporter configuration file (config.yaml).
//
// Top-level types:
//   - Config{Reporter, Logging}: full config tree parsed from YAML
//   - SiteConfig: base_url, username, password_env, user_agent,
//     request_timeout, max_retries, debug, tls; Password() resolves the
//     secret from the environment variable named by password_env
//   - WindowConfig: start/end dates (YYYY-MM-DD or D/M/YYYY) or a relative
//     mode (previous_month | month_to_date); Resolve(now) returns the
//     concrete types.Window
//   - OutputConfig: format (text | prometheus) and an optional textfile path
//   - StorageConfig: sqlite run archive path and retention
//   - WebhookConfig: type (slack | teams | http) and url_env; URL() resolves
//     from the environment
//
// Load(path) reads the YAML file over Default() (siteuptime.com, 30s request
// timeout, 3 retries, 1% trim, text output) and then runs Validate, which
// applies the validator/v10 struct tags and the window date checks. Errors
// name the offending field by its YAML path.
//
// Watch(ctx, path, onChange) uses fsnotify to detect edits and calls onChange
// with the newly parsed Config. The schedule command uses it to pick up
// config changes between runs.
package config
