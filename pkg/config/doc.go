// Package config loads the YAML configuration of the wspub command.
//
// Values are resolved in three layers: built-in defaults, the YAML file, then
// WSPUB_* environment variables. Watch reloads the file whenever it changes
// on disk.
//
// Example config file:
//
//	url: wss://api.caption.ninja:443
//	room: my-room
//	max_queue: 500
//	base_delay: 1s
//	max_delay: 30s
//	transport: gws
//	codec: json
//	headers:
//	  Origin: https://caption.ninja
//	metrics:
//	  addr: 127.0.0.1:9108
//	log:
//	  format: json
//	  verbose: true
package config
