package main

// Output format constants.
const (
	jsonFormat = "json"
	yamlFormat = "yaml"
	textFormat = "text"
)

// Environment variables read after .env is loaded.
const (
	envLogLevel  = "POCKETFLOW_LOG_LEVEL"
	envLogFormat = "POCKETFLOW_LOG_FORMAT"
)
