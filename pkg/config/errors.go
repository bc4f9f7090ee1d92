package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrConfigNotLoaded is returned when a cached config is missing after loading.
	ErrConfigNotLoaded = errors.New("config: configuration has not been loaded")

	// ErrNilPointer is returned when a nil pointer is provided to a loader.
	ErrNilPointer = errors.New("config: nil pointer provided to config loader")

	// ErrReadingFile is returned when a YAML file cannot be read.
	ErrReadingFile = errors.New("config: failed to read file")

	// ErrParsingYAML is returned when a YAML document cannot be decoded.
	ErrParsingYAML = errors.New("config: failed to parse yaml")
)
