package config

import (
	"bytes"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes the YAML file at path into v. ${VAR} references are
// expanded from the environment first, so secrets can stay out of the file.
// Unknown fields are rejected.
func LoadYAML[T any](path string, v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrReadingFile, err)
	}
	return DecodeYAML(data, v)
}

// DecodeYAML is LoadYAML for in-memory documents.
func DecodeYAML[T any](data []byte, v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDotenv()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrParsingYAML, err)
	}
	return nil
}
