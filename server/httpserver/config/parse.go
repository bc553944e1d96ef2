package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Get reads f over the defaults. When required is false a missing file is not
// an error and the defaults are returned as is.
func Get(f string, required bool) (*Configs, error) {
	config := Default()
	file, err := os.ReadFile(f)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return config, nil
		}
		return nil, err
	}
	err = GetYaml(file, config)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f, err)
	}

	return config, nil
}

func GetYaml(f []byte, s interface{}) error {
	return yaml.UnmarshalStrict(f, s)
}
