package config

import (
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Init writes a configuration file with every default filled in, so a new
// workspace starts from something editable rather than a blank page.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return ferrors.ConfigError("configuration file already exists").
				WithContext("path", path).
				WithContext("hint", "use --force to overwrite").
				Build()
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "encode default configuration").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "write configuration file").
			WithContext("path", path).
			Build()
	}
	return nil
}
