//go:build !linux

package main

import (
	"errors"

	"banishd/internal/config"
	"banishd/internal/engine"
	"banishd/internal/logging"
	"banishd/internal/x11"
)

func openEvdev(*config.Config, *x11.Conn, *logging.Logger) (engine.Source, error) {
	return nil, errors.New("the evdev source is only available on linux")
}
