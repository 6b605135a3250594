//go:build linux

package main

import (
	"fmt"

	"banishd/internal/config"
	"banishd/internal/engine"
	"banishd/internal/evdev"
	"banishd/internal/logging"
	"banishd/internal/x11"
)

// evdevSource reads events from the kernel but keeps the X connection
// alive, since cursor hiding still happens on the display.
type evdevSource struct {
	*evdev.Source
	conn *x11.Conn
}

func (s *evdevSource) Close() error {
	err := s.Source.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func openEvdev(cfg *config.Config, conn *x11.Conn, log *logging.Logger) (engine.Source, error) {
	src, err := evdev.Open(cfg.Input.Devices, log.WithComponent("evdev"))
	if err != nil {
		return nil, fmt.Errorf("open input devices: %w", err)
	}
	return &evdevSource{Source: src, conn: conn}, nil
}
