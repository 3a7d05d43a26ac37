/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle manages service startup, shutdown, and logger wiring.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/fleetcam/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is the contract every long-running component implements.
// Start blocks until the service stops or ctx is canceled; Stop asks it
// to wind down within the ctx deadline.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options configures a Run invocation.
type Options struct {
	ServiceName     string
	Services        []Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
}

// Run starts every service, then blocks until SIGINT/SIGTERM or the
// first service failure, and stops all services in reverse order.
func Run(ctx context.Context, opts *Options) error {
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(opts.Services))

	for _, svc := range opts.Services {
		go func(s Service) {
			if err := s.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(svc)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Service failed")
		runErr = err
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer stopCancel()

	for i := len(opts.Services) - 1; i >= 0; i-- {
		if err := opts.Services[i].Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping service")

			if runErr == nil {
				runErr = fmt.Errorf("stop failed: %w", err)
			}
		}
	}

	if err := ShutdownLogger(); err != nil {
		log.Error().Err(err).Msg("Error flushing logs")
	}

	return runErr
}
