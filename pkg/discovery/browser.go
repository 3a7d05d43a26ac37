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

package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/carverauto/fleetcam/pkg/logger"
	"github.com/carverauto/fleetcam/pkg/models"
)

const (
	defaultBrowseInterval = 5 * time.Second

	// browseWindow bounds one browse cycle; it must stay below the
	// cycle interval so cycles never overlap.
	browseWindow = 3 * time.Second
)

// browseFunc runs one mDNS browse, pushing every discovered entry onto
// the channel until its context expires. The channel must be closed by
// the time the cycle ends. Swappable for tests.
type browseFunc func(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error

func zeroconfBrowse(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		close(entries)
		return err
	}

	// Browse returns immediately; the resolver closes entries once ctx
	// expires.
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		close(entries)
		return err
	}

	<-ctx.Done()

	return nil
}

// Browser maintains the console's view of unclaimed devices. Every
// cycle it rebuilds the candidate set from scratch, so a device that
// stopped advertising vanishes after at most one interval. It
// implements lifecycle.Service.
type Browser struct {
	interval time.Duration
	browse   browseFunc
	log      logger.Logger

	mu         sync.RWMutex
	candidates map[string]models.DiscoveredCandidate

	stopCh chan struct{}
	doneCh chan struct{}
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithBrowseInterval overrides the cycle interval.
func WithBrowseInterval(interval time.Duration) BrowserOption {
	return func(b *Browser) {
		b.interval = interval
	}
}

// withBrowseFunc swaps the mDNS backend, for tests.
func withBrowseFunc(browse browseFunc) BrowserOption {
	return func(b *Browser) {
		b.browse = browse
	}
}

// NewBrowser creates a browser with the default zeroconf backend.
func NewBrowser(log logger.Logger, opts ...BrowserOption) *Browser {
	b := &Browser{
		interval:   defaultBrowseInterval,
		browse:     zeroconfBrowse,
		log:        log,
		candidates: make(map[string]models.DiscoveredCandidate),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Start runs browse cycles until Stop or ctx cancellation. The first
// cycle runs immediately.
func (b *Browser) Start(ctx context.Context) error {
	defer close(b.doneCh)

	b.log.Info().
		Dur("interval", b.interval).
		Str("service", ServiceType).
		Msg("Starting mDNS browser")

	b.runCycle(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// Stop ends the browse loop.
func (b *Browser) Stop(ctx context.Context) error {
	close(b.stopCh)

	select {
	case <-b.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Candidates returns the current unclaimed candidates, filtering out
// any alias present in knownAliases.
func (b *Browser) Candidates(knownAliases map[string]struct{}) []models.DiscoveredCandidate {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.DiscoveredCandidate, 0, len(b.candidates))

	for alias, candidate := range b.candidates {
		if _, claimed := knownAliases[alias]; claimed {
			continue
		}

		out = append(out, candidate)
	}

	return out
}

// runCycle performs one full browse and replaces the candidate set with
// whatever answered. A failed browse keeps the previous view and is
// retried next cycle.
func (b *Browser) runCycle(ctx context.Context) {
	window := browseWindow
	if window >= b.interval {
		window = b.interval / 2
	}

	browseCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	found := make(map[string]models.DiscoveredCandidate)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for entry := range entries {
			candidate, ok := candidateFromEntry(entry)
			if !ok {
				b.log.Debug().
					Str("instance", entry.Instance).
					Msg("Skipping discovery record without usable address")

				continue
			}

			found[candidate.Alias] = candidate
		}
	}()

	err := b.browse(browseCtx, entries)

	wg.Wait()

	if err != nil {
		b.log.Warn().Err(err).Msg("Browse cycle failed, keeping previous candidates")
		return
	}

	b.mu.Lock()
	b.candidates = found
	b.mu.Unlock()

	b.log.Debug().Int("candidates", len(found)).Msg("Browse cycle complete")
}

// candidateFromEntry converts one mDNS answer. The alias comes from TXT
// when present, else the instance name.
func candidateFromEntry(entry *zeroconf.ServiceEntry) (models.DiscoveredCandidate, bool) {
	txt := parseTXT(entry.Text)

	alias := txt["alias"]
	if alias == "" {
		alias = entry.Instance
	}

	host := ""

	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	}

	if alias == "" || host == "" || entry.Port == 0 {
		return models.DiscoveredCandidate{}, false
	}

	return models.DiscoveredCandidate{
		Alias: alias,
		Host:  host,
		Port:  entry.Port,
		Metadata: models.CandidateMetadata{
			Version:  txt["version"],
			Protocol: txt["protocol"],
		},
	}, true
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))

	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}

		out[key] = value
	}

	return out
}
