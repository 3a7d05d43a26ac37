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

package orchestrator

import (
	"context"
	"time"

	"github.com/carverauto/fleetcam/pkg/models"
)

// debounceKey scopes a debounce window to one device and one operation,
// so camera edits never delay video edits on the same device.
type debounceKey struct {
	deviceID string
	op       models.CommandOp
}

// debounceEntry is one keyed window. gen identifies the currently armed
// window; a fire whose generation no longer matches was superseded and
// must not send.
type debounceEntry struct {
	timer    *time.Timer
	gen      uint64
	latest   models.CommandPayload
	inFlight bool
	pending  bool
}

// DebounceCameraSettings coalesces rapid camera edits for one device.
// Each edit resets the window; when it elapses only the latest value is
// sent.
func (o *Orchestrator) DebounceCameraSettings(deviceID string, settings models.CameraSettings) {
	o.debounce(
		debounceKey{deviceID: deviceID, op: models.OpUpdateCameraSettings},
		models.CommandPayload{Camera: &settings},
	)
}

// DebounceVideoSettings coalesces rapid video edits for one device.
func (o *Orchestrator) DebounceVideoSettings(deviceID string, settings models.VideoSettings) {
	o.debounce(
		debounceKey{deviceID: deviceID, op: models.OpUpdateVideoSettings},
		models.CommandPayload{Video: &settings},
	)
}

func (o *Orchestrator) debounce(key debounceKey, payload models.CommandPayload) {
	o.debounceMu.Lock()
	defer o.debounceMu.Unlock()

	if o.closed {
		return
	}

	entry, ok := o.windows[key]
	if !ok {
		entry = &debounceEntry{}
		o.windows[key] = entry
	}

	entry.latest = payload

	if entry.inFlight {
		// The running send finishes undisturbed; the new value goes out
		// in a fresh window afterward.
		entry.pending = true
		return
	}

	if entry.timer != nil && !entry.timer.Stop() {
		// The window just elapsed and its fire is waiting on the lock.
		// That fire reads entry.latest, so it carries this edit; arming
		// another timer here would send the value twice.
		return
	}

	o.armLocked(key, entry)
}

// armLocked starts a fresh window for the entry. The caller holds
// debounceMu.
func (o *Orchestrator) armLocked(key debounceKey, entry *debounceEntry) {
	entry.gen++
	gen := entry.gen
	entry.timer = time.AfterFunc(o.debounceWindow, func() { o.fire(key, gen) })
}

// fire sends the latest value for one window. Edits arriving while the
// send is in flight re-arm the window instead of interrupting it. A
// stale generation means the window was superseded after this fire was
// scheduled.
func (o *Orchestrator) fire(key debounceKey, gen uint64) {
	o.debounceMu.Lock()

	entry, ok := o.windows[key]
	if !ok || o.closed || entry.gen != gen {
		o.debounceMu.Unlock()
		return
	}

	payload := entry.latest
	entry.inFlight = true
	entry.timer = nil
	o.debounceMu.Unlock()

	if err := o.Execute(context.Background(), key.op, payload, key.deviceID); err != nil {
		o.log.Warn().
			Err(err).
			Str("op", string(key.op)).
			Str("device_id", key.deviceID).
			Msg("Debounced settings send failed")
	}

	o.debounceMu.Lock()
	defer o.debounceMu.Unlock()

	entry.inFlight = false

	if entry.pending && !o.closed {
		entry.pending = false
		o.armLocked(key, entry)
	}

	o.debounceCond.Broadcast()
}

// Flush sends every pending debounced value immediately and waits for
// the sends to finish. Values queued behind an in-flight send are
// flushed once that send returns.
func (o *Orchestrator) Flush() {
	o.debounceMu.Lock()

	type flushTarget struct {
		key debounceKey
		gen uint64
	}

	for !o.closed {
		ready := make([]flushTarget, 0, len(o.windows))
		busy := false

		for key, entry := range o.windows {
			switch {
			case entry.inFlight:
				busy = true
			case entry.timer == nil:
			case entry.timer.Stop():
				entry.timer = nil

				ready = append(ready, flushTarget{key: key, gen: entry.gen})
			default:
				// Fire already underway; it settles like an in-flight
				// send.
				busy = true
			}
		}

		if len(ready) == 0 {
			if !busy {
				break
			}

			o.debounceCond.Wait()

			continue
		}

		o.debounceMu.Unlock()

		for _, target := range ready {
			o.fire(target.key, target.gen)
		}

		o.debounceMu.Lock()
	}

	o.debounceMu.Unlock()
}

// Close drops all pending windows without sending. Further debounce
// calls become no-ops.
func (o *Orchestrator) Close() {
	o.debounceMu.Lock()
	defer o.debounceMu.Unlock()

	o.closed = true

	for _, entry := range o.windows {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}

		entry.pending = false
	}

	o.debounceCond.Broadcast()
}
