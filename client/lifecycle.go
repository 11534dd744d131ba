// Copyright (C) 2024 Far Memory Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package client

import (
	"time"

	"github.com/farmemory/client/reclaim"
)

// reclaimerLogger adapts Client.Logger to reclaim.Logger (they share
// the same Printf shape, but are distinct types so the two packages
// don't need to import one another's interface).
type reclaimerLogger struct{ c *Client }

func (l reclaimerLogger) Printf(format string, args ...any) { logf(l.c.Logger, format, args...) }

// StartBackgroundReclaimer launches the background reclaimer, keeping
// local usage under lowWatermark and waking up at least every period.
// Calling it more than once without an intervening Stop is a no-op,
// matching Reclaimer.Start's idempotence.
func (c *Client) StartBackgroundReclaimer(lowWatermark int64, period time.Duration) {
	c.mu.Lock()
	if c.reclaimer == nil {
		c.reclaimer = &reclaimer{r: reclaim.New(c, lowWatermark, period, reclaimerLogger{c})}
	}
	r := c.reclaimer
	c.mu.Unlock()
	r.r.Start()
}

// Stop flushes the active replacement policy and joins the background
// reclaimer.
func (c *Client) Stop() error {
	c.mu.Lock()
	r := c.reclaimer
	p := c.policy
	c.mu.Unlock()

	if r != nil {
		r.r.Stop()
	}
	if p != nil {
		return p.OnStop()
	}
	return nil
}

// reclaimer wraps *reclaim.Reclaimer so client.go's struct field can
// stay an unexported pointer without a forward/cyclic type reference.
type reclaimer struct {
	r *reclaim.Reclaimer
}
