package storyapi

import (
	"context"
	"slices"

	storySvc "plotline/internal/domain/services/story"
)

// SendBeacon queues a fire-and-forget update that outlives the caller.
// It reports whether the beacon was accepted; delivery is never confirmed.
func (c *Client) SendBeacon(id string, req *storySvc.UpdateRequest) bool {
	select {
	case c.beaconSlots <- struct{}{}:
	default:
		return false
	}

	c.beacons.Add(1)
	seq := c.track(Beacon{ID: id, Request: req})
	go func() {
		defer c.beacons.Done()
		defer func() { <-c.beaconSlots }()
		defer c.untrack(seq)

		if _, err := c.Update(context.Background(), id, req); err != nil {
			c.logger.Warn("beacon delivery failed", "snippet_id", id, "error", err)
			if c.onBeaconFailure != nil {
				c.onBeaconFailure(id, req, err)
			}
			return
		}
		c.logger.Debug("beacon delivered", "snippet_id", id)
	}()
	return true
}

// Beacon is an update handed to SendBeacon
type Beacon struct {
	ID      string
	Request *storySvc.UpdateRequest
}

func (c *Client) track(b Beacon) uint64 {
	c.beaconMu.Lock()
	defer c.beaconMu.Unlock()
	c.beaconSeq++
	c.inflight[c.beaconSeq] = b
	return c.beaconSeq
}

func (c *Client) untrack(seq uint64) {
	c.beaconMu.Lock()
	defer c.beaconMu.Unlock()
	delete(c.inflight, seq)
}

// InFlightBeacons lists beacons whose delivery has not finished, oldest first
func (c *Client) InFlightBeacons() []Beacon {
	c.beaconMu.Lock()
	defer c.beaconMu.Unlock()

	seqs := make([]uint64, 0, len(c.inflight))
	for seq := range c.inflight {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)

	out := make([]Beacon, len(seqs))
	for i, seq := range seqs {
		out[i] = c.inflight[seq]
	}
	return out
}

// UpdateKeepalive sends an update that is not aborted when ctx is cancelled.
// The request timeout still applies.
func (c *Client) UpdateKeepalive(ctx context.Context, id string, req *storySvc.UpdateRequest) error {
	_, err := c.Update(context.WithoutCancel(ctx), id, req)
	return err
}

// DrainBeacons waits for in-flight beacons or ctx, whichever ends first
func (c *Client) DrainBeacons(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
