package gateway

import "github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"

// MultiPublisher fans one snapshot out to several publishers (WebSocket hub,
// Redis mirror). Each target is already non-blocking on its own.
type MultiPublisher []model.SnapshotPublisher

// Publish forwards the snapshot to every target.
func (m MultiPublisher) Publish(snap model.StateSnapshot) {
	for _, p := range m {
		p.Publish(snap)
	}
}
