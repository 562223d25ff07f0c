package sse

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/notify"
)

// HubNotifier delivers notification events to the recipients' open streams.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Deliver implements notify.LiveSink.
func (n *HubNotifier) Deliver(ev notify.Event) {
	if n.hub.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}
	n.hub.Send(ev.Recipients, data)
}
