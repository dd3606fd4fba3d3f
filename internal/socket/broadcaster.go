package socket

import (
	"fmt"
)

// Broadcaster provides high-level methods for broadcasting events
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// ============================================
// Account Request Broadcasting
// ============================================

// BroadcastAccountRequestSubmitted announces a new request to admin dashboards
func (b *Broadcaster) BroadcastAccountRequestSubmitted(request map[string]interface{}) {
	b.broadcastAccountRequest(MessageAccountRequestSubmitted, request)
}

// BroadcastAccountRequestApproved announces an approval
func (b *Broadcaster) BroadcastAccountRequestApproved(request map[string]interface{}) {
	b.broadcastAccountRequest(MessageAccountRequestApproved, request)
}

// BroadcastAccountRequestRejected announces a rejection
func (b *Broadcaster) BroadcastAccountRequestRejected(request map[string]interface{}) {
	b.broadcastAccountRequest(MessageAccountRequestRejected, request)
}

// broadcastAccountRequest sends to the shared feed and to anyone watching
// this request's detail view.
func (b *Broadcaster) broadcastAccountRequest(msgType MessageType, request map[string]interface{}) {
	payload := map[string]interface{}{"request": request}
	b.hub.SendToRoom(RoomAccountRequests, msgType, payload, "")
	if id, ok := request["id"]; ok {
		b.hub.SendToRoom(fmt.Sprintf("account_request:%v", id), msgType, payload, "")
	}
}
