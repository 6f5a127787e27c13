// Package stats defines the JSON statistics surface returned by
// Server.Stats.
package stats

import "time"

// ClientInfo describes one connected client.
type ClientInfo struct {
	Address          string    `json:"address"`
	Name             string    `json:"name"`
	ConnectedAt      time.Time `json:"connected_at"`
	MessagesSent     uint64    `json:"messages_sent"`
	MessagesReceived uint64    `json:"messages_received"`
	ChatPartner      bool      `json:"chat_partner"`
	ChatPartnerName  string    `json:"chat_partner_name,omitempty"`
	Groups           []string  `json:"groups"`
}

// Snapshot is the full statistics surface.
type Snapshot struct {
	ConnectedClients int                   `json:"connected_clients"`
	TotalMessages    uint64                `json:"total_messages"`
	MessagesReceived uint64                `json:"messages_received"`
	MessagesSent     uint64                `json:"messages_sent"`
	ClientsInfo      map[string]ClientInfo `json:"clients_info"`
	Groups           map[string][]string   `json:"groups"`
	ChatConnections  map[string]string     `json:"chat_connections"`
}
