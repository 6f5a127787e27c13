package registry

import "github.com/pankaj/linechat/internal/stats"

// BuildStats assembles the statistics surface from the current registry
// state under a single read lock.
func (r *Registry) BuildStats() stats.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make(map[string]stats.ClientInfo, len(r.byID))
	chatConns := make(map[string]string)

	for id, p := range r.byID {
		info := stats.ClientInfo{
			Address:          p.Addr(),
			Name:             p.Name(),
			ConnectedAt:      p.ConnectedAt(),
			MessagesSent:     p.Sent(),
			MessagesReceived: p.Received(),
			Groups:           r.groupsOfLocked(id),
		}
		if partnerID, ok := r.partner[id]; ok {
			if partner, ok := r.byID[partnerID]; ok {
				info.ChatPartner = true
				info.ChatPartnerName = partner.Name()
				chatConns[id] = partner.Name()
			}
		}
		clients[id] = info
	}

	groups := make(map[string][]string, len(r.groups))
	for name, g := range r.groups {
		names := make([]string, 0, len(g.members))
		for mid := range g.members {
			if p, ok := r.byID[mid]; ok {
				names = append(names, p.Name())
			}
		}
		groups[name] = names
	}

	return stats.Snapshot{
		ConnectedClients: len(r.byID),
		TotalMessages:    r.totalReceived + r.totalSent,
		MessagesReceived: r.totalReceived,
		MessagesSent:     r.totalSent,
		ClientsInfo:      clients,
		Groups:           groups,
		ChatConnections:  chatConns,
	}
}

func (r *Registry) groupsOfLocked(peerID string) []string {
	set := r.memberOf[peerID]
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}
