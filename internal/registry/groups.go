package registry

import (
	"errors"
	"sort"
)

var (
	ErrGroupExists     = errors.New("registry: group already exists")
	ErrGroupEmptyName  = errors.New("registry: group name must not be empty")
	ErrGroupNotFound   = errors.New("registry: group does not exist")
	ErrAlreadyMember   = errors.New("registry: already a member of that group")
	ErrNotMember       = errors.New("registry: not a member of that group")
	ErrInviteeNotFound = errors.New("registry: invitee is not registered")
	ErrInviteeMember   = errors.New("registry: invitee is already a member")
)

func (r *Registry) addMembershipLocked(g *group, p Peer) {
	g.members[p.ID()] = true
	set, ok := r.memberOf[p.ID()]
	if !ok {
		set = make(map[string]bool)
		r.memberOf[p.ID()] = set
	}
	set[g.name] = true
}

// removeMembershipLocked removes p from g's member set and g from p's
// membership set, returning whether g is now empty.
func (r *Registry) removeMembershipLocked(g *group, p Peer) (empty bool) {
	delete(g.members, p.ID())
	if set, ok := r.memberOf[p.ID()]; ok {
		delete(set, g.name)
		if len(set) == 0 {
			delete(r.memberOf, p.ID())
		}
	}
	return len(g.members) == 0
}

// membersSnapshotLocked returns the peers currently in g, as a stable
// slice safe to range over after releasing the lock (callers here always
// hold the lock already, but the slice itself outlives any later mutation
// of the map).
func (r *Registry) membersSnapshotLocked(g *group) []Peer {
	out := make([]Peer, 0, len(g.members))
	for id := range g.members {
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// CreateGroup creates an empty-but-for-creator group named name.
func (r *Registry) CreateGroup(name string, creator Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return ErrGroupEmptyName
	}
	if _, exists := r.groups[name]; exists {
		return ErrGroupExists
	}

	g := &group{name: name, members: make(map[string]bool)}
	r.groups[name] = g
	r.addMembershipLocked(g, creator)

	creator.Send("Group '" + name + "' created.")
	r.broadcastToOthersLocked(creator.ID(), "GROUP_UPDATED: "+name+" created by "+creator.Name())
	return nil
}

// JoinGroup adds conn to an existing group.
func (r *Registry) JoinGroup(name string, conn Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	if g.members[conn.ID()] {
		return ErrAlreadyMember
	}

	others := r.membersSnapshotLocked(g)
	r.addMembershipLocked(g, conn)

	conn.Send("Joined group '" + name + "'.")
	for _, m := range others {
		m.Send(conn.Name() + " joined group '" + name + "'")
	}
	r.broadcastToOthersLocked(conn.ID(), "GROUP_UPDATED: "+name)
	return nil
}

// InviteToGroup adds inviteeName to name on inviter's behalf. The invitee
// is added unconditionally (no consent step); see SPEC_FULL.md §9 for the
// preserved auto-add semantics.
func (r *Registry) InviteToGroup(name string, inviter Peer, inviteeName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	if !g.members[inviter.ID()] {
		return ErrNotMember
	}
	invitee, ok := r.byName[inviteeName]
	if !ok {
		return ErrInviteeNotFound
	}
	if g.members[invitee.ID()] {
		return ErrInviteeMember
	}

	others := r.membersSnapshotLocked(g)
	r.addMembershipLocked(g, invitee)

	inviter.Send("Added " + invitee.Name() + " to group '" + name + "'.")
	invitee.Send("You were added to group '" + name + "' by " + inviter.Name() + ".")
	for _, m := range others {
		if m.ID() == inviter.ID() {
			continue
		}
		m.Send(invitee.Name() + " was added to group '" + name + "' by " + inviter.Name())
	}
	r.broadcastToOthersLocked(inviter.ID(), "GROUP_UPDATED: "+name)
	return nil
}

// LeaveGroup removes conn from name, deleting the group if it becomes
// empty. Membership removal and the empty-group decision are computed
// before any notification is attempted, so a now-deleted group is never
// iterated (the fixed ordering bug noted in DESIGN.md).
func (r *Registry) LeaveGroup(name string, conn Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	if !g.members[conn.ID()] {
		return ErrNotMember
	}

	remaining := r.membersSnapshotLocked(g)
	empty := r.removeMembershipLocked(g, conn)
	if empty {
		delete(r.groups, name)
		conn.Send("Left group '" + name + "' (group removed, no members remain).")
	} else {
		conn.Send("Left group '" + name + "'.")
		for _, m := range remaining {
			if m.ID() == conn.ID() {
				continue
			}
			m.Send(conn.Name() + " left group '" + name + "'")
		}
	}
	r.broadcastToOthersLocked(conn.ID(), "GROUP_UPDATED: "+name)
	return nil
}

// LeaveAllGroups removes conn from every group it belongs to, as part of
// the Terminating sequence. Deleted (now-empty) groups are never notified.
func (r *Registry) LeaveAllGroups(conn Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.memberOf[conn.ID()]))
	for n := range r.memberOf[conn.ID()] {
		names = append(names, n)
	}

	for _, name := range names {
		g, ok := r.groups[name]
		if !ok {
			continue
		}
		remaining := r.membersSnapshotLocked(g)
		empty := r.removeMembershipLocked(g, conn)
		if empty {
			delete(r.groups, name)
			continue
		}
		for _, m := range remaining {
			if m.ID() == conn.ID() {
				continue
			}
			m.Send(conn.Name() + " left group '" + name + "'")
		}
	}
}

// GroupBroadcast forwards msg from sender to every other member of name,
// returning the number of recipients.
func (r *Registry) GroupBroadcast(name string, sender Peer, msg string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return 0, ErrGroupNotFound
	}
	if !g.members[sender.ID()] {
		return 0, ErrNotMember
	}

	members := r.membersSnapshotLocked(g)
	count := 0
	for _, m := range members {
		if m.ID() == sender.ID() {
			continue
		}
		m.Send("[" + name + "] " + sender.Name() + ": " + msg)
		count++
	}
	return count, nil
}

// GroupNames returns every group name in sorted order.
func (r *Registry) GroupNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.groups))
	for n := range r.groups {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GroupMembers returns the member names of name, sorted.
func (r *Registry) GroupMembers(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(g.members))
	for id := range g.members {
		if p, ok := r.byID[id]; ok {
			names = append(names, p.Name())
		}
	}
	sort.Strings(names)
	return names, true
}

// GroupsOf returns, sorted, the names of every group conn currently
// belongs to.
func (r *Registry) GroupsOf(conn Peer) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.memberOf[conn.ID()]
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
