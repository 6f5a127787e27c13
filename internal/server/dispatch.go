package server

import (
	"strconv"
	"strings"

	"github.com/pankaj/linechat/internal/audit"
	"github.com/pankaj/linechat/internal/protocol"
	"github.com/pankaj/linechat/internal/registry"
)

// dispatch handles one parsed frame from c during the Serving state. Every
// inbound frame except LIST_USERS/LIST_GROUPS is recorded to the audit log,
// as is every reply dispatch sends through reply. Acknowledgments that the
// registry methods send directly are not recorded.
func (s *Server) dispatch(c *Connection, line string) {
	s.registry.IncReceived()
	cmd := protocol.Parse(line)

	if cmd.Verb != protocol.VerbListUsers && cmd.Verb != protocol.VerbListGroups {
		s.audit.Record(c.ID(), c.Name(), audit.Received, line)
	}

	switch cmd.Verb {
	case protocol.VerbListUsers:
		c.Send("USERS:" + strings.Join(s.registry.Names(), ","))
		s.registry.IncSent()
	case protocol.VerbListGroups:
		names := s.registry.GroupNames()
		entries := make([]string, 0, len(names))
		for _, g := range names {
			members, ok := s.registry.GroupMembers(g)
			if !ok {
				continue // removed since GroupNames was read
			}
			entries = append(entries, g+"["+strings.Join(members, ",")+"]")
		}
		c.Send("GROUPS:" + strings.Join(entries, ";"))
		s.registry.IncSent()
	case protocol.VerbConnect:
		s.handleConnectVerb(c, cmd.Target)
	case protocol.VerbDisconnectChat:
		s.handleDisconnectChat(c)
	case protocol.VerbCreateGroup:
		s.handleCreateGroup(c, cmd.Group)
	case protocol.VerbJoinGroup:
		s.handleJoinGroup(c, cmd.Group)
	case protocol.VerbInviteToGroup:
		s.handleInviteToGroup(c, cmd.Group, cmd.Target)
	case protocol.VerbLeaveGroup:
		s.handleLeaveGroup(c, cmd.Group)
	case protocol.VerbGroupMessage:
		s.handleGroupMessage(c, cmd.Group, cmd.Text)
	case protocol.VerbBadGroupShape:
		s.reply(c, "ERROR: Invalid command format - expected GROUP:<name>:<message>")
	case protocol.VerbBadInviteShape:
		s.reply(c, "ERROR: Invalid command format - expected INVITE_TO_GROUP:<name>:<user>")
	case protocol.VerbOther:
		s.handleFreeform(c, cmd.Text)
	}
}

// reply sends line to c and records it as a sent audit entry.
func (s *Server) reply(c *Connection, line string) {
	c.Send(line)
	s.registry.IncSent()
	s.audit.Record(c.ID(), c.Name(), audit.Sent, line)
}

func (s *Server) handleConnectVerb(c *Connection, target string) {
	err := s.registry.OpenPair(c, target)
	switch err {
	case nil:
		return // OpenPair already sent both acknowledgments directly
	case registry.ErrSelfTarget:
		s.reply(c, "ERROR: Cannot connect to yourself")
	case registry.ErrTargetNotFound, registry.ErrTargetGone:
		s.reply(c, "ERROR: User '"+target+"' not found")
	case registry.ErrAlreadyPaired:
		s.reply(c, "ERROR: Already connected to "+target)
	default:
		s.reply(c, "ERROR: Unable to connect to "+target)
	}
}

func (s *Server) handleDisconnectChat(c *Connection) {
	err := s.registry.ClosePair(c)
	switch err {
	case nil:
		return // ClosePair already sent the acknowledgment directly
	case registry.ErrNoPartner:
		s.reply(c, "ERROR: No active chat to disconnect")
	default:
		s.reply(c, "ERROR: Unable to disconnect chat")
	}
}

func (s *Server) handleCreateGroup(c *Connection, name string) {
	err := s.registry.CreateGroup(name, c)
	switch err {
	case nil:
		return
	case registry.ErrGroupEmptyName:
		s.reply(c, "ERROR: Group name cannot be empty")
	case registry.ErrGroupExists:
		s.reply(c, "ERROR: Group '"+name+"' already exists")
	default:
		s.reply(c, "ERROR: Unable to create group '"+name+"'")
	}
}

func (s *Server) handleJoinGroup(c *Connection, name string) {
	err := s.registry.JoinGroup(name, c)
	switch err {
	case nil:
		return
	case registry.ErrGroupNotFound:
		s.reply(c, "ERROR: Group '"+name+"' does not exist")
	case registry.ErrAlreadyMember:
		s.reply(c, "ERROR: Already a member of group '"+name+"'")
	default:
		s.reply(c, "ERROR: Unable to join group '"+name+"'")
	}
}

func (s *Server) handleInviteToGroup(c *Connection, name, inviteeName string) {
	err := s.registry.InviteToGroup(name, c, inviteeName)
	switch err {
	case nil:
		return
	case registry.ErrGroupNotFound:
		s.reply(c, "ERROR: Group '"+name+"' does not exist")
	case registry.ErrNotMember:
		s.reply(c, "ERROR: You are not a member of group '"+name+"'")
	case registry.ErrInviteeNotFound:
		s.reply(c, "ERROR: User '"+inviteeName+"' not found")
	case registry.ErrInviteeMember:
		s.reply(c, "ERROR: '"+inviteeName+"' is already a member of group '"+name+"'")
	default:
		s.reply(c, "ERROR: Unable to add '"+inviteeName+"' to group '"+name+"'")
	}
}

func (s *Server) handleLeaveGroup(c *Connection, name string) {
	err := s.registry.LeaveGroup(name, c)
	switch err {
	case nil:
		return
	case registry.ErrGroupNotFound:
		s.reply(c, "ERROR: Group '"+name+"' does not exist")
	case registry.ErrNotMember:
		s.reply(c, "ERROR: You are not a member of group '"+name+"'")
	default:
		s.reply(c, "ERROR: Unable to leave group '"+name+"'")
	}
}

func (s *Server) handleGroupMessage(c *Connection, name, text string) {
	count, err := s.registry.GroupBroadcast(name, c, text)
	switch err {
	case nil:
		s.reply(c, "Message sent to "+strconv.Itoa(count)+" member(s) in group '"+name+"'")
	case registry.ErrGroupNotFound:
		s.reply(c, "ERROR: Group '"+name+"' does not exist")
	case registry.ErrNotMember:
		s.reply(c, "ERROR: You are not a member of group '"+name+"'")
	default:
		s.reply(c, "ERROR: Unable to send message to group '"+name+"'")
	}
}

// handleFreeform implements the default verb: forward to the pair partner
// if one exists, otherwise reply with the uppercased text prefixed by
// "server received ".
func (s *Server) handleFreeform(c *Connection, text string) {
	err := s.registry.Forward(c, text)
	switch err {
	case nil:
		return
	case registry.ErrNoPartner:
		s.reply(c, "server received "+strings.ToUpper(text))
	case registry.ErrPartnerGone:
		s.reply(c, "ERROR: Message delivery failed - your chat partner has disconnected")
	default:
		s.reply(c, "ERROR: Unable to deliver message")
	}
}
