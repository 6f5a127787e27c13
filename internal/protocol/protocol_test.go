package protocol

import (
	"strings"
	"testing"
)

func TestParseSimpleVerbs(t *testing.T) {
	tests := []struct {
		in   string
		want Verb
	}{
		{"LIST_USERS", VerbListUsers},
		{"LIST_GROUPS", VerbListGroups},
		{"DISCONNECT_CHAT", VerbDisconnectChat},
	}
	for _, tt := range tests {
		got := Parse(tt.in)
		if got.Verb != tt.want {
			t.Errorf("Parse(%q).Verb = %v, want %v", tt.in, got.Verb, tt.want)
		}
	}
}

func TestParseGroupVerbs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Command
	}{
		{"create", "CREATE_GROUP:room", Command{Verb: VerbCreateGroup, Group: "room"}},
		{"join", "JOIN_GROUP:room", Command{Verb: VerbJoinGroup, Group: "room"}},
		{"leave", "LEAVE_GROUP:room", Command{Verb: VerbLeaveGroup, Group: "room"}},
		{"group message", "GROUP:room:hi all", Command{Verb: VerbGroupMessage, Group: "room", Text: "hi all"}},
		{"group message with colon in body", "GROUP:room:10:30 meeting", Command{Verb: VerbGroupMessage, Group: "room", Text: "10:30 meeting"}},
		{"invite", "INVITE_TO_GROUP:room:bob", Command{Verb: VerbInviteToGroup, Group: "room", Target: "bob"}},
		{"connect", "CONNECT:bob", Command{Verb: VerbConnect, Target: "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseBadShapes(t *testing.T) {
	tests := []struct {
		in   string
		want Verb
	}{
		{"GROUP:room", VerbBadGroupShape},
		{"GROUP:", VerbBadGroupShape},
		{"INVITE_TO_GROUP:room", VerbBadInviteShape},
		{"INVITE_TO_GROUP:room:", VerbBadInviteShape},
		{"INVITE_TO_GROUP::bob", VerbBadInviteShape},
	}
	for _, tt := range tests {
		got := Parse(tt.in)
		if got.Verb != tt.want {
			t.Errorf("Parse(%q).Verb = %v, want %v", tt.in, got.Verb, tt.want)
		}
	}
}

func TestParseOtherIsFreeformNotGroupUpdated(t *testing.T) {
	// GROUP_UPDATED is server-to-client only; the codec must never classify
	// an inbound line starting with it as a GROUP: verb.
	got := Parse("GROUP_UPDATED: room")
	if got.Verb != VerbOther {
		t.Errorf("Parse(GROUP_UPDATED:...).Verb = %v, want VerbOther", got.Verb)
	}

	got = Parse("hello there")
	if got.Verb != VerbOther || got.Text != "hello there" {
		t.Errorf("Parse(hello there) = %+v, want VerbOther/hello there", got)
	}
}

func TestFramerReadFrame(t *testing.T) {
	input := "hello\nworld\r\n"
	f := NewFramer(strings.NewReader(input))

	line, err := f.ReadFrame(4096)
	if err != nil || line != "hello" {
		t.Fatalf("first frame = %q, err = %v", line, err)
	}

	line, err = f.ReadFrame(4096)
	if err != nil || line != "world" {
		t.Fatalf("second frame = %q, err = %v", line, err)
	}
}

func TestFramerOversizeFrameIsRecoverable(t *testing.T) {
	big := strings.Repeat("x", 100)
	input := big + "\nok\n"
	f := NewFramer(strings.NewReader(input))

	_, err := f.ReadFrame(10)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	// The reader must still be positioned after the oversized line's
	// newline so the next frame reads cleanly.
	line, err := f.ReadFrame(10)
	if err != nil || line != "ok" {
		t.Fatalf("recovery frame = %q, err = %v", line, err)
	}
}

func TestFramerEOF(t *testing.T) {
	f := NewFramer(strings.NewReader(""))
	_, err := f.ReadFrame(4096)
	if err == nil {
		t.Fatal("expected an error on empty input")
	}
}
