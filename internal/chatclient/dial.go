// Package chatclient implements the raw line-protocol dialing and
// registration handshake shared by cmd/client, cmd/loadtest, and cmd/tui.
package chatclient

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client is a connected, registered session against the chat server.
type Client struct {
	Name string

	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to addr, completes the Greeting/Registering handshake with
// name, and returns a ready-to-use Client. It fails if the server rejects
// the name (duplicate, empty, too long, bad characters) or does not
// respond within timeout.
func Dial(addr, name string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("chatclient: dial %s: %w", addr, err)
	}
	reader := bufio.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(timeout))
	if _, err := readLine(reader); err != nil { // "welcome"
		conn.Close()
		return nil, fmt.Errorf("chatclient: reading welcome banner: %w", err)
	}
	if _, err := readLine(reader); err != nil { // "Please send your name:"
		conn.Close()
		return nil, fmt.Errorf("chatclient: reading name prompt: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("chatclient: sending name: %w", err)
	}

	ack, err := readLine(reader)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("chatclient: reading registration result: %w", err)
	}
	if strings.HasPrefix(ack, "ERROR:") {
		conn.Close()
		return nil, fmt.Errorf("chatclient: server rejected name: %s", ack)
	}
	conn.SetReadDeadline(time.Time{})

	// Drain the "Available commands: ..." line that follows a successful
	// registration.
	if _, err := readLine(reader); err != nil {
		conn.Close()
		return nil, fmt.Errorf("chatclient: reading command banner: %w", err)
	}

	return &Client{Name: name, conn: conn, reader: reader}, nil
}

// Send writes line to the server, appending the frame delimiter.
func (c *Client) Send(line string) error {
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	return err
}

// ReadLine blocks for the next server frame.
func (c *Client) ReadLine() (string, error) {
	return readLine(c.reader)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
