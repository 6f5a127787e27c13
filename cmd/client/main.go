package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pankaj/linechat/internal/chatclient"
)

func main() {
	var host, username string
	var port int

	root := &cobra.Command{
		Use:   "linechat-client",
		Short: "Interactive raw-line client for the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			return run(fmt.Sprintf("%s:%d", host, port), username)
		},
	}
	root.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	root.Flags().IntVar(&port, "port", 10000, "server port")
	root.Flags().StringVar(&username, "username", "", "name to register")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, username string) error {
	c, err := chatclient.Dial(addr, username, 5*time.Second)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("Connected to %s as %s\n", addr, username)
	fmt.Println("Type a raw command (CONNECT:<name>, GROUP:<name>:<msg>, LIST_USERS, ...) or free text.")

	go func() {
		for {
			line, err := c.ReadLine()
			if err != nil {
				fmt.Println("\nDisconnected from server.")
				os.Exit(0)
			}
			fmt.Printf("\n%s\n> ", line)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "quit" {
			return nil
		}
		if err := c.Send(line); err != nil {
			return fmt.Errorf("sending: %w", err)
		}
		fmt.Print("> ")
	}
	return nil
}
