// linechat-loadtest replays a CSV-scripted session against the chat
// server: a fixed number of simulated clients, each sending the script's
// lines with the scripted delay between them.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pankaj/linechat/internal/chatclient"
)

// step is one scripted action: wait DelayMS milliseconds, then send Line.
type step struct {
	DelayMS int
	Line    string
}

func main() {
	var host, scriptPath, namePrefix string
	var port, clients int

	root := &cobra.Command{
		Use:   "linechat-loadtest",
		Short: "Replay a CSV-scripted session against the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := loadScript(scriptPath)
			if err != nil {
				return err
			}
			addr := fmt.Sprintf("%s:%d", host, port)
			return runLoad(addr, namePrefix, clients, steps)
		},
	}
	root.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	root.Flags().IntVar(&port, "port", 10000, "server port")
	root.Flags().StringVar(&scriptPath, "script", "", "CSV script path (delay_ms,line)")
	root.Flags().IntVar(&clients, "clients", 1, "number of simulated clients")
	root.Flags().StringVar(&namePrefix, "name-prefix", "load", "prefix for generated client names")
	root.MarkFlagRequired("script")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadScript reads a two-column CSV of (delay_ms, line) rows. A header row
// is tolerated: rows whose first column does not parse as an integer are
// skipped.
func loadScript(path string) ([]step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadtest: opening script: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("loadtest: parsing script: %w", err)
	}

	steps := make([]step, 0, len(records))
	for _, rec := range records {
		delay, err := strconv.Atoi(rec[0])
		if err != nil {
			continue // header row or comment
		}
		steps = append(steps, step{DelayMS: delay, Line: rec[1]})
	}
	return steps, nil
}

func runLoad(addr, namePrefix string, clients int, steps []step) error {
	var wg sync.WaitGroup
	errCh := make(chan error, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			name := fmt.Sprintf("%s-%d", namePrefix, idx)
			if err := runClient(addr, name, steps); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		fmt.Fprintln(os.Stderr, err)
		if first == nil {
			first = err
		}
	}
	return first
}

func runClient(addr, name string, steps []step) error {
	c, err := chatclient.Dial(addr, name, 5*time.Second)
	if err != nil {
		return err
	}
	defer c.Close()

	// Drain server replies in the background so the server's outbox for this
	// client does not fill up and drop frames.
	go func() {
		for {
			if _, err := c.ReadLine(); err != nil {
				return
			}
		}
	}()

	for _, s := range steps {
		if s.DelayMS > 0 {
			time.Sleep(time.Duration(s.DelayMS) * time.Millisecond)
		}
		if err := c.Send(s.Line); err != nil {
			return fmt.Errorf("sending %q: %w", s.Line, err)
		}
	}
	return nil
}
