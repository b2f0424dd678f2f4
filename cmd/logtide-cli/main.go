// Command logtide-cli ships log lines to a logtide server from scripts and
// cron jobs. It reads one event from flags, or a stream of lines from stdin.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type submission struct {
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type batchRequest struct {
	Logs []submission `json:"logs"`
}

// maxBatch mirrors the server-side batch cap.
const maxBatch = 100

func main() {
	server := flag.String("server", envOr("LOGTIDE_SERVER", "http://localhost:8080"), "server base URL")
	apiKey := flag.String("api-key", os.Getenv("LOGTIDE_API_KEY"), "project API key (cl_…)")
	level := flag.String("level", "INFO", "log level")
	message := flag.String("message", "", "message; empty reads lines from stdin")
	source := flag.String("source", "", "source tag")
	metadata := flag.String("metadata", "", "metadata JSON object")
	flag.Parse()

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing API key (--api-key or LOGTIDE_API_KEY)")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 15 * time.Second}

	var meta json.RawMessage
	if *metadata != "" {
		if !json.Valid([]byte(*metadata)) {
			fmt.Fprintln(os.Stderr, "metadata must be valid JSON")
			os.Exit(2)
		}
		meta = json.RawMessage(*metadata)
	}

	if *message != "" {
		err := send(client, *server, *apiKey, submission{
			Level:    *level,
			Message:  *message,
			Metadata: meta,
			Source:   *source,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := stream(client, *server, *apiKey, *level, *source, os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// send posts one event.
func send(client *http.Client, server, apiKey string, sub submission) error {
	return post(client, server+"/api/v1/logs", apiKey, sub)
}

// stream reads lines and ships them in batches, flushing on EOF.
func stream(client *http.Client, server, apiKey, level, source string, in io.Reader) error {
	flush := func(batch []submission) error {
		if len(batch) == 0 {
			return nil
		}
		return post(client, server+"/api/v1/logs/batch", apiKey, batchRequest{Logs: batch})
	}

	var batch []submission
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		batch = append(batch, submission{Level: level, Message: line, Source: source})
		if len(batch) == maxBatch {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush(batch)
}

func post(client *http.Client, url, apiKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
