package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"salesbot/pkg"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
)

// client talks to a running salesbot server and keeps the session id between turns
type client struct {
	baseURL   string
	adminID   string
	sessionID string
	hc        *http.Client
}

func (c *client) send(ctx context.Context, message string) (*pkg.ChatResponse, error) {
	body, err := sonic.Marshal(pkg.ChatRequest{Message: message, SessionID: c.sessionID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminID != "" {
		req.Header.Set("X-Admin-ID", c.adminID)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out pkg.ChatResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	c.sessionID = out.SessionID
	return &out, nil
}

func (c *client) end(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions/"+c.sessionID+"/end", nil)
	if err != nil {
		return err
	}
	if c.adminID != "" {
		req.Header.Set("X-Admin-ID", c.adminID)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	c.sessionID = ""
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	addr := flag.String("url", envOr("SALESBOT_URL", "http://localhost:8080"), "salesbot server base URL")
	admin := flag.String("admin", os.Getenv("SALESBOT_ADMIN_ID"), "admin id sent as X-Admin-ID")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		adminID: *admin,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}

	fmt.Println("💬 SalesBot terminal chat")
	fmt.Println("Type a message, /new to start a new session, /quit to exit")
	fmt.Println(strings.Repeat("=", 60))

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n🧑 You: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			if err := c.end(ctx); err != nil {
				log.Printf("Warning: failed to end session: %v", err)
			}
			fmt.Println("👋 Bye")
			return
		case "/new":
			if err := c.end(ctx); err != nil {
				log.Printf("Warning: failed to end session: %v", err)
			}
			fmt.Println("🆕 Session ended, the next message starts a new one")
			continue
		}

		start := time.Now()
		resp, err := c.send(ctx, line)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}
		fmt.Printf("🤖 Bot: %s\n", resp.Response)
		fmt.Printf("   [session=%s source=%s %s]\n", resp.SessionID, resp.SourceType, time.Since(start).Round(time.Millisecond))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
