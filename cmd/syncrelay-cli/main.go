// Package main provides a simple CLI client for exercising a syncrelay
// server: it obtains a session credential, announces the session join, and
// relays stdin lines as message activities.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/relay"
)

// Client talks to a syncrelay server over its public HTTP surface.
type Client struct {
	server string
	userID string
	cred   *domain.Credential
	httpc  *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(server, userID string) *Client {
	return &Client{
		server: strings.TrimRight(server, "/"),
		userID: userID,
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ObtainToken requests a session credential for the user.
func (c *Client) ObtainToken() error {
	body, _ := json.Marshal(map[string]string{"userId": c.userID})
	resp, err := c.httpc.Post(c.server+"/v1/tokens", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e map[string]string
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("token request failed: %d %s", resp.StatusCode, e["error"])
	}

	var cred domain.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}
	c.cred = &cred
	return nil
}

// SendJoin announces the session join so the server replays logged history
// into it.
func (c *Client) SendJoin() (string, error) {
	conversationID := c.cred.ConversationID
	if conversationID == "" {
		// Fresh session: the credential carries no conversation yet, mint a
		// local id so the server has a replay target.
		conversationID = "conv-" + uuid.New().String()
	}

	join := domain.Activity{
		Kind:         domain.KindEvent,
		Name:         domain.EventJoin,
		From:         domain.Account{ID: c.userID, Role: domain.RoleUser},
		Conversation: domain.Conversation{ID: conversationID},
		Timestamp:    time.Now().UTC(),
	}
	return conversationID, c.postActivity(&join)
}

// SendMessage relays one line of user input as a message activity.
func (c *Client) SendMessage(conversationID, text string) error {
	msg := domain.Activity{
		ID:           "msg-" + uuid.New().String(),
		Kind:         domain.KindMessage,
		Text:         text,
		From:         domain.Account{ID: c.userID, Role: domain.RoleUser},
		Conversation: domain.Conversation{ID: conversationID},
		Timestamp:    time.Now().UTC(),
	}
	return c.postActivity(&msg)
}

func (c *Client) postActivity(a *domain.Activity) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	resp, err := c.httpc.Post(c.server+"/api/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("activity rejected: %d", resp.StatusCode)
	}
	return nil
}

// WatchStream prints activities arriving on the session's websocket feed.
func (c *Client) WatchStream(ctx context.Context) {
	stream, err := relay.DialStream(ctx, c.cred.StreamURL, c.cred.Token)
	if err != nil {
		log.Printf("Stream unavailable: %v", err)
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err != nil {
			log.Printf("Stream closed: %v", err)
			return
		}
		for _, a := range ev.Activities {
			fmt.Printf("\n[%s] %s: %s\n> ", a.Kind, a.From.ID, a.Text)
		}
	}
}

func main() {
	server := flag.String("server", "http://localhost:8080", "syncrelay server base URL")
	userID := flag.String("user", "", "User id to obtain a session for")
	watch := flag.Bool("watch", false, "Follow the session's websocket feed")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *userID == "" {
		*userID = "cli-" + uuid.New().String()
	}

	fmt.Printf("Connecting to %s as %s...\n", *server, *userID)

	client := NewClient(*server, *userID)
	if err := client.ObtainToken(); err != nil {
		log.Fatalf("Failed to obtain token: %v", err)
	}

	if client.cred.ConversationID == "" {
		fmt.Println("New session (no prior history).")
	} else {
		fmt.Printf("Resuming session %s\n", client.cred.ConversationID)
	}

	conversationID, err := client.SendJoin()
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}
	fmt.Printf("Joined conversation %s\n", conversationID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *watch && client.cred.StreamURL != "" {
		go client.WatchStream(ctx)
	}

	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /quit to exit")

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}

			if err := client.SendMessage(conversationID, input); err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
