// Command client is a minimal terminal chat client for manual testing
// against a running stack. It logs in over the REST API, dials the gateway,
// joins a channel, and bridges stdin to send_message frames.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/model"
)

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func login(apiAddr, username string) (*loginResponse, error) {
	reqBody, _ := json.Marshal(map[string]string{"username": username})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed: %s", string(body))
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func createChannel(apiAddr, token, name string) (*model.Channel, error) {
	reqBody, _ := json.Marshal(map[string]string{"name": name, "kind": "public"})
	req, _ := http.NewRequest(http.MethodPost, apiAddr+"/channels", bytes.NewBuffer(reqBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create channel failed: %s", string(body))
	}

	var ch model.Channel
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func send(c *websocket.Conn, frame map[string]interface{}) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, raw)
}

func render(raw []byte) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Printf("\r%s\n> ", raw)
		return
	}

	switch env.Event {
	case events.TypeNewMessage:
		if env.Message != nil {
			fmt.Printf("\r%s: %s\n> ", env.Message.SenderName, env.Message.Body)
		}
	case events.TypeTyping:
		if env.IsTyping {
			fmt.Printf("\r%s is typing...\n> ", env.Name)
		}
	case events.TypeUserPresence:
		if env.Presence != nil {
			state := "offline"
			if env.Presence.IsOnline {
				state = "online"
			}
			fmt.Printf("\r[%s is now %s]\n> ", env.Presence.UserID, state)
		}
	case events.TypeNotificationsRead:
		fmt.Printf("\r[%d messages read by %s]\n> ", env.ReadCount, env.UserID)
	case "authenticated":
		fmt.Printf("\r[authenticated]\n> ")
	case "channel_history", "error":
		fmt.Printf("\r%s\n> ", raw)
	default:
		fmt.Printf("\r%s\n> ", raw)
	}
}

func main() {
	gatewayAddr := flag.String("addr", "localhost:8080", "gateway address")
	apiAddr := flag.String("api", "http://localhost:8081", "api address")
	username := flag.String("user", "alice", "username to log in as")
	channelID := flag.String("channel", "", "channel id to join (uuid)")
	channelName := flag.String("create", "", "create a channel with this name and join it")
	flag.Parse()

	session, err := login(*apiAddr, *username)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("logged in as %s (%s)", session.User.DisplayName(), session.User.ID)

	target := *channelID
	if *channelName != "" {
		ch, err := createChannel(*apiAddr, session.Token, *channelName)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("created channel %q (%s)", ch.Name, ch.ID)
		target = ch.ID.String()
	}
	if target == "" {
		log.Fatal("pass -channel <uuid> or -create <name>")
	}

	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	if err := send(c, map[string]interface{}{"event": "authenticate", "token": session.Token}); err != nil {
		log.Fatal("authenticate:", err)
	}
	if err := send(c, map[string]interface{}{"event": "join_channel", "channel_id": target}); err != nil {
		log.Fatal("join:", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			render(raw)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			switch text {
			case "":
			case "/quit":
				interrupt <- os.Interrupt
				return
			case "/typing":
				if err := send(c, map[string]interface{}{"event": "typing", "channel_id": target, "is_typing": true}); err != nil {
					log.Println("write:", err)
					return
				}
			default:
				if err := send(c, map[string]interface{}{"event": "send_message", "channel_id": target, "body": text}); err != nil {
					log.Println("write:", err)
					return
				}
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
