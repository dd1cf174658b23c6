// Command smoke exercises a running stack end to end: log two users in,
// open a direct channel, send a message, and confirm the recipient sees it
// as unread and can mark it read.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

var apiAddr = "http://localhost:8081"

type session struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

func call(method, path, token string, body interface{}, out interface{}) error {
	var buf io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, apiAddr+path, buf)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func login(username string) session {
	var s session
	if err := call("POST", "/login", "", map[string]string{"username": username}, &s); err != nil {
		log.Fatalf("login %s: %v", username, err)
	}
	return s
}

func main() {
	alice := login("smoke-alice")
	bob := login("smoke-bob")
	log.Printf("alice=%s bob=%s", alice.User.ID, bob.User.ID)

	var dm struct {
		ID string `json:"id"`
	}
	if err := call("POST", "/channels/direct", alice.Token, map[string]string{"user_id": bob.User.ID}, &dm); err != nil {
		log.Fatalf("create direct: %v", err)
	}
	log.Printf("direct channel: %s", dm.ID)

	var msg struct {
		ID int64 `json:"id"`
	}
	if err := call("POST", "/messages/send", alice.Token,
		map[string]string{"channel_id": dm.ID, "body": "smoke test"}, &msg); err != nil {
		log.Fatalf("send: %v", err)
	}
	log.Printf("sent message %d", msg.ID)

	var unread struct {
		Count int `json:"count"`
	}
	if err := call("GET", "/messages/unread?channel_id="+dm.ID, bob.Token, nil, &unread); err != nil {
		log.Fatalf("unread: %v", err)
	}
	if unread.Count != 1 {
		log.Fatalf("expected 1 unread for bob, got %d", unread.Count)
	}

	var marked struct {
		Marked int `json:"marked"`
	}
	if err := call("POST", "/messages/mark-read", bob.Token,
		map[string]interface{}{"channel_id": dm.ID}, &marked); err != nil {
		log.Fatalf("mark-read: %v", err)
	}
	if marked.Marked != 1 {
		log.Fatalf("expected 1 marked, got %d", marked.Marked)
	}

	if err := call("GET", "/messages/unread?channel_id="+dm.ID, bob.Token, nil, &unread); err != nil {
		log.Fatalf("unread after mark: %v", err)
	}
	if unread.Count != 0 {
		log.Fatalf("expected 0 unread after mark, got %d", unread.Count)
	}

	log.Println("smoke test passed")
}
