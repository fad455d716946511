package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/privroom/internal/proto"
)

type joinResponse struct {
	Room      string `json:"room"`
	ExpiresAt string `json:"expires_at"`
	Sender    string `json:"sender"`
	Token     string `json:"token"`
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	room := flag.String("room", "smoke", "room id")
	password := flag.String("password", "smoke-secret", "room password")
	name := flag.String("name", "tester", "display name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	session, err := join(ctx, *base, *room, *password, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Joined room=%s as %s, expires %s\n", session.Room, session.Sender, session.ExpiresAt)

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/api/rooms/" + url.PathEscape(*room) + "/ws?token=" + url.QueryEscape(session.Token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.MsgData{Text: *text})
	if err != nil {
		return fmt.Errorf("marshal msg: %w", err)
	}

	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()

		if out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}

		switch out.Event {
		case proto.EventSnapshot:
			var snap proto.EventSnapshotData
			if err := json.Unmarshal(out.Data, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			fmt.Printf("Snapshot: %d messages\n", len(snap.Messages))
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case proto.EventMessage:
			var msg proto.Message
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: seq=%d sender=%s text=%q\n", msg.Sequence, msg.Sender, msg.Text)
			if msg.Sender == session.Sender && msg.Text == *text {
				return nil
			}
		case proto.EventClosed:
			return fmt.Errorf("room closed before echo")
		}
	}
}

func join(ctx context.Context, base, room, password, name string) (*joinResponse, error) {
	body, err := json.Marshal(map[string]string{"password": password, "name": name})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/rooms/"+url.PathEscape(room)+"/join", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("join: status %d: %s", resp.StatusCode, e.Error)
	}

	var out joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode join: %w", err)
	}
	return &out, nil
}
