package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/callout/network"
)

// player is the little bit of state the smoke client keeps between commands.
type player struct {
	conn     *websocket.Conn
	roomCode string
	nickname string
}

// send encodes payload as JSON and writes one framed message.
func (p *player) send(msgID uint16, payload any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (p *player) handle(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "create":
		return p.send(network.MsgTypeCreateRoom, nil)
	case "join":
		if len(fields) != 3 {
			log.Println("usage: join <code> <nickname>")
			return nil
		}
		p.roomCode, p.nickname = fields[1], fields[2]
		return p.send(network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: p.roomCode, Nickname: p.nickname})
	case "start":
		return p.send(network.MsgTypeStartGame, network.StartGameRequest{RoomCode: p.roomCode})
	case "challenge":
		if len(fields) < 3 {
			log.Println("usage: challenge <nickname> <card id or text>")
			return nil
		}
		return p.send(network.MsgTypeChallengePlayer, network.ChallengeRequest{
			RoomCode:   p.roomCode,
			Challenger: p.nickname,
			Challenged: fields[1],
			Card:       strings.Join(fields[2:], " "),
		})
	case "yes", "no":
		return p.send(network.MsgTypeSubmitVote, network.VoteRequest{
			RoomCode: p.roomCode,
			VoterID:  p.nickname,
			Verdict:  network.Ballot(fields[0] == "yes"),
		})
	case "leave":
		p.roomCode = ""
		return p.send(network.MsgTypeLeaveRoom, nil)
	default:
		log.Println("commands: create | join <code> <nick> | start | challenge <nick> <card> | yes | no | leave")
	}
	return nil
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()
	p := &player{conn: c}

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			name, ok := network.EventName(packet.MsgID)
			if !ok {
				name = "unknown"
			}
			log.Printf("<- %s (ID: %d): %s", name, packet.MsgID, string(packet.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println("Client started. Type 'create' to open a room.")

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := p.handle(line); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
