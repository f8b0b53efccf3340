package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
)

const botFrameInterval = time.Second / 60

// newBotCmd builds the headless client. It joins a room, waits out the
// lobby, then plays the match with a random-walk policy: useful for load
// testing and for filling out a room during development.
func newBotCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Run a headless player that joins the arena and walks around.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context().Done(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.serverURL, "server", "ws://localhost:8080/arena/ws", "arena websocket URL (env: BOMBERDOM_SERVER)")
	fs.StringVar(&cfg.nickname, "nickname", "", "nickname to join with, random when empty (env: BOMBERDOM_NICKNAME)")

	return cmd
}

func runBot(stop <-chan struct{}, cfg *Config) error {
	nickname := cfg.nickname
	if nickname == "" {
		nickname = fmt.Sprintf("bot_%04d", rand.Intn(10000))
	}

	channel, err := DialNetworkChannel(cfg.serverURL, nickname)
	if err != nil {
		return err
	}
	defer channel.Close()

	logf(cfg, "BOT: %q connected to %s", nickname, cfg.serverURL)

	starts := make(chan GameStartMessage, 1)
	rejections := make(chan string, 1)

	channel.On("invalidNickname", func(payload json.RawMessage) {
		var msg InvalidNicknameMessage
		if json.Unmarshal(payload, &msg) == nil {
			rejections <- msg.Reason
		}
	})
	channel.On("roomFull", func(payload json.RawMessage) {
		rejections <- "server is full"
	})
	channel.On("chat", func(payload json.RawMessage) {
		var msg ChatMessage
		if json.Unmarshal(payload, &msg) == nil {
			logf(cfg, "BOT: chat: %s", msg.Message)
		}
	})
	channel.On("countdownTick", func(payload json.RawMessage) {
		var msg CountdownTickMessage
		if json.Unmarshal(payload, &msg) == nil {
			logf(cfg, "BOT: Game starts in %ds", msg.Seconds)
		}
	})
	channel.On("gameStart", func(payload json.RawMessage) {
		var msg GameStartMessage
		if json.Unmarshal(payload, &msg) == nil {
			select {
			case starts <- msg:
			default:
			}
		}
	})

	readDone := make(chan error, 1)
	go func() {
		readDone <- channel.ReadLoop()
	}()

	for {
		select {
		case <-stop:
			return nil
		case err := <-readDone:
			return err
		case reason := <-rejections:
			return fmt.Errorf("join rejected: %s", reason)
		case start := <-starts:
			logf(cfg, "BOT: Game started with seed %d", start.Seed)
			botPlay(stop, cfg, channel, start)
		}
	}
}

// botPlay runs one match through a real GameSession against an in-memory
// page, steering with a random walk.
func botPlay(stop <-chan struct{}, cfg *Config, channel *NetworkChannel, start GameStartMessage) {
	doc := NewMemoryDocument()
	container := doc.CreateElement("div")
	session := NewGameSession(channel, realClock{}, doc, container, start, channel.AssignedPlayerID())
	defer session.Close()

	keys := []string{"w", "a", "s", "d"}
	held := ""
	ticker := time.NewTicker(botFrameInterval)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if session.Over() || channel.Closed() {
				logf(cfg, "BOT: Game over")
				return
			}
			frames++
			if frames%30 == 0 {
				if held != "" {
					session.Input().Release(held)
				}
				held = keys[rand.Intn(len(keys))]
				session.Input().Press(held)
				if rand.Intn(4) == 0 {
					session.Input().Press(" ")
				}
			}
			session.Step()
		}
	}
}
