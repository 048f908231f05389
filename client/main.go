// Command client is a terminal chat client for the referee server.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/network"
)

type clientOptions struct {
	addr      string
	userID    string
	name      string
	realName  string
	channel   string
	heartbeat time.Duration
}

func main() {
	opts := clientOptions{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Chat with the foosball referee from a terminal",
		Long:  "Chat with the foosball referee from a terminal.\n\n" + localHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "localhost:8080", "server host:port")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "handle shown in mentions")
	cmd.Flags().StringVar(&opts.realName, "real-name", "", "full name shown in status")
	cmd.Flags().StringVarP(&opts.channel, "channel", "c", "general", "channel to join")
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", 20*time.Second, "heartbeat interval, 0 to disable")
	cmd.MarkFlagRequired("user")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func send(c *websocket.Conn, msgID uint16, v any) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = network.Marshal(v); err != nil {
			return err
		}
	}
	return c.WriteMessage(websocket.BinaryMessage, network.EncodePacket(msgID, data))
}

func run(opts clientOptions) error {
	logger.Init("info", true)
	defer logger.Sync()

	if opts.name == "" {
		opts.name = opts.userID
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: opts.addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	// all writes happen on this goroutine; gorilla allows one writer
	lines := make(chan string)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			printPacket(packet)
		}
	}()

	cur := identity{
		userID:   opts.userID,
		name:     opts.name,
		realName: opts.realName,
		channel:  opts.channel,
	}
	if err := sendHello(c, cur); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	// stdin loop
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if text := strings.TrimSpace(scanner.Text()); text != "" {
				lines <- text
			}
		}
	}()

	var tick <-chan time.Time
	if opts.heartbeat > 0 {
		ticker := time.NewTicker(opts.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return nil
		case text := <-lines:
			local, err := parseLocal(text, cur)
			switch {
			case errors.Is(err, errNotLocal):
				if err := send(c, network.MsgTypeChat, network.ChatPayload{Text: text}); err != nil {
					return fmt.Errorf("write: %w", err)
				}
			case err != nil:
				fmt.Println(err)
			case local.quit:
				return closeConn(c, done)
			case local.hello != nil:
				cur = *local.hello
				if err := sendHello(c, cur); err != nil {
					return fmt.Errorf("hello: %w", err)
				}
			}
		case <-tick:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			return closeConn(c, done)
		}
	}
}

func sendHello(c *websocket.Conn, id identity) error {
	return send(c, network.MsgTypeHello, network.HelloPayload{
		UserID:   id.userID,
		Name:     id.name,
		RealName: id.realName,
		Channel:  id.channel,
	})
}

// closeConn sends a close frame and waits briefly for the server to hang up.
func closeConn(c *websocket.Conn, done <-chan struct{}) error {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Log.Infof("Write close error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func printPacket(p *network.Packet) {
	switch p.MsgID {
	case network.MsgTypeChat:
		var chat network.ChatPayload
		if err := network.Unmarshal(p.Data, &chat); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", chat.Channel, chat.Name, chat.Text)
	case network.MsgTypeWelcome:
		var w network.WelcomePayload
		if err := network.Unmarshal(p.Data, &w); err == nil {
			fmt.Printf("joined #%s (session %s)\n", w.Channel, w.SessionID)
		}
	case network.MsgTypeError:
		var e network.ErrorPayload
		if err := network.Unmarshal(p.Data, &e); err == nil {
			fmt.Printf("error: %s\n", e.Message)
		}
	case network.MsgTypeHeartbeat:
	default:
		logger.Log.Debugf("<- RECV (ID: %d): %s", p.MsgID, string(p.Data))
	}
}
