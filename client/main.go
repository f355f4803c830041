package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/network"
)

func main() {
	cmd := &cli.Command{
		Name:  "ttt",
		Usage: "play tic-tac-toe against another player",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "localhost:7860",
				Usage:   "server host:port",
				Sources: cli.EnvVars("TTT_SERVER"),
			},
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Required: true,
				Sources:  cli.EnvVars("TTT_USERNAME"),
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Required: true,
				Sources:  cli.EnvVars("TTT_PASSWORD"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log protocol traffic",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := "warn"
			if cmd.Bool("debug") {
				level = "debug"
			}
			logger.Init(level, true)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:   "signup",
				Usage:  "create an account",
				Action: signup,
			},
			{
				Name:      "play",
				Usage:     "create a room, or join one when a code is given",
				ArgsUsage: "[ROOM_CODE]",
				Action:    play,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type account struct {
	http     *http.Client
	base     url.URL
	username string
	password string
}

func newAccount(cmd *cli.Command) (*account, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &account{
		http:     &http.Client{Jar: jar},
		base:     url.URL{Scheme: "http", Host: cmd.String("server")},
		username: cmd.String("username"),
		password: cmd.String("password"),
	}, nil
}

func (a *account) post(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string]string{"username": a.username, "password": a.password})
	if err != nil {
		return err
	}
	u := a.base
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &reply)
	if resp.StatusCode != http.StatusOK {
		if reply.Error == "" {
			reply.Error = resp.Status
		}
		return errors.New(reply.Error)
	}
	if reply.Message != "" {
		fmt.Println(reply.Message)
	}
	return nil
}

func signup(ctx context.Context, cmd *cli.Command) error {
	a, err := newAccount(cmd)
	if err != nil {
		return err
	}
	return a.post(ctx, "/signup")
}

func play(ctx context.Context, cmd *cli.Command) error {
	a, err := newAccount(cmd)
	if err != nil {
		return err
	}
	if err := a.post(ctx, "/login"); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	u := url.URL{Scheme: "ws", Host: a.base.Host, Path: "/ws"}
	dialer := websocket.Dialer{Jar: a.http.Jar}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	g := &game{conn: conn, me: a.username}
	if code := cmd.Args().First(); code != "" {
		g.setCode(network.NormalizeRoomCode(code))
		err = g.send(network.CmdJoinRoom, g.roomCode())
	} else {
		err = g.send(network.CmdCreateRoom, nil)
	}
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.readLoop()
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: move N (0-8), rematch, react TEXT, leave, quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := g.command(line)
			if err != nil {
				fmt.Println(err)
			}
			if quit {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
		}
	}
}

type game struct {
	conn  *websocket.Conn
	me    string
	code  string
	mutex sync.Mutex
}

func (g *game) setCode(code string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.code = code
}

func (g *game) roomCode() string {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.code
}

func (g *game) send(event string, data any) error {
	logger.Log.Debugw("send", "event", event, "data", data)
	return g.conn.WriteJSON(map[string]any{"event": event, "data": data})
}

func (g *game) command(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	code := g.roomCode()

	switch fields[0] {
	case "move", "m":
		if len(fields) != 2 {
			return false, errors.New("usage: move N")
		}
		position, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("bad position %q", fields[1])
		}
		return false, g.send(network.CmdMakeMove, map[string]any{"roomCode": code, "position": position})
	case "rematch":
		return false, g.send(network.CmdRematch, code)
	case "react":
		text := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		return false, g.send(network.CmdSendReaction, map[string]any{"roomCode": code, "reaction": text})
	case "leave":
		return false, g.send(network.CmdLeaveRoom, code)
	case "ping":
		return false, g.send(network.CmdPing, nil)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

type snapshot struct {
	Code    string    `json:"code"`
	Board   []*string `json:"board"`
	Turn    string    `json:"turn"`
	Status  string    `json:"status"`
	Players []struct {
		Username string `json:"username"`
		Symbol   string `json:"symbol"`
	} `json:"players"`
}

func (g *game) readLoop() {
	for {
		var env network.Message
		if err := g.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Println("connection closed:", err)
			}
			return
		}
		logger.Log.Debugw("recv", "event", env.Event, "data", string(env.Data))
		g.show(env.Event, env.Data)
	}
}

func (g *game) show(event string, data json.RawMessage) {
	var ev struct {
		RoomCode string          `json:"roomCode"`
		Room     *snapshot       `json:"room"`
		Username string          `json:"username"`
		Reaction json.RawMessage `json:"reaction"`
		Message  string          `json:"message"`
		Result   *struct {
			Winner string `json:"winner"`
		} `json:"result"`
	}
	_ = json.Unmarshal(data, &ev)

	if ev.Room != nil && ev.Room.Code != "" {
		g.setCode(ev.Room.Code)
	}

	switch event {
	case network.EventRoomCreated:
		fmt.Printf("Room %s created. Share the code and wait for an opponent.\n", ev.RoomCode)
	case network.EventPlayerJoined:
		fmt.Println("An opponent joined.")
	case network.EventGameStart, network.EventRematchStart, network.EventMoveMade:
		g.render(ev.Room)
	case network.EventGameEnd:
		g.render(ev.Room)
		switch {
		case ev.Result == nil:
		case ev.Result.Winner == "draw":
			fmt.Println("Draw. Type rematch to play again.")
		default:
			fmt.Printf("%s wins. Type rematch to play again.\n", ev.Result.Winner)
		}
	case network.EventRematchRequest:
		fmt.Printf("%s wants a rematch.\n", ev.Username)
	case network.EventPlayerDisconnected:
		fmt.Println("Your opponent left. Waiting for a new one.")
	case network.EventReactionReceived:
		fmt.Printf("%s: %s\n", ev.Username, string(ev.Reaction))
	case network.EventRoomLeft:
		g.setCode("")
		fmt.Printf("Left room %s.\n", ev.RoomCode)
	case network.EventError:
		fmt.Println("error:", ev.Message)
	case network.EventPong:
		fmt.Println("pong")
	}
}

func (g *game) render(s *snapshot) {
	if s == nil {
		return
	}
	var b strings.Builder
	for i, cell := range s.Board {
		mark := strconv.Itoa(i)
		if cell != nil {
			mark = *cell
		}
		b.WriteString(" " + mark + " ")
		if i%3 < 2 {
			b.WriteString("|")
		} else if i < 8 {
			b.WriteString("\n---+---+---\n")
		}
	}
	fmt.Println(b.String())

	mine := ""
	for _, p := range s.Players {
		if p.Username == g.me {
			mine = p.Symbol
		}
	}
	switch {
	case s.Status != "playing":
	case s.Turn == mine:
		fmt.Println("Your move.")
	default:
		fmt.Printf("Waiting for %s.\n", s.Turn)
	}
}
