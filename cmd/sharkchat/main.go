package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/op/go-logging"
	"golang.org/x/net/proxy"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bahaa-mustafa/SharkStage-sub000/api"
	"github.com/bahaa-mustafa/SharkStage-sub000/core"
	"github.com/bahaa-mustafa/SharkStage-sub000/net"
	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
	"github.com/bahaa-mustafa/SharkStage-sub000/schema"
)

var log = logging.MustGetLogger("main")

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

type Start struct {
	Config     string `short:"c" long:"config" description:"path to the configuration file" default:"chat.json"`
	LogLevel   string `short:"l" long:"loglevel" description:"set the logging level [debug, info, notice, warning, error, critical]"`
	NoLogFiles bool   `short:"f" long:"nologfiles" description:"do not save logs on disk"`
	DataDir    string `short:"d" long:"datadir" description:"specify the data directory to be used"`
	Verbose    bool   `short:"v" long:"verbose" description:"print logs to stdout"`
}

var startCmd Start

var parser = flags.NewParser(nil, flags.Default)

func main() {
	parser.AddCommand("start",
		"start the chat client",
		"Connect to the marketplace gateway and run the interactive chat client",
		&startCmd)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}

func (x *Start) Execute(args []string) error {
	config, err := schema.LoadChatConfig(x.Config)
	if err != nil {
		return err
	}
	if x.LogLevel != "" {
		config.LogLevel = x.LogLevel
	}
	dataDir := x.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	setupLogging(dataDir, config.LogLevel, x.Verbose, x.NoLogFiles)

	var proxyDialer proxy.Dialer
	if config.Proxy != "" {
		proxyDialer, err = proxy.SOCKS5("tcp", config.Proxy, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("configuring proxy: %s", err)
		}
		log.Infof("Proxying all traffic through %s", config.Proxy)
	}

	gateway, err := api.NewGatewayClient(config.Gateway.URL, config.Gateway.AuthToken, proxyDialer)
	if err != nil {
		return fmt.Errorf("configuring gateway client: %s", err)
	}
	session := net.NewSession(net.SocketDialer(
		config.Socket.Host,
		config.Socket.Port,
		config.Socket.Secure,
		proxyDialer,
		nil,
	))

	messenger := core.NewMessenger(config.Identity.PeerID, session, gateway)
	if err := messenger.Start(); err != nil {
		return err
	}
	log.Infof("Chat client running as %s (%s)", config.Identity.Handle, config.Identity.PeerID)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Noticef("Received %s, shutting down...", sig)
		if err := messenger.Close(); err != nil {
			log.Errorf("Shutdown: %s", err)
		}
		os.Exit(0)
	}()

	repl(messenger)
	return messenger.Close()
}

// repl drives the messenger from stdin. It is deliberately plain: the
// library packages carry all the behavior, this loop only projects state.
func repl(messenger *core.Messenger) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Commands: ls, find <query>, open <conversation>, send <text>, show, close, refresh, quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, rest := line, ""
		if i := strings.IndexByte(line, ' '); i > 0 {
			command, rest = line[:i], strings.TrimSpace(line[i+1:])
		}
		switch command {
		case "ls":
			printConversations(messenger, messenger.Directory().Conversations())
		case "find":
			printConversations(messenger, messenger.Directory().Filter(rest))
		case "open":
			if _, err := messenger.OpenThread(rest); err != nil {
				fmt.Println("error:", err)
				continue
			}
			printThread(messenger, rest)
		case "send":
			id := messenger.Active()
			if id == "" {
				fmt.Println("no open conversation")
				continue
			}
			composer, ok := messenger.Composer(id)
			if !ok {
				fmt.Println("no open conversation")
				continue
			}
			composer.SetText(rest)
			if err := composer.Submit(); err != nil {
				fmt.Println("error:", err)
			}
		case "show":
			id := messenger.Active()
			if id == "" {
				fmt.Println("no open conversation")
				continue
			}
			printThread(messenger, id)
		case "close":
			if id := messenger.Active(); id != "" {
				messenger.CloseThread(id)
			}
		case "refresh":
			if err := messenger.RefreshDirectory(); err != nil {
				fmt.Println("error:", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", command)
		}
	}
}

func printConversations(messenger *core.Messenger, conversations []repo.ChatConversation) {
	for _, c := range conversations {
		peer, _ := messenger.OtherParticipant(c.ConversationID)
		marker := " "
		if c.Unread > 0 {
			marker = fmt.Sprintf("(%d)", c.Unread)
		}
		fmt.Printf("%-24s %-16s %s %s\n", c.ConversationID, peer.Handle, marker, c.Last.Message)
	}
}

func printThread(messenger *core.Messenger, conversationID string) {
	entries, ok := messenger.ThreadSnapshot(conversationID)
	if !ok {
		fmt.Println("conversation is not open")
		return
	}
	fmt.Printf("[%s] %s\n", messenger.ThreadState(conversationID), conversationID)
	for _, e := range entries {
		suffix := ""
		if e.Status == repo.MessageStatusPending {
			suffix = " (sending...)"
		}
		fmt.Printf("%s: %s%s\n", e.Message.SenderID, e.Message.Message, suffix)
	}
}

func setupLogging(dataDir, level string, verbose, noFiles bool) {
	var backends []logging.Backend
	if verbose {
		stdout := logging.NewLogBackend(os.Stdout, "", 0)
		backends = append(backends, logging.NewBackendFormatter(stdout, stdoutLogFormat))
	}
	if !noFiles {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(dataDir, "logs", "chat.log"),
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}
		file := logging.NewLogBackend(w, "", 0)
		backends = append(backends, logging.NewBackendFormatter(file, fileLogFormat))
	}
	if len(backends) == 0 {
		backends = append(backends, logging.NewLogBackend(os.Stderr, "", 0))
	}
	logging.SetBackend(backends...)

	logLevel, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		logLevel = logging.INFO
	}
	logging.SetLevel(logLevel, "")
}
