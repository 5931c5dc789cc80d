package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/matheus3301/wabridge/internal/config"
	"github.com/matheus3301/wabridge/internal/session"
)

func main() {
	addrFlag := flag.String("addr", "", "gateway base URL (default http://localhost:<config port>)")
	secretFlag := flag.String("secret", "", "bearer secret (default from config)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr, secret := resolveTarget(*addrFlag, *secretFlag)
	c := &client{
		addr:   addr,
		secret: secret,
		http:   &http.Client{Timeout: 15 * time.Second},
	}

	switch args[0] {
	case "status":
		cmdStatus(c)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wabridgectl send <chatId> <message>")
			os.Exit(1)
		}
		cmdSend(c, args[1], args[2])
	case "chats":
		cmdGet(c, "/chats")
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wabridgectl messages <chatId> [limit] [offset]")
			os.Exit(1)
		}
		cmdMessages(c, args[1:])
	case "contacts":
		cmdGet(c, "/contacts")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func resolveTarget(addr, secret string) (string, string) {
	if addr != "" && secret != "" {
		return addr, secret
	}
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if secret == "" {
		secret = cfg.APISecret
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "error: no API secret; pass --secret or set api_secret in the config")
		os.Exit(1)
	}
	return addr, secret
}

type client struct {
	addr   string
	secret string
	http   *http.Client
}

func (c *client) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.addr+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

func cmdStatus(c *client) {
	printResponse(c.do(http.MethodGet, "/status", nil))
}

func cmdSend(c *client, chatID, message string) {
	printResponse(c.do(http.MethodPost, "/send-message", map[string]string{
		"chatId":  chatID,
		"message": message,
	}))
}

func cmdGet(c *client, path string) {
	printResponse(c.do(http.MethodGet, path, nil))
}

func cmdMessages(c *client, args []string) {
	q := url.Values{}
	if len(args) > 1 {
		q.Set("limit", args[1])
	}
	if len(args) > 2 {
		q.Set("offset", args[2])
	}
	path := "/chats/" + url.PathEscape(args[0]) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	printResponse(c.do(http.MethodGet, path, nil))
}

func printResponse(data []byte, code int, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if code >= 400 {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wabridgectl [--addr <url>] [--secret <token>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon and client status")
	fmt.Fprintln(os.Stderr, "  send <chatId> <message>         Send a text message")
	fmt.Fprintln(os.Stderr, "  chats                           List known chats")
	fmt.Fprintln(os.Stderr, "  messages <chatId> [lim] [off]   List messages in a chat")
	fmt.Fprintln(os.Stderr, "  contacts                        List known contacts")
}
