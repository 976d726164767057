package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ekehi/ekehi-sync-server/syncjson"
)

const (
	showHelpMessage = "Specify -h to show available options"
	listCmdMessage  = "Specify -l to list available commands"
)

// commandUsage displays the registered methods of the control server.
func listCommands() {
	fmt.Println("Available commands:")
	for _, method := range syncjson.RegisteredMethods() {
		fmt.Println(" ", method)
	}
}

// usage displays the general usage when the help flag is not displayed and
// and an invalid command was specified.  The commandUsage function is used
// instead when a valid command was specified.
func usage(errorMessage string) {
	appName := strings.TrimSuffix(os.Args[0], ".exe")
	fmt.Fprintln(os.Stderr, errorMessage)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [OPTIONS] <command> [<params JSON object>]\n\n",
		appName)
	fmt.Fprintln(os.Stderr, showHelpMessage)
	fmt.Fprintln(os.Stderr, listCmdMessage)
}

// sendCommand delivers a single request over a fresh websocket connection and
// returns the raw result after discarding any interleaved notifications.
func sendCommand(cfg *config, req *syncjson.Request) (json.RawMessage, error) {
	marshalled, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	u := url.URL{Scheme: "ws", Host: cfg.RPCServer, Path: "/ws"}
	header := http.Header{}
	if cfg.RPCUser != "" {
		login := cfg.RPCUser + ":" + cfg.RPCPassword
		auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
		header.Set("Authorization", auth)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("authentication failure: %v", err)
		}
		return nil, fmt.Errorf("unable to connect to %s: %v", cfg.RPCServer, err)
	}
	defer conn.Close()

	err = conn.WriteMessage(websocket.TextMessage, marshalled)
	if err != nil {
		return nil, err
	}

	// Notifications carry no id, skip them until the reply arrives.
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var response syncjson.Response
		if err := json.Unmarshal(payload, &response); err != nil {
			return nil, err
		}
		if response.ID == nil {
			continue
		}

		if response.Error != nil {
			return nil, response.Error
		}
		return response.Result, nil
	}
}

func main() {
	cfg, args, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}
	if len(args) < 1 {
		usage("No command specified")
		os.Exit(1)
	}

	method := args[0]
	if method == "-l" || method == "help" {
		listCommands()
		return
	}

	registered := false
	for _, m := range syncjson.RegisteredMethods() {
		if m == method {
			registered = true
			break
		}
	}
	if !registered {
		usage(fmt.Sprintf("Unrecognized command %q", method))
		os.Exit(1)
	}

	// An optional second argument supplies the request parameters as a JSON
	// object.
	var params json.RawMessage
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			fmt.Fprintf(os.Stderr, "Invalid params JSON: %s\n", args[1])
			os.Exit(1)
		}
		params = json.RawMessage(args[1])
	}

	req := &syncjson.Request{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	result, err := sendCommand(cfg, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Pretty print JSON object and array results, everything else prints
	// as-is.
	if bytes.HasPrefix(result, []byte("{")) || bytes.HasPrefix(result, []byte("[")) {
		var dst bytes.Buffer
		if err := json.Indent(&dst, result, "", "  "); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to format result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(dst.String())
		return
	}

	var str string
	if err := json.Unmarshal(result, &str); err == nil {
		fmt.Println(str)
		return
	}
	fmt.Println(string(result))
}
