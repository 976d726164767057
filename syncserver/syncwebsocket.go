package syncserver

import (
	"container/list"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/syncjson"
	"github.com/ekehi/ekehi-sync-server/utils"
)

const (
	// websocketSendBufferSize is the number of elements the send channel
	// can queue before blocking.  Note that this only applies to requests
	// handled directly in the websocket client input handler or the async
	// handler since notifications have their own queuing mechanism
	// independent of the send channel buffer.
	websocketSendBufferSize = 50
)

var timeZeroVal time.Time

// ErrClientQuit describes the error where a client send is not processed due
// to the client having already been disconnected or dropped.
var ErrClientQuit = errors.New("client quit")

type semaphore chan struct{}

func makeSemaphore(n int) semaphore {
	return make(semaphore, n)
}

func (s semaphore) acquire() { s <- struct{}{} }
func (s semaphore) release() { <-s }

// wsCommandHandler describes a callback function used to handle a specific
// command on a per-client basis. Commands with state that lives on the
// client, such as watches, go through here rather than the server handler
// map.
type wsCommandHandler func(*wsClient, interface{}) (interface{}, error)

// wsHandlers maps RPC command strings to appropriate websocket handler
// functions.  This is set by init because help references wsHandlers and
// thus causes a dependency loop.
var wsHandlers map[string]wsCommandHandler
var wsHandlersBeforeInit = map[string]wsCommandHandler{
	"watch":   handleWatch,
	"unwatch": handleUnwatch,
}

func init() {
	wsHandlers = wsHandlersBeforeInit
}

// wsResponse houses a message to send to a connected websocket client as
// well as a channel to reply on when the message is sent.
type wsResponse struct {
	msg      []byte
	doneChan chan bool
}

// parsedRPCCmd represents a JSON-RPC request object that has been parsed into
// a known concrete command along with any error that might have happened while
// parsing it.
type parsedRPCCmd struct {
	id     interface{}
	method string
	cmd    interface{}
	err    *syncjson.RPCError
}

// parseCmd parses a JSON-RPC request object into known concrete command.  The
// err field of the returned parsedRPCCmd struct will contain an RPC error that
// is suitable for use in replies if the command is invalid in some way such as
// an unregistered command or invalid parameters.
func parseCmd(request *syncjson.Request) *parsedRPCCmd {
	var parsedCmd parsedRPCCmd
	parsedCmd.id = request.ID
	parsedCmd.method = request.Method

	cmd, err := syncjson.UnmarshalCmd(request)
	if err != nil {
		// When the error is because the method is not registered,
		// produce a method not found RPC error.
		parsedCmd.err = syncjson.ErrRPCMethodNotFound
		return &parsedCmd
	}

	parsedCmd.cmd = cmd
	return &parsedCmd
}

// createMarshalledReply returns a new marshalled JSON-RPC response given the
// passed parameters.  It will automatically convert errors that are not of
// the type *syncjson.RPCError to the appropriate type as needed.
func createMarshalledReply(id, result interface{}, replyErr error) ([]byte, error) {
	var jsonErr *syncjson.RPCError
	if replyErr != nil {
		if jErr, ok := replyErr.(*syncjson.RPCError); ok {
			jsonErr = jErr
		} else {
			jsonErr = internalRPCError(replyErr.Error(), "")
		}
	}

	return syncjson.MarshalResponse(id, result, jsonErr)
}

// WebsocketHandler handles a new websocket client by creating a new wsClient,
// starting it, and blocking until the connection closes.  Since it blocks, it
// must be run in a separate goroutine.  It should be invoked from the websocket
// server handler which runs each new connection in a new goroutine thereby
// satisfying the requirement.
func (svr *SyncServer) WebsocketHandler(conn *websocket.Conn, remoteAddr string,
	authenticated bool) {

	// Clear the read deadline that was set before the websocket hijacked
	// the connection.
	conn.SetReadDeadline(timeZeroVal)

	// Limit max number of websocket clients.
	log.Infof("New websocket client %s", remoteAddr)
	if svr.NumWebsocketClients()+1 > svr.cfg.RPCMaxWebsockets {
		log.Infof("Max websocket clients exceeded [%d] - "+
			"disconnecting client %s", svr.cfg.RPCMaxWebsockets,
			remoteAddr)
		conn.Close()
		return
	}

	// Create a new websocket client to handle the new websocket connection
	// and wait for it to shutdown.  Once it has shutdown (and hence
	// disconnected), remove it and any watches it registered.
	client := newWebsocketClient(svr, conn, remoteAddr, authenticated)
	svr.addClient(client)
	client.Start()
	client.WaitForShutdown()
	svr.removeClient(client)
	log.Infof("Disconnected websocket client %s", remoteAddr)
}

func newWebsocketClient(server *SyncServer, conn *websocket.Conn,
	remoteAddr string, authenticated bool) *wsClient {

	return &wsClient{
		conn:              conn,
		addr:              remoteAddr,
		authenticated:     authenticated,
		sessionID:         uuid.NewString(),
		server:            server,
		serviceRequestSem: makeSemaphore(server.cfg.RPCMaxConcurrentReqs),
		watches:           make(map[string]context.CancelFunc),
		ntfnChan:          make(chan []byte, 1), // nonblocking sync
		sendChan:          make(chan wsResponse, websocketSendBufferSize),
		quit:              make(chan struct{}),
	}
}

// wsClient provides an abstraction for handling a websocket client.  The
// overall data flow is split into 3 main goroutines.  Inbound messages are
// read via the inHandler goroutine and generally dispatched to their own
// handler.  There are two outbound message types - one for responding to
// client requests and another for async notifications.  Responses to client
// requests use SendMessage which employs a buffered channel thereby limiting
// the number of outstanding requests that can be made.  Notifications are
// sent via QueueNotification which implements a queue via
// notificationQueueHandler to ensure sending notifications from other
// subsystems can't block.  Ultimately, all messages are sent via the
// outHandler.
type wsClient struct {
	sync.Mutex

	// server is the RPC server that is servicing the client.
	server *SyncServer

	// conn is the underlying websocket connection.
	conn *websocket.Conn

	// disconnected indicated whether or not the websocket client is
	// disconnected.
	disconnected bool

	// addr is the remote address of the client.
	addr string

	// authenticated specifies whether a client has been authenticated
	// and therefore is allowed to communicated over the websocket.
	authenticated bool

	// sessionID is a random ID generated for each client when connected.
	// A change to the session ID indicates that the client reconnected.
	sessionID string

	// watches tracks the live watches this client registered, keyed by
	// entity and user, so unwatch and disconnect can cancel them.
	watchesMtx sync.Mutex
	watches    map[string]context.CancelFunc

	// Networking infrastructure.
	serviceRequestSem semaphore
	ntfnChan          chan []byte
	sendChan          chan wsResponse
	quit              chan struct{}
	wg                sync.WaitGroup
}

// Start begins processing input and output messages.
func (c *wsClient) Start() {
	log.Debugf("Starting websocket client %s", c.addr)

	// Start processing input and output.
	c.wg.Add(3)
	go c.inHandler()
	go c.notificationQueueHandler()
	go c.outHandler()
}

// WaitForShutdown blocks until the websocket client goroutines are stopped
// and the connection is closed.
func (c *wsClient) WaitForShutdown() {
	c.wg.Wait()
}

// Disconnected returns whether or not the websocket client is disconnected.
func (c *wsClient) Disconnected() bool {
	c.Lock()
	isDisconnected := c.disconnected
	c.Unlock()

	return isDisconnected
}

// Disconnect disconnects the websocket client.
func (c *wsClient) Disconnect() {
	c.Lock()
	defer c.Unlock()

	// Nothing to do if already disconnected.
	if c.disconnected {
		return
	}

	log.Debugf("Disconnecting websocket client %s", c.addr)
	c.cancelAllWatches()
	close(c.quit)
	c.conn.Close()
	c.disconnected = true
}

// inHandler handles all incoming messages for the websocket connection.  It
// must be run as a goroutine.
func (c *wsClient) inHandler() {
out:
	for {
		// Break out of the loop once the quit channel has been closed.
		// Use a non-blocking select here so we fall through otherwise.
		select {
		case <-c.quit:
			break out
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			// Log the error if it's not due to disconnecting.
			if err != io.EOF {
				log.Errorf("Websocket receive error from "+
					"%s: %v", c.addr, err)
			}
			break out
		}

		var request syncjson.Request
		err = json.Unmarshal(msg, &request)
		if err != nil {
			if !c.authenticated {
				break out
			}

			jsonErr := &syncjson.RPCError{
				Code:    syncjson.ErrRPCParse.Code,
				Message: "Failed to parse request: " + err.Error(),
			}
			reply, err := createMarshalledReply(nil, nil, jsonErr)
			if err != nil {
				log.Errorf("Failed to marshal parse failure "+
					"reply: %v", err)
				continue
			}
			c.SendMessage(reply, nil)
			continue
		}

		if request.ID == nil {
			if !c.authenticated {
				break out
			}
			continue
		}

		cmd := parseCmd(&request)
		if cmd.err != nil {
			if !c.authenticated {
				break out
			}

			reply, err := createMarshalledReply(cmd.id, nil, cmd.err)
			if err != nil {
				log.Errorf("Failed to marshal parse failure "+
					"reply: %v", err)
				continue
			}
			c.SendMessage(reply, nil)
			continue
		}
		log.Debugf("Received command <%s> from %s", cmd.method, c.addr)

		// Check auth.  The client is immediately disconnected if the
		// first request of an unauthenticated websocket client is not
		// the authenticate request, an authenticate request is received
		// when the client is already authenticated, or incorrect
		// authentication credentials are provided in the request.
		switch authCmd, ok := cmd.cmd.(*syncjson.AuthenticateCmd); {
		case c.authenticated && ok:
			log.Warnf("Websocket client %s is already authenticated",
				c.addr)
			break out
		case !c.authenticated && !ok:
			log.Warnf("Unauthenticated websocket message received")
			break out
		case !c.authenticated:
			// Check credentials.
			login := authCmd.Username + ":" + authCmd.Passphrase
			auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
			authSha := sha256.Sum256([]byte(auth))
			cmp := subtle.ConstantTimeCompare(authSha[:], c.server.authsha[:])
			if cmp != 1 {
				log.Warnf("Auth failure.")
				break out
			}
			c.authenticated = true

			// Marshal and send response.
			reply, err := createMarshalledReply(cmd.id, syncjson.AuthenticateResult{Authenticated: true}, nil)
			if err != nil {
				log.Errorf("Failed to marshal authenticate reply: "+
					"%v", err.Error())
				continue
			}
			c.SendMessage(reply, nil)
			continue
		}

		// Asynchronously handle the request.  A semaphore is used to
		// limit the number of concurrent requests currently being
		// serviced.  If the semaphore can not be acquired, simply wait
		// until a request finished before reading the next RPC request
		// from the websocket client.
		c.serviceRequestSem.acquire()
		go func() {
			c.serviceRequest(cmd)
			c.serviceRequestSem.release()
		}()
	}

	// Ensure the connection is closed.
	c.Disconnect()
	c.wg.Done()
	log.Debugf("Websocket client input handler done for %s", c.addr)
}

// serviceRequest services a parsed RPC request by looking up and executing the
// appropriate RPC handler.  The response is marshalled and sent to the
// websocket client.
func (c *wsClient) serviceRequest(r *parsedRPCCmd) {
	// Recovery
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("Panic from %v handler: %v", r.method, err)
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)
			log.Errorf("Stack Trace ==>\n %s", string(buf[:n]))

			_ = utils.DumpPanicInfo(fmt.Sprintf("%v", err) + "\n" + string(buf[:n]))

			reply, err := createMarshalledReply(r.id, nil, syncjson.ErrRPCInternal)
			if err != nil {
				log.Errorf("Failed to marshal reply for <%s> "+
					"command: %v", r.method, err)
				return
			}
			c.SendMessage(reply, nil)
		}
	}()

	var (
		result interface{}
		err    error
	)

	// Lookup the websocket extension for the command and if it doesn't
	// exist fallback to handling the command as a standard command.
	wsHandler, ok := wsHandlers[r.method]
	if ok {
		result, err = wsHandler(c, r.cmd)
	} else {
		handler, ok := rpcHandlers[r.method]
		if !ok {
			err = syncjson.ErrRPCMethodNotFound
		} else {
			result, err = handler(c.server, r.cmd, c.quit)
		}
	}
	reply, merr := createMarshalledReply(r.id, result, err)
	if merr != nil {
		log.Errorf("Failed to marshal reply for <%s> "+
			"command: %v", r.method, merr)
		return
	}
	c.SendMessage(reply, nil)
}

// SendMessage sends the passed json to the websocket client.  It is backed
// by a buffered channel, so it will not block until the send channel is full.
// Note however that QueueNotification must be used for sending async
// notifications instead of the this function.  This approach allows a limit to
// the number of outstanding requests a client can make without preventing or
// blocking on async notifications.
func (c *wsClient) SendMessage(marshalledJSON []byte, doneChan chan bool) {
	// Don't send the message if disconnected.
	if c.Disconnected() {
		if doneChan != nil {
			doneChan <- false
		}
		return
	}

	c.sendChan <- wsResponse{msg: marshalledJSON, doneChan: doneChan}
}

// QueueNotification queues the passed notification to be sent to the websocket
// client.  This function, as the name implies, is only intended for
// notifications since it has additional logic to prevent other subsystems,
// such as the watch bridges and the sync manager, from blocking even when the
// send channel is full.
//
// If the client is in the process of shutting down, this function returns
// ErrClientQuit.  This is intended to be checked by long-running notification
// handlers to stop processing if there is no more work needed to be done.
func (c *wsClient) QueueNotification(marshalledJSON []byte) error {
	// Don't queue the message if disconnected.
	if c.Disconnected() {
		return ErrClientQuit
	}

	c.ntfnChan <- marshalledJSON
	return nil
}

// notificationQueueHandler handles the queuing of outgoing notifications for
// the websocket client.
func (c *wsClient) notificationQueueHandler() {
	ntfnSentChan := make(chan bool, 1) // nonblocking sync

	// pendingNtfns is used as a queue for notifications that are ready to
	// be sent once there are no outstanding notifications currently being
	// sent.  The waiting flag is used over simply checking for items in the
	// pending list to ensure cleanup knows what has and hasn't been sent
	// to the outHandler.
	pendingNtfns := list.New()
	waiting := false
out:
	for {
		select {
		// This channel is notified when a message is being queued to
		// be sent across the network socket.  It will either send the
		// message immediately if a send is not already in progress, or
		// queue the message to be sent once the other pending messages
		// are sent.
		case msg := <-c.ntfnChan:
			if !waiting {
				c.SendMessage(msg, ntfnSentChan)
			} else {
				pendingNtfns.PushBack(msg)
			}
			waiting = true

		// This channel is notified when a notification has been sent
		// across the network socket.
		case <-ntfnSentChan:
			// No longer waiting if there are no more messages in
			// the pending messages queue.
			next := pendingNtfns.Front()
			if next == nil {
				waiting = false
				continue
			}

			// Notify the outHandler about the next item to
			// asynchronously send.
			msg := pendingNtfns.Remove(next).([]byte)
			c.SendMessage(msg, ntfnSentChan)

		case <-c.quit:
			break out
		}
	}

	// Drain any wait channels before exiting so nothing is left waiting
	// around to send.
cleanup:
	for {
		select {
		case <-c.ntfnChan:
		case <-ntfnSentChan:
		default:
			break cleanup
		}
	}
	c.wg.Done()
	log.Debugf("Websocket client notification queue handler done "+
		"for %s", c.addr)
}

// outHandler handles all outgoing messages for the websocket connection.  It
// uses a buffered channel to serialize output messages while allowing the
// sender to continue running asynchronously.  It must be run as a goroutine.
func (c *wsClient) outHandler() {
out:
	for {
		// Send any messages ready for send until the quit channel is
		// closed.
		select {
		case r := <-c.sendChan:
			err := c.conn.WriteMessage(websocket.TextMessage, r.msg)
			if err != nil {
				c.Disconnect()
				break out
			}
			if r.doneChan != nil {
				r.doneChan <- true
			}

		case <-c.quit:
			break out
		}
	}

	// Drain any wait channels before exiting so nothing is left waiting
	// around to send.
cleanup:
	for {
		select {
		case r := <-c.sendChan:
			if r.doneChan != nil {
				r.doneChan <- false
			}
		default:
			break cleanup
		}
	}
	c.wg.Done()
	log.Debugf("Websocket client output handler done for %s", c.addr)
}

// watchKey is the registry key for one live watch on this client.
func watchKey(entity, userID string) string {
	return entity + "/" + userID
}

func (c *wsClient) registerWatch(key string, cancel context.CancelFunc) bool {
	c.watchesMtx.Lock()
	defer c.watchesMtx.Unlock()
	if _, ok := c.watches[key]; ok {
		return false
	}
	c.watches[key] = cancel
	return true
}

func (c *wsClient) cancelWatch(key string) bool {
	c.watchesMtx.Lock()
	defer c.watchesMtx.Unlock()
	cancel, ok := c.watches[key]
	if !ok {
		return false
	}
	cancel()
	delete(c.watches, key)
	return true
}

func (c *wsClient) cancelAllWatches() {
	c.watchesMtx.Lock()
	defer c.watchesMtx.Unlock()
	for key, cancel := range c.watches {
		cancel()
		delete(c.watches, key)
	}
}

// handleWatch implements the watch command.  It bridges a live query on
// the offline store into notifications pushed to this client: every change
// to the watched entity produces one notification carrying the fresh
// state.
func handleWatch(c *wsClient, icmd interface{}) (interface{}, error) {
	cmd, ok := icmd.(*syncjson.WatchCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}

	userID := cmd.UserID
	switch cmd.Entity {
	case "tasks":
		// The task catalog is global.
		userID = ""
	case "profile", "sessions", "completions":
		if userID == "" {
			return nil, syncjson.ErrInvalidRequestParams
		}
	default:
		return nil, syncjson.ErrUnknownEntity
	}

	key := watchKey(cmd.Entity, userID)
	ctx, cancel := context.WithCancel(c.server.ctx())
	if !c.registerWatch(key, cancel) {
		cancel()
		return syncjson.WatchResult{Entity: cmd.Entity, UserID: userID, Watching: true}, nil
	}

	// Each bridge consumes the use case resource stream. The loading
	// emission never leaves the daemon; every settled success becomes one
	// notification.
	switch cmd.Entity {
	case "profile":
		ch := c.server.userUC.ObserveProfile(ctx, userID)
		go func() {
			defer utils.MyRecover()
			for res := range ch {
				if res.State != model.StateSuccess {
					continue
				}
				ntfn := syncjson.NewProfileUpdatedNtfn(userID, res.Data)
				c.queueWatchNtfn(syncjson.ProfileUpdatedNtfnMethod, ntfn)
			}
		}()
	case "sessions":
		ch := c.server.miningUC.ObserveSessions(ctx, userID)
		go func() {
			defer utils.MyRecover()
			for res := range ch {
				if res.State != model.StateSuccess {
					continue
				}
				ntfn := syncjson.NewSessionsUpdatedNtfn(userID, res.Data)
				c.queueWatchNtfn(syncjson.SessionsUpdatedNtfnMethod, ntfn)
			}
		}()
	case "tasks":
		ch := c.server.taskUC.ObserveTasks(ctx)
		go func() {
			defer utils.MyRecover()
			for res := range ch {
				if res.State != model.StateSuccess {
					continue
				}
				ntfn := syncjson.NewTasksUpdatedNtfn(res.Data)
				c.queueWatchNtfn(syncjson.TasksUpdatedNtfnMethod, ntfn)
			}
		}()
	case "completions":
		ch := c.server.taskUC.ObserveCompletions(ctx, userID)
		go func() {
			defer utils.MyRecover()
			for res := range ch {
				if res.State != model.StateSuccess {
					continue
				}
				ntfn := syncjson.NewCompletionsUpdatedNtfn(userID, res.Data)
				c.queueWatchNtfn(syncjson.CompletionsUpdatedNtfnMethod, ntfn)
			}
		}()
	}

	log.Debugf("Client %s watching %s", c.addr, key)
	return syncjson.WatchResult{Entity: cmd.Entity, UserID: userID, Watching: true}, nil
}

// handleUnwatch implements the unwatch command.
func handleUnwatch(c *wsClient, icmd interface{}) (interface{}, error) {
	cmd, ok := icmd.(*syncjson.UnwatchCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}

	userID := cmd.UserID
	if cmd.Entity == "tasks" {
		userID = ""
	}
	key := watchKey(cmd.Entity, userID)
	if !c.cancelWatch(key) {
		return nil, syncjson.ErrNotFound
	}
	log.Debugf("Client %s stopped watching %s", c.addr, key)
	return syncjson.WatchResult{Entity: cmd.Entity, UserID: userID, Watching: false}, nil
}

func (c *wsClient) queueWatchNtfn(method string, ntfn interface{}) {
	marshalledJSON, err := syncjson.MarshalNtfn(method, ntfn)
	if err != nil {
		log.Errorf("Failed to marshal %s notification: %v", method, err)
		return
	}
	if err := c.QueueNotification(marshalledJSON); err == ErrClientQuit {
		return
	}
}
