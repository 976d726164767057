package syncserver

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/syncjson"
	"github.com/ekehi/ekehi-sync-server/syncmgr"
	"github.com/ekehi/ekehi-sync-server/usecase"
)

const (
	// rpcAuthTimeoutSeconds is the number of seconds a connection to the
	// RPC server is allowed to stay open without authenticating before it
	// is closed.
	rpcAuthTimeoutSeconds = 10

	// serverVersion is reported by the version command.
	serverVersion = "0.1.0"
)

type commandHandler func(*SyncServer, interface{}, <-chan struct{}) (interface{}, error)

// rpcHandlers maps RPC command strings to appropriate handler functions.
var rpcHandlers map[string]commandHandler
var rpcHandlersBeforeInit = map[string]commandHandler{
	"version": handleVersion,

	"sync.status":  handleGetStatus,
	"sync.run":     handleSync,
	"sync.track":   handleTrack,
	"sync.untrack": handleUntrack,

	"cache.get_strategy": handleGetStrategy,
	"cache.set_strategy": handleSetStrategy,

	"profile.get":    handleGetProfile,
	"profile.update": handleUpdateProfile,

	"sessions.get":     handleGetSessions,
	"session.start":    handleStartSession,
	"session.progress": handleRecordProgress,

	"tasks.get":       handleGetTasks,
	"completions.get": handleGetCompletions,
	"task.complete":   handleCompleteTask,
}

func init() {
	rpcHandlers = rpcHandlersBeforeInit
}

// simpleAddr implements the net.Addr interface with two struct fields
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// Ensure simpleAddr implements the net.Addr interface.
var _ net.Addr = simpleAddr{}

func handleVersion(s *SyncServer, cmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	result := syncjson.VersionResult{
		Version:   serverVersion,
		GoVersion: runtime.Version(),
	}
	return result, nil
}

func handleGetStatus(s *SyncServer, cmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	result := syncjson.GetStatusResult{
		State:        s.syncManager.State().String(),
		TrackedUsers: s.scheduler.TrackedUsers(),
		LastResult:   marshalPassResult(s.syncManager.LastResult()),
	}
	return result, nil
}

func handleSync(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.SyncCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	result, err := s.syncManager.SyncAll(s.ctx(), c.UserID)
	if result == nil && err != nil {
		return nil, syncjson.ErrSyncInProgress
	}
	return marshalPassResult(result), nil
}

func handleTrack(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.TrackCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}
	s.scheduler.Track(c.UserID)
	return syncjson.TrackResult{UserID: c.UserID, Tracked: true}, nil
}

func handleUntrack(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.UntrackCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}
	s.scheduler.Untrack(c.UserID)
	return syncjson.TrackResult{UserID: c.UserID, Tracked: false}, nil
}

func handleGetStrategy(s *SyncServer, cmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	return syncjson.GetStrategyResult{Strategy: s.cacheManager.Strategy().String()}, nil
}

func handleSetStrategy(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.SetStrategyCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	strategy, err := cachemgr.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, syncjson.ErrInvalidStrategy
	}
	s.cacheManager.SetStrategy(strategy)
	log.Infof("Cache strategy set to %v", strategy)
	return syncjson.GetStrategyResult{Strategy: strategy.String()}, nil
}

// drainResource consumes a resource stream and returns its final settled
// emission for a one-shot RPC call. Loading emissions are skipped; a
// stream that never settles yields the zero value.
func drainResource[T any](ch <-chan model.Resource[T]) (T, error) {
	var last model.Resource[T]
	for res := range ch {
		if res.State == model.StateLoading {
			continue
		}
		last = res
	}
	if last.State == model.StateError {
		var zero T
		return zero, errors.New(last.Message)
	}
	return last.Data, nil
}

func handleGetProfile(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.GetProfileCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	profile, err := drainResource(s.userUC.FetchProfile(s.ctx(), c.UserID))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.GetProfileResult{Profile: profile}, nil
}

func handleUpdateProfile(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.UpdateProfileCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" || len(c.Fields) == 0 {
		return nil, syncjson.ErrInvalidRequestParams
	}

	profile, err := drainResource(s.userUC.UpdateProfile(s.ctx(), c.UserID, c.Fields))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.GetProfileResult{Profile: profile}, nil
}

func handleGetSessions(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.GetSessionsCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	sessions, err := drainResource(s.miningUC.FetchSessions(s.ctx(), c.UserID))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.GetSessionsResult{Sessions: sessions}, nil
}

func handleStartSession(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.StartSessionCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	session, err := drainResource(s.miningUC.StartSession(s.ctx(), c.UserID))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.StartSessionResult{Session: session}, nil
}

func handleRecordProgress(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.RecordProgressCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.SessionID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	session, err := drainResource(s.miningUC.RecordProgress(s.ctx(), c.SessionID, c.CoinsEarned, c.ClicksMade, c.SessionDuration))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.StartSessionResult{Session: session}, nil
}

func handleGetTasks(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	tasks, err := drainResource(s.taskUC.FetchTasks(s.ctx()))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.GetTasksResult{Tasks: tasks}, nil
}

func handleGetCompletions(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.GetCompletionsCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	completions, err := drainResource(s.taskUC.FetchCompletions(s.ctx(), c.UserID))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.GetCompletionsResult{Completions: completions}, nil
}

func handleCompleteTask(s *SyncServer, icmd interface{}, closeChan <-chan struct{}) (interface{}, error) {
	c, ok := icmd.(*syncjson.CompleteTaskCmd)
	if !ok {
		return nil, syncjson.ErrRPCInternal
	}
	if c.UserID == "" || c.TaskID == "" {
		return nil, syncjson.ErrInvalidRequestParams
	}

	completion, err := drainResource(s.taskUC.CompleteTask(s.ctx(), c.UserID, c.TaskID, c.Proof))
	if err != nil {
		return nil, internalRPCError(err.Error(), "")
	}
	return syncjson.CompleteTaskResult{Completion: completion}, nil
}

// marshalPassResult converts a manager pass summary into its wire form.
func marshalPassResult(r *syncmgr.SyncResult) *syncjson.SyncPassResult {
	if r == nil {
		return nil
	}
	return &syncjson.SyncPassResult{
		UserID:             r.UserID,
		State:              r.State.String(),
		Message:            r.Message,
		ProfileSynced:      r.ProfileSynced,
		SessionsReconciled: r.SessionsReconciled,
		TasksReconciled:    r.TasksReconciled,
		CompletionsPushed:  r.CompletionsPushed,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
	}
}

// internalRPCError is a convenience function to convert an internal error to
// an RPC error with the appropriate code set.  It also logs the error to the
// RPC server subsystem since internal errors really should not occur.  The
// context parameter is only used in the log message and may be empty if it's
// not needed.
func internalRPCError(errStr, context string) *syncjson.RPCError {
	logStr := errStr
	if context != "" {
		logStr = context + ": " + errStr
	}
	log.Error(logStr)
	return syncjson.NewRPCError(syncjson.ErrRPCInternal.Code, errStr)
}

// SyncServer provides the websocket JSON-RPC control surface over the
// offline store, the cache strategy and the sync manager.
type SyncServer struct {
	started    int32
	shutdown   int32
	cfg        ConfigSyncServer
	authsha    [sha256.Size]byte
	numClients int32
	wg         sync.WaitGroup
	quit       chan struct{}
	baseCtx    context.Context
	cancel     context.CancelFunc

	cacheManager *cachemgr.Manager
	userUC       *usecase.OfflineUserUseCase
	miningUC     *usecase.OfflineMiningUseCase
	taskUC       *usecase.OfflineSocialTaskUseCase
	syncManager  *syncmgr.SyncManager
	scheduler    *syncmgr.Scheduler

	clientsMtx sync.Mutex
	clients    map[*wsClient]struct{}
}

// ConfigSyncServer is a descriptor containing the RPC server configuration.
type ConfigSyncServer struct {
	// ListenersString is an array that contains ip address and port for
	// generating listeners later
	ListenersString []string

	// Listeners defines a slice of listeners for which the RPC server will
	// take ownership of and accept connections.  Since the RPC server takes
	// ownership of these listeners, they will be closed when the RPC server
	// is stopped.
	Listeners []net.Listener

	RPCUser              string
	RPCPass              string
	RPCMaxClients        int
	RPCMaxWebsockets     int
	RPCMaxConcurrentReqs int
}

// NewSyncServer creates a control server from the given config and wired
// subsystems. Sync progress notifications are broadcast to every connected
// websocket client.
func NewSyncServer(config *ConfigSyncServer, cacheManager *cachemgr.Manager,
	userRepo *repos.OfflineUserRepo, miningRepo *repos.OfflineMiningRepo,
	taskRepo *repos.OfflineSocialTaskRepo, syncManager *syncmgr.SyncManager,
	scheduler *syncmgr.Scheduler) (*SyncServer, error) {

	rpcListeners, err := setupRPCListeners(config.ListenersString)
	if err != nil {
		return nil, err
	}
	if len(rpcListeners) == 0 {
		return nil, errors.New("no valid listen address")
	}
	config.Listeners = rpcListeners

	baseCtx, cancel := context.WithCancel(context.Background())
	rpc := SyncServer{
		cfg:          *config,
		quit:         make(chan struct{}),
		baseCtx:      baseCtx,
		cancel:       cancel,
		cacheManager: cacheManager,
		userUC:       usecase.NewOfflineUserUseCase(userRepo),
		miningUC:     usecase.NewOfflineMiningUseCase(miningRepo),
		taskUC:       usecase.NewOfflineSocialTaskUseCase(taskRepo),
		syncManager:  syncManager,
		scheduler:    scheduler,
		clients:      make(map[*wsClient]struct{}),
	}
	if config.RPCUser != "" && config.RPCPass != "" {
		login := config.RPCUser + ":" + config.RPCPass
		auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
		rpc.authsha = sha256.Sum256([]byte(auth))
	}

	syncManager.Subscribe(rpc.handleSyncNotification)

	return &rpc, nil
}

// handleSyncNotification fans a manager notification out to every
// connected websocket client.
func (svr *SyncServer) handleSyncNotification(n *syncmgr.Notification) {
	var ntfn *syncjson.SyncStatusNtfn
	switch n.Type {
	case syncmgr.NTSyncStarted:
		ntfn = syncjson.NewSyncStatusNtfn(n.UserID, syncmgr.StateSyncing.String(), nil)
	case syncmgr.NTSyncFinished:
		result, ok := n.Data.(*syncmgr.SyncResult)
		if !ok {
			return
		}
		ntfn = syncjson.NewSyncStatusNtfn(n.UserID, result.State.String(), marshalPassResult(result))
	default:
		return
	}

	marshalledJSON, err := syncjson.MarshalNtfn(syncjson.SyncStatusNtfnMethod, ntfn)
	if err != nil {
		log.Errorf("Failed to marshal sync status notification: %v", err)
		return
	}
	svr.broadcastNtfn(marshalledJSON)
}

func (svr *SyncServer) broadcastNtfn(marshalledJSON []byte) {
	svr.clientsMtx.Lock()
	defer svr.clientsMtx.Unlock()
	for client := range svr.clients {
		_ = client.QueueNotification(marshalledJSON)
	}
}

func (svr *SyncServer) addClient(c *wsClient) {
	svr.clientsMtx.Lock()
	defer svr.clientsMtx.Unlock()
	svr.clients[c] = struct{}{}
}

func (svr *SyncServer) removeClient(c *wsClient) {
	svr.clientsMtx.Lock()
	defer svr.clientsMtx.Unlock()
	delete(svr.clients, c)
}

// NumWebsocketClients returns the number of connected websocket clients.
func (svr *SyncServer) NumWebsocketClients() int {
	svr.clientsMtx.Lock()
	defer svr.clientsMtx.Unlock()
	return len(svr.clients)
}

// ctx returns the base context handlers run under. It is cancelled on
// server shutdown.
func (svr *SyncServer) ctx() context.Context {
	return svr.baseCtx
}

// authMatches compares a hashed Authorization header against the
// configured credentials in constant time.
func (svr *SyncServer) authMatches(authsha [sha256.Size]byte) bool {
	return subtle.ConstantTimeCompare(authsha[:], svr.authsha[:]) == 1
}

// Start begins serving websocket clients on the configured listeners.
func (svr *SyncServer) Start() {
	if atomic.AddInt32(&svr.started, 1) != 1 {
		return
	}

	log.Debug("Starting sync control server...")
	rpcServeMux := http.NewServeMux()
	httpServer := &http.Server{
		Handler: rpcServeMux,

		// Timeout connections which don't complete the initial
		// handshake within the allowed timeframe.
		ReadTimeout: time.Second * rpcAuthTimeoutSeconds,
	}

	// Websocket endpoint.
	rpcServeMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if svr.limitConnections(w, r.RemoteAddr) {
			return
		}
		svr.incrementClients()
		defer svr.decrementClients()

		authenticated, err := svr.checkAuth(r, false)
		if err != nil {
			jsonAuthFail(w)
			return
		}

		// Attempt to upgrade the connection to a websocket connection
		// using the default size for read/write buffers.
		ws, err := websocket.Upgrade(w, r, nil, 0, 0)
		if err != nil {
			if _, ok := err.(websocket.HandshakeError); !ok {
				log.Errorf("Unexpected websocket error: %v", err)
			}
			http.Error(w, "400 Bad Request.", http.StatusBadRequest)
			return
		}
		svr.WebsocketHandler(ws, r.RemoteAddr, authenticated)
	})

	for _, listener := range svr.cfg.Listeners {
		svr.wg.Add(1)
		go func(listener net.Listener) {
			log.Infof("Sync control server listening on %s", listener.Addr())
			httpServer.Serve(listener)
			log.Debugf("Sync control listener done for %s", listener.Addr())
			svr.wg.Done()
		}(listener)
	}
}

// Stop is used by server.go to stop the control server listener.
func (svr *SyncServer) Stop() error {
	if atomic.AddInt32(&svr.shutdown, 1) != 1 {
		log.Infof("Sync control server is already in the process of shutting down")
		return nil
	}
	log.Warnf("Sync control server shutting down...")
	for _, listener := range svr.cfg.Listeners {
		err := listener.Close()
		if err != nil {
			log.Errorf("Problem shutting down sync control server: %v", err)
			return err
		}
	}

	svr.clientsMtx.Lock()
	for client := range svr.clients {
		client.Disconnect()
	}
	svr.clientsMtx.Unlock()

	svr.cancel()
	close(svr.quit)
	svr.wg.Wait()
	log.Infof("Sync control server shutdown complete")
	return nil
}

// limitConnections responds with a 503 service unavailable and returns true if
// adding another client would exceed the maximum allow RPC clients.
//
// This function is safe for concurrent access.
func (svr *SyncServer) limitConnections(w http.ResponseWriter, remoteAddr string) bool {
	if int(atomic.LoadInt32(&svr.numClients)+1) > svr.cfg.RPCMaxClients {
		log.Infof("Max RPC clients exceeded [%d] - disconnecting client %s",
			svr.cfg.RPCMaxClients, remoteAddr)
		http.Error(w, "503 Too busy.  Try again later.",
			http.StatusServiceUnavailable)
		return true
	}
	return false
}

// incrementClients adds one to the number of connected RPC clients.
//
// This function is safe for concurrent access.
func (svr *SyncServer) incrementClients() {
	atomic.AddInt32(&svr.numClients, 1)
}

// decrementClients subtracts one from the number of connected RPC clients.
//
// This function is safe for concurrent access.
func (svr *SyncServer) decrementClients() {
	atomic.AddInt32(&svr.numClients, -1)
}

// checkAuth checks the HTTP Basic authentication supplied by a client in the
// HTTP request r.  If the supplied authentication does not match the expected
// credentials an error is returned.
//
// The first bool return value signifies auth success.  A client may instead
// authenticate later over the websocket with the authenticate command.
func (svr *SyncServer) checkAuth(r *http.Request, require bool) (bool, error) {
	authhdr := r.Header["Authorization"]
	if len(authhdr) <= 0 {
		if require {
			log.Warnf("RPC authentication failure from %s", r.RemoteAddr)
			return false, errors.New("auth failure")
		}
		return false, nil
	}

	authsha := sha256.Sum256([]byte(authhdr[0]))
	if !svr.authMatches(authsha) {
		log.Warnf("RPC authentication failure from %s", r.RemoteAddr)
		return false, errors.New("auth failure")
	}
	return true, nil
}

// jsonAuthFail sends a message back to the client if the http auth is rejected.
func jsonAuthFail(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="ekehi sync server"`)
	http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)
}

// parseListeners determines whether each listen address is IPv4 and IPv6 and
// returns a slice of appropriate net.Addrs to listen on with TCP.
func parseListeners(addrs []string) ([]net.Addr, error) {
	netAddrs := make([]net.Addr, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, err
		}

		// Empty host is both IPv4 and IPv6.
		if host == "" {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			// Host is a hostname, not an IP. Leave it to the dialer.
			netAddrs = append(netAddrs, simpleAddr{net: "tcp", addr: addr})
			continue
		}

		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}
	return netAddrs, nil
}

// setupRPCListeners returns a slice of listeners that are configured for use
// with the RPC server.
func setupRPCListeners(listenersString []string) ([]net.Listener, error) {
	netAddrs, err := parseListeners(listenersString)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := net.Listen(addr.Network(), addr.String())
		if err != nil {
			log.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}

	return listeners, nil
}
