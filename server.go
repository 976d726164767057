package main

import (
	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/dal/dao"
	"github.com/ekehi/ekehi-sync-server/remote"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/syncmgr"
	"github.com/ekehi/ekehi-sync-server/syncserver"
)

type server struct {
	rpcServer    *syncserver.SyncServer
	syncManager  *syncmgr.SyncManager
	scheduler    *syncmgr.Scheduler
	cacheManager *cachemgr.Manager
	watcher      *dal.Watcher
}

func newServer() (*server, error) {
	db := dal.GlobalDBClient
	watcher := dal.NewWatcher()
	cacheMgr := cachemgr.NewManager(cfg.cacheStrategy)

	remoteClient := remote.NewClient(remote.Config{
		Endpoint:  cfg.APIEndpoint,
		ProjectID: cfg.APIProjectID,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.apiTimeout(),
	})

	// Setup offline repositories. The remote client serves as the network
	// source for each entity kind.
	userRepo := repos.NewOfflineUserRepo(db, dao.GetUserProfileDAOImpl(),
		watcher, remoteClient, cacheMgr)
	miningRepo := repos.NewOfflineMiningRepo(db, dao.GetMiningSessionDAOImpl(),
		watcher, remoteClient, cacheMgr)
	taskRepo, err := repos.NewOfflineSocialTaskRepo(db, dao.GetSocialTaskDAOImpl(),
		dao.GetTaskCompletionDAOImpl(), watcher, remoteClient, cacheMgr)
	if err != nil {
		return nil, err
	}

	// Setup sync manager and its periodic scheduler.
	syncMgr := syncmgr.NewSyncManager(userRepo, miningRepo, taskRepo,
		remoteClient, remoteClient, remoteClient)
	scheduler, err := syncmgr.NewScheduler(syncMgr, cfg.syncInterval())
	if err != nil {
		return nil, err
	}
	for _, userID := range cfg.TrackedUsers {
		scheduler.Track(userID)
	}

	rpcSvr, err := syncserver.NewSyncServer(&syncserver.ConfigSyncServer{
		ListenersString:      cfg.Listeners,
		RPCUser:              cfg.RPCUser,
		RPCPass:              cfg.RPCPass,
		RPCMaxClients:        cfg.RPCMaxClients,
		RPCMaxWebsockets:     cfg.RPCMaxWebsockets,
		RPCMaxConcurrentReqs: cfg.RPCMaxConcurrentReqs,
	}, cacheMgr, userRepo, miningRepo, taskRepo, syncMgr, scheduler)
	if err != nil {
		return nil, err
	}

	ret := &server{
		rpcServer:    rpcSvr,
		syncManager:  syncMgr,
		scheduler:    scheduler,
		cacheManager: cacheMgr,
		watcher:      watcher,
	}
	return ret, nil
}

func (s *server) Start() {
	if s.rpcServer != nil {
		s.rpcServer.Start()
	}
	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

func (s *server) Stop() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			syncdLog.Warnf("Fail to stop sync scheduler: %v", err)
		}
	}
	if s.rpcServer != nil {
		if err := s.rpcServer.Stop(); err != nil {
			syncdLog.Warnf("Fail to stop control server: %v", err)
		}
	}
}
