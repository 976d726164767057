package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/ekehi/ekehi-sync-server/dal"
)

// syncdMain is the real main function for the sync daemon.  It is necessary
// to work around the fact that deferred functions do not run when os.Exit()
// is called.
func syncdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	defer syncdLog.Info("Shutdown complete")

	// Enable http profiling server if requested.
	if cfg.ProfilePort != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.ProfilePort)
			syncdLog.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			syncdLog.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	// Open the local store and create the entity tables if needed.
	err = dal.InitDB(&dal.DBConfig{Path: cfg.DbPath}, !cfg.DisableAutoCreateDB)
	if err != nil {
		syncdLog.Errorf("Fail to open local store: %v", err)
		return err
	}

	svr, err := newServer()
	if err != nil {
		syncdLog.Errorf("Unable to create server: %v", err)
		return err
	}

	svr.Start()

	addInterruptHandler(func() {
		syncdLog.Info("Gracefully shutting down the server...")
		svr.Stop()
	})

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interruptHandlersDone
	return nil
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Up some limits.
	debug.SetGCPercent(10)

	// Work around defer not working after os.Exit()
	if err := syncdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
