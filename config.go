package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/utils"
)

const (
	defaultConfigFilename       = "ekehi-syncd.conf"
	defaultLogDirname           = "logs"
	defaultLogFilename          = "ekehi-syncd.log"
	defaultDbFilename           = "ekehi-sync.db"
	defaultLogLevel             = "info"
	defaultListenerPort         = "29777"
	defaultRPCUser              = "admin"
	defaultRPCPass              = "admin"
	defaultMaxRPCClients        = 1000
	defaultMaxRPCWebsockets     = 1000
	defaultMaxRPCConcurrentReqs = 20
	defaultSyncIntervalSecs     = 300
	defaultAPITimeoutSecs       = 30
	defaultCacheStrategy        = "CACHE_FIRST"
)

// cfg is the loaded runtime configuration.  It is set once by syncdMain and
// treated as read-only afterwards.
var cfg *config

var (
	defaultHomeDir  = utils.AppDataDir("ekehi-syncd", false)
	localConfigFile = defaultConfigFilename
	defaultLogDir   = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultDbPath   = filepath.Join(defaultHomeDir, defaultDbFilename)
)

// config defines the configuration options for the sync daemon.
//
// See loadConfig for details on the configuration load process.
type config struct {
	AppDataDir          *utils.ExplicitString `short:"A" long:"appdata" description:"Application data directory for sync daemon config, database and logs"`
	ConfigFile          string                `short:"C" long:"configfile" description:"Path to configuration file"`
	DbPath              string                `long:"dbpath" description:"Path of the local store database file. Use :memory: for a volatile in-memory store"`
	DisableAutoCreateDB bool                  `long:"noautocreatedb" description:"Disable creating database tables automatically"`
	DebugLevel          string                `short:"d" long:"debuglevel" description:"Logging level for all subsystems {debug, info, warn, error} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir              string                `long:"logdir" description:"Directory to log output."`

	Listeners    []string `long:"listen" description:"Add an interface/port to listen for control connections (HTTP/ws)"`
	ListenerPort string   `long:"listenerport" description:"Port that the control websocket server listens on (default: 29777)"`

	RPCUser              string `long:"rpcuser" description:"RPC username for the control server (default: admin). This should be changed in production environment"`
	RPCPass              string `long:"rpcpass" default-mask:"-" description:"RPC password for the control server (default: admin). This should be changed in production environment"`
	RPCMaxClients        int    `long:"rpcmaxclients" description:"Max number of control RPC clients"`
	RPCMaxWebsockets     int    `long:"rpcmaxwebsockets" description:"Max number of websocket connections"`
	RPCMaxConcurrentReqs int    `long:"rpcmaxconcurrentreqs" description:"Max number of concurrent RPC requests that may be processed concurrently"`

	APIEndpoint  string `long:"apiendpoint" description:"Base URL of the rewards backend REST API"`
	APIProjectID string `long:"apiprojectid" description:"Project ID used to scope backend requests"`
	APIKey       string `long:"apikey" default-mask:"-" description:"API key for the rewards backend"`
	APITimeout   int    `long:"apitimeout" description:"Timeout in seconds for each backend request (default: 30)"`

	CacheStrategy string   `long:"cachestrategy" description:"Initial cache strategy {CACHE_FIRST, NETWORK_FIRST, CACHE_ONLY, NETWORK_ONLY} (default: CACHE_FIRST)"`
	SyncInterval  int      `long:"syncinterval" description:"Seconds between periodic reconciliation passes for tracked users (default: 300)"`
	TrackedUsers  []string `long:"trackuser" description:"Add a user to reconcile on every periodic pass"`

	ProfilePort string `long:"profileport" description:"Enable HTTP profiling on the given port -- NOTE: port must be between 1024 and 65536"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`

	cacheStrategy cachemgr.Strategy
}

func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	return parser
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// removeDuplicateAddresses returns a new slice with all duplicate entries in
// addrs removed.
func removeDuplicateAddresses(addrs []string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, val := range addrs {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	for i, addr := range addrs {
		addrs[i] = normalizeAddress(addr, defaultPort)
	}

	return removeDuplicateAddresses(addrs)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in the daemon functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile:           localConfigFile,
		AppDataDir:           utils.NewExplicitString(defaultHomeDir),
		DebugLevel:           defaultLogLevel,
		LogDir:               defaultLogDir,
		DbPath:               defaultDbPath,
		RPCUser:              defaultRPCUser,
		RPCPass:              defaultRPCPass,
		RPCMaxClients:        defaultMaxRPCClients,
		RPCMaxConcurrentReqs: defaultMaxRPCConcurrentReqs,
		RPCMaxWebsockets:     defaultMaxRPCWebsockets,
		APITimeout:           defaultAPITimeoutSecs,
		CacheStrategy:        defaultCacheStrategy,
		SyncInterval:         defaultSyncIntervalSecs,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	if fileExists(preCfg.ConfigFile) {
		err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				fmt.Fprintf(os.Stderr, "Error parsing config "+
					"file: %v\n", err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
			configFileError = err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(defaultHomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Expand the log directory and database path.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.DbPath != ":memory:" {
		cfg.DbPath = cleanAndExpandPath(cfg.DbPath)
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Show version at startup.
	syncdLog.Infof("Version %s", version())

	// Validate the initial cache strategy.
	cfg.cacheStrategy, err = cachemgr.ParseStrategy(cfg.CacheStrategy)
	if err != nil {
		str := "%s: The specified cache strategy [%v] is invalid"
		err := fmt.Errorf(str, funcName, cfg.CacheStrategy)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.SyncInterval <= 0 {
		str := "%s: The sync interval must be positive [%v]"
		err := fmt.Errorf(str, funcName, cfg.SyncInterval)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.APIEndpoint == "" {
		syncdLog.Warn("No backend API endpoint configured, remote fetches will fail until one is set")
	}
	cfg.APIEndpoint = strings.TrimSuffix(cfg.APIEndpoint, "/")

	if cfg.ListenerPort == "" {
		cfg.ListenerPort = defaultListenerPort
	}
	// Add the default listener if none were specified. The default
	// listener is all addresses on the listen port.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.ListenerPort),
		}
	}

	// Add default port to all listener addresses if needed and remove
	// duplicate addresses.
	cfg.Listeners = normalizeAddresses(cfg.Listeners, cfg.ListenerPort)

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		syncdLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// apiTimeout returns the configured backend request timeout as a duration.
func (c *config) apiTimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}

// syncInterval returns the configured reconciliation interval as a
// duration.
func (c *config) syncInterval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}
