package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/ekehi/ekehi-sync-server/utils"
)

var (
	syncdHomeDir      = utils.AppDataDir("ekehi-syncd", false)
	syncctlHomeDir    = utils.AppDataDir("ekehi-syncctl", false)
	defaultConfigFile = "syncctl.conf"
	defaultRPCServer  = "localhost"
)

// config defines the configuration options for syncctl.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	RPCServer   string `short:"s" long:"rpcserver" description:"Control server to connect to"`
	RPCUser     string `short:"u" long:"rpcuser" description:"Control server username"`
	RPCPassword string `short:"P" long:"rpcpass" default-mask:"-" description:"Control server password"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
}

// createDefaultConfigFile creates a basic config file at the given destination
// path.  For this it tries to read the config file of the sync daemon and
// extract the RPC user and password from it.
func createDefaultConfigFile(destinationPath, serverConfigPath string) error {
	// Read the daemon config.
	content, err := os.ReadFile(serverConfigPath)
	if err != nil {
		return err
	}

	// Extract the rpcuser
	rpcUserRegexp := regexp.MustCompile(`(?m)^\s*rpcuser=([^\s]+)`)
	userSubmatches := rpcUserRegexp.FindSubmatch(content)
	if userSubmatches == nil {
		// No user found, nothing to do
		return nil
	}

	// Extract the rpcpass
	rpcPassRegexp := regexp.MustCompile(`(?m)^\s*rpcpass=([^\s]+)`)
	passSubmatches := rpcPassRegexp.FindSubmatch(content)
	if passSubmatches == nil {
		// No password found, nothing to do
		return nil
	}

	// Create the destination directory if it does not exists
	err = os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}

	// Create the destination file and write the rpcuser and rpcpass to it
	dest, err := os.OpenFile(destinationPath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	destString := fmt.Sprintf("rpcuser=%s\nrpcpass=%s\n",
		string(userSubmatches[1]), string(passSubmatches[1]))

	dest.WriteString(destString)

	return nil
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(syncctlHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr string) (string, error) {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		defaultPort := "29777"

		return net.JoinHostPort(addr, defaultPort), nil
	}
	return addr, nil
}

func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile: defaultConfigFile,
		RPCServer:  defaultRPCServer,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
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
	usageMessage := fmt.Sprintf("Use %s -h to show options", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// When no config file has been specified, create a default one from the
	// daemon config when possible.
	if preCfg.ConfigFile == defaultConfigFile {
		serverConfigPath := filepath.Join(syncdHomeDir, "ekehi-syncd.conf")
		destinationPath := filepath.Join(syncctlHomeDir, defaultConfigFile)
		if _, err := os.Stat(destinationPath); os.IsNotExist(err) {
			// Errors are not fatal here, the user can still supply
			// credentials on the command line.
			createDefaultConfigFile(destinationPath, serverConfigPath)
		}
		preCfg.ConfigFile = destinationPath
	} else {
		preCfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
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

	// Add default port to RPC server if needed.
	cfg.RPCServer, err = normalizeAddress(cfg.RPCServer)
	if err != nil {
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
