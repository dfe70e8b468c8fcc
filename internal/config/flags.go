package config

import (
	"errors"
	"flag"
	"net"
	"strconv"
	"strings"
	"time"
)

// NetAddress holds structured network address data for host and port.
// It implements the flag.Value interface.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a server address in format [host]:[port]
//	-d hub database DSN
//	-sqlite replica database path
//	-c/-config json file path with configs
//	-scope sync scope name
//	-client-id replica client id
//	-tables comma-separated table list
//	-batch-size rows per batch part
//	-snapshots-dir durable snapshot directory
//	-batches-dir transient batch spill directory
//	-conflict-policy default conflict policy (server_wins, client_wins)
//	-disable-constraints disable FK enforcement during apply
//	-remote-url hub base URL for the replica agent
//	-sync-interval background sync period (e.g., "5m")
//	-token-sign-key token signing key
//	-token-issuer token issuer name
//	-request-timeout request timeout (e.g., "30s", "1m")
func ParseFlags() *StructuredConfig {
	var serverAddress NetAddress
	var databaseDSN string
	var sqlitePath string
	var jsonConfigPath string
	var scopeName string
	var clientID string
	var tables string
	var batchSize int
	var snapshotsDir string
	var batchesDir string
	var conflictPolicy string
	var disableConstraints bool
	var remoteURL string
	var syncInterval time.Duration
	var tokenSignKey string
	var tokenIssuer string
	var requestTimeout time.Duration

	flag.Var(&serverAddress, "a", "Net address host:port")
	flag.StringVar(&databaseDSN, "d", "", "Hub database DSN")
	flag.StringVar(&sqlitePath, "sqlite", "", "Replica database path")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.StringVar(&scopeName, "scope", "", "Sync scope name")
	flag.StringVar(&clientID, "client-id", "", "Replica client id")
	flag.StringVar(&tables, "tables", "", "Comma-separated table list")
	flag.IntVar(&batchSize, "batch-size", 0, "Rows per batch part")
	flag.StringVar(&snapshotsDir, "snapshots-dir", "", "Durable snapshot directory")
	flag.StringVar(&batchesDir, "batches-dir", "", "Transient batch spill directory")
	flag.StringVar(&conflictPolicy, "conflict-policy", "", "Default conflict policy")
	flag.BoolVar(&disableConstraints, "disable-constraints", false, "Disable FK enforcement during apply")
	flag.StringVar(&remoteURL, "remote-url", "", "Hub base URL")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Background sync period (e.g., 5m)")
	flag.StringVar(&tokenSignKey, "token-sign-key", "", "Token signing key")
	flag.StringVar(&tokenIssuer, "token-issuer", "", "Token issuer")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")

	flag.Parse()

	var tableList []string
	if tables != "" {
		for _, t := range strings.Split(tables, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tableList = append(tableList, t)
			}
		}
	}

	return &StructuredConfig{
		Sync: Sync{
			BatchSize:                        batchSize,
			DisableConstraintsOnApplyChanges: disableConstraints,
			SnapshotsDirectory:               snapshotsDir,
			BatchesDirectory:                 batchesDir,
			ConflictResolutionPolicy:         conflictPolicy,
		},
		Storage: Storage{
			DB: DB{
				DSN: databaseDSN,
			},
			SQLite: SQLite{
				Path: sqlitePath,
			},
		},
		Server: Server{
			HTTPAddress:    serverAddress.String(),
			RequestTimeout: requestTimeout,
			TokenSignKey:   tokenSignKey,
			TokenIssuer:    tokenIssuer,
		},
		Remote: Remote{
			BaseURL:      remoteURL,
			TokenSignKey: tokenSignKey,
			TokenIssuer:  tokenIssuer,
		},
		Agent: Agent{
			ScopeName:    scopeName,
			ClientID:     clientID,
			Tables:       tableList,
			SyncInterval: syncInterval,
		},
		JSONFilePath: jsonConfigPath,
	}
}

// String returns a canonical host:port string for a NetAddress.
// If neither Host nor Port are set, it returns an empty string.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}

	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set parses the input string of form host:port and populates the NetAddress.
// It validates the port range, checks IP correctness unless host is "localhost",
// and returns an error if the format or values are invalid.
func (a *NetAddress) Set(s string) error {
	hostAndPort := strings.Split(s, ":")
	if len(hostAndPort) != 2 {
		return errors.New("need address in a form `host:port`")
	}

	host := hostAndPort[0]
	port, err := strconv.Atoi(hostAndPort[1])
	if err != nil {
		return err
	}

	if port < 1 {
		return errors.New("port number is a positive integer")
	}

	if host != "localhost" {
		ip := net.ParseIP(hostAndPort[0])
		if ip == nil {
			return errors.New("incorrect IP-address provided")
		}
	}

	a.Host = host
	a.Port = port
	return nil
}
