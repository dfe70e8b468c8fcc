package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type StructuredJSONConfig struct {
	Sync struct {
		BatchSize                        int    `json:"batch_size"`
		DisableConstraintsOnApplyChanges bool   `json:"disable_constraints_on_apply"`
		SnapshotsDirectory               string `json:"snapshots_directory"`
		BatchesDirectory                 string `json:"batches_directory"`
		ConflictResolutionPolicy         string `json:"conflict_resolution_policy"`
		BatchEncryptionKey               string `json:"batch_encryption_key"`
	} `json:"sync,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`

		SQLite struct {
			Path string `json:"path"`
		} `json:"sqlite,omitempty"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress    string   `json:"http_address"`
		RequestTimeout Duration `json:"request_timeout"`
		TokenSignKey   string   `json:"token_sign_key"`
		TokenIssuer    string   `json:"token_issuer"`
	} `json:"server,omitempty"`

	Remote struct {
		BaseURL      string   `json:"base_url"`
		Timeout      Duration `json:"timeout"`
		TokenSignKey string   `json:"token_sign_key"`
		TokenIssuer  string   `json:"token_issuer"`
	} `json:"remote,omitempty"`

	Agent struct {
		ScopeName    string   `json:"scope"`
		ClientID     string   `json:"client_id"`
		Tables       []string `json:"tables"`
		SyncInterval Duration `json:"sync_interval"`
	} `json:"agent,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		Sync: Sync{
			BatchSize:                        jsonCfg.Sync.BatchSize,
			DisableConstraintsOnApplyChanges: jsonCfg.Sync.DisableConstraintsOnApplyChanges,
			SnapshotsDirectory:               jsonCfg.Sync.SnapshotsDirectory,
			BatchesDirectory:                 jsonCfg.Sync.BatchesDirectory,
			ConflictResolutionPolicy:         jsonCfg.Sync.ConflictResolutionPolicy,
			BatchEncryptionKey:               jsonCfg.Sync.BatchEncryptionKey,
		},
		Storage: Storage{
			DB: DB{
				DSN: jsonCfg.Storage.DB.DSN,
			},
			SQLite: SQLite{
				Path: jsonCfg.Storage.SQLite.Path,
			},
		},
		Server: Server{
			HTTPAddress:    jsonCfg.Server.HTTPAddress,
			RequestTimeout: time.Duration(jsonCfg.Server.RequestTimeout),
			TokenSignKey:   jsonCfg.Server.TokenSignKey,
			TokenIssuer:    jsonCfg.Server.TokenIssuer,
		},
		Remote: Remote{
			BaseURL:      jsonCfg.Remote.BaseURL,
			Timeout:      time.Duration(jsonCfg.Remote.Timeout),
			TokenSignKey: jsonCfg.Remote.TokenSignKey,
			TokenIssuer:  jsonCfg.Remote.TokenIssuer,
		},
		Agent: Agent{
			ScopeName:    jsonCfg.Agent.ScopeName,
			ClientID:     jsonCfg.Agent.ClientID,
			Tables:       jsonCfg.Agent.Tables,
			SyncInterval: time.Duration(jsonCfg.Agent.SyncInterval),
		},
		JSONFilePath: "",
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling
// from strings like "1h", "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}
