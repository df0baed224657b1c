package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// config is the on-disk shape of netplayd's configuration file, loaded with
// BurntSushi/toml the way this codebase's sibling projects load theirs.
type config struct {
	Net struct {
		Server      bool   `toml:"server"`
		ListenAddr  string `toml:"listen_addr"`
		ServerAddr  string `toml:"server_addr"`
		Nick        string `toml:"nick"`
		Password    string `toml:"password"`
		DelayFrames uint32 `toml:"delay_frames"`
		CheckFrames uint32 `toml:"check_frames"`
	} `toml:"net"`

	Log struct {
		Path    string `toml:"path"`
		Level   string `toml:"level"`
		Console bool   `toml:"console"`
	} `toml:"log"`
}

func defaultConfig() config {
	var cfg config
	cfg.Net.ListenAddr = ":55435"
	cfg.Net.DelayFrames = 2
	cfg.Net.CheckFrames = 60
	cfg.Log.Level = "info"
	cfg.Log.Console = true
	return cfg
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("NETPLAYD_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("netplayd: loading config %s: %w", path, err)
	}

	return cfg, nil
}
