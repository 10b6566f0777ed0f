package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/andreyvit/pagan/store"
)

type Config struct {
	Spec     string
	Type     string
	Offset   int
	LogLevel slog.Level
	Verbose  bool
	Encoding store.Encoding

	// DumpBytes limits how many bytes of a buffer dump prints. Zero fits the
	// terminal width, negative prints everything.
	DumpBytes int
}

func defaultConfig() Config {
	return Config{
		LogLevel: slog.LevelWarn,
		Encoding: store.MsgPack,
	}
}

type fileConfig struct {
	Spec      string `toml:"spec"`
	Type      string `toml:"type"`
	LogLevel  string `toml:"log_level"`
	Verbose   bool   `toml:"verbose"`
	Encoding  string `toml:"encoding"`
	DumpBytes int    `toml:"dump_bytes"`
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("spec") {
		cfg.Spec = strings.TrimSpace(raw.Spec)
	}

	if meta.IsDefined("type") {
		cfg.Type = strings.TrimSpace(raw.Type)
	}

	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if meta.IsDefined("encoding") {
		enc, err := store.ParseEncoding(strings.TrimSpace(raw.Encoding))
		if err != nil {
			return Config{}, fmt.Errorf("parse encoding: %w", err)
		}
		cfg.Encoding = enc
	}

	if meta.IsDefined("dump_bytes") {
		cfg.DumpBytes = raw.DumpBytes
	}

	return cfg, nil
}
