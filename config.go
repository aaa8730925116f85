package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"scribe/transcripts"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type (
	config struct {
		Language   string
		Display    transcripts.Config
		AllModes   bool
		Copy       bool
		Serve      bool
		HTTPAddr   string
		DBPath     string
		FFmpegPath string
		WorkDir    string
		Whisper    whisperConfig
		LogLevel   string
		LogFormat  string
	}

	whisperConfig struct {
		Path   string
		Model  string
		Device string
	}
)

// flagKeys maps command line flags to their viper keys.
var flagKeys = map[string]string{
	"language":     "language",
	"mode":         "mode",
	"timestamps":   "timestamps",
	"all-modes":    "all_modes",
	"copy":         "copy",
	"serve":        "serve",
	"addr":         "http.addr",
	"db":           "db.path",
	"ffmpeg-path":  "ffmpeg.path",
	"workdir":      "ffmpeg.workdir",
	"whisper-path": "whisper.path",
	"model":        "whisper.model",
	"device":       "whisper.device",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// loadConfig resolves settings from flags, SCRIBE_* environment variables
// (a .env file is honoured), an optional config file and defaults, in that
// order of precedence. It returns the remaining positional arguments.
func loadConfig(args []string) (config, []string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, nil, fmt.Errorf("loading .env: %w", err)
	}

	fs := pflag.NewFlagSet("scribe", pflag.ContinueOnError)
	configFile := fs.String("config", "", "config file (yaml, json or toml)")
	fs.StringP("language", "l", "zh-Hant", "source language tag, empty to auto-detect")
	fs.StringP("mode", "m", "segment", "splitting mode: segment|semantic|mixed")
	fs.BoolP("timestamps", "t", false, "prefix segment lines with their time span")
	fs.Bool("all-modes", false, "print the transcript in every splitting mode")
	fs.Bool("copy", false, "copy the transcript to the clipboard")
	fs.Bool("serve", false, "serve the HTTP API instead of transcribing one file")
	fs.String("addr", ":8121", "HTTP listen address")
	fs.String("db", "", "sqlite history file, empty disables history")
	fs.String("ffmpeg-path", "ffmpeg", "ffmpeg binary")
	fs.String("workdir", "", "directory for converted audio (default system temp)")
	fs.String("whisper-path", "whisperx", "whisperx binary")
	fs.String("model", "base", "speech model name or path")
	fs.String("device", "auto", "inference device: auto|cpu|cuda")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "console", "log format: console|json")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: scribe [flags] <media file>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return config{}, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return config{}, nil, fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("scribe")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/scribe")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return config{}, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	mode, err := transcripts.ParseMode(v.GetString("mode"))
	if err != nil {
		return config{}, nil, err
	}

	cfg := config{
		Language: v.GetString("language"),
		Display: transcripts.Config{
			Mode:              mode,
			IncludeTimestamps: v.GetBool("timestamps"),
		},
		AllModes:   v.GetBool("all_modes"),
		Copy:       v.GetBool("copy"),
		Serve:      v.GetBool("serve"),
		HTTPAddr:   v.GetString("http.addr"),
		DBPath:     v.GetString("db.path"),
		FFmpegPath: v.GetString("ffmpeg.path"),
		WorkDir:    v.GetString("ffmpeg.workdir"),
		Whisper: whisperConfig{
			Path:   v.GetString("whisper.path"),
			Model:  v.GetString("whisper.model"),
			Device: v.GetString("whisper.device"),
		},
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
	}
	return cfg, fs.Args(), nil
}

func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if strings.EqualFold(format, "json") {
		l = zerolog.New(w)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}
	return l.Level(lvl).With().Timestamp().Logger()
}
