package configsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

type FetchResult struct {
	Configured bool
	Config     model.RouterConfig
}

// Client reads the add-on options file, falling back to ROUTER_* environment
// variables when the file does not exist.
type Client struct {
	optionsPath string
}

func NewClient(optionsPath string) *Client {
	return &Client{optionsPath: strings.TrimSpace(optionsPath)}
}

type addonOptions struct {
	RouterHost        string   `json:"router_host"`
	SessionID         string   `json:"session_id"`
	AlwaysHome        []string `json:"always_home_devices"`
	PresenceDetection *bool    `json:"presence_detection"`
	PollIntervalSec   int      `json:"poll_interval_sec"`
}

func (c *Client) FetchConfig(ctx context.Context) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}

	opts, updatedAt, err := c.readOptions()
	if errors.Is(err, fs.ErrNotExist) {
		opts, err = optionsFromEnv()
		updatedAt = time.Time{}
	}
	if err != nil {
		return FetchResult{}, err
	}

	cfg := model.RouterConfig{
		UpdatedAt:         updatedAt,
		Host:              strings.TrimSpace(opts.RouterHost),
		SessionID:         strings.TrimSpace(opts.SessionID),
		AlwaysHome:        model.NormalizeMACs(opts.AlwaysHome),
		PresenceDetection: true,
		PollIntervalSec:   opts.PollIntervalSec,
	}
	if cfg.Host == "" {
		cfg.Host = model.DefaultRouterHost
	}
	if opts.PresenceDetection != nil {
		cfg.PresenceDetection = *opts.PresenceDetection
	}
	cfg.PollIntervalSec = int(cfg.PollInterval() / time.Second)
	return FetchResult{Configured: cfg.Configured(), Config: cfg}, nil
}

func (c *Client) readOptions() (addonOptions, time.Time, error) {
	if c.optionsPath == "" {
		return addonOptions{}, time.Time{}, fs.ErrNotExist
	}
	info, err := os.Stat(c.optionsPath)
	if err != nil {
		return addonOptions{}, time.Time{}, err
	}
	body, err := os.ReadFile(c.optionsPath)
	if err != nil {
		return addonOptions{}, time.Time{}, err
	}
	var opts addonOptions
	if err := json.Unmarshal(body, &opts); err != nil {
		return addonOptions{}, time.Time{}, fmt.Errorf("decode %s: %w", c.optionsPath, err)
	}
	return opts, info.ModTime().UTC(), nil
}

// routerEnv mirrors the options file for deployments without the Supervisor.
type routerEnv struct {
	Host              string   `env:"ROUTER_HOST"`
	SessionID         string   `env:"ROUTER_SESSION_ID"`
	AlwaysHome        []string `env:"ROUTER_ALWAYS_HOME" envSeparator:","`
	PresenceDetection *bool    `env:"ROUTER_PRESENCE_DETECTION"`
	PollIntervalSec   int      `env:"ROUTER_POLL_INTERVAL_SEC"`
}

func optionsFromEnv() (addonOptions, error) {
	var e routerEnv
	if err := env.Parse(&e); err != nil {
		return addonOptions{}, fmt.Errorf("parse router env: %w", err)
	}
	return addonOptions{
		RouterHost:        e.Host,
		SessionID:         e.SessionID,
		AlwaysHome:        e.AlwaysHome,
		PresenceDetection: e.PresenceDetection,
		PollIntervalSec:   e.PollIntervalSec,
	}, nil
}
