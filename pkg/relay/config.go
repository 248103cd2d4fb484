// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"fmt"
	"slices"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/relay/gamefmt"
)

//go:embed example-config.yaml
var ExampleConfig string

// Remote backend names accepted in remote.type.
const (
	RemoteMattermost = "mattermost"
	RemoteMatrix     = "matrix"
)

// Config is the relay configuration file.
type Config struct {
	Remote           RemoteConfig               `yaml:"remote"`
	DefaultChannel   ChannelOverride            `yaml:"default_channel"`
	ChannelOverrides map[string]ChannelOverride `yaml:"channel_overrides"`
	// IgnoreUsers lists remote usernames whose messages are never relayed.
	// Matching is exact and case-sensitive.
	IgnoreUsers []string `yaml:"ignore_users"`

	Templates     gamefmt.Templates `yaml:"templates"`
	DeathMessages DeathMessages     `yaml:"death_messages"`

	// Home is the absolute position of the home base, nil when unset.
	Home            *coords.Pos `yaml:"home"`
	DefaultNickname string      `yaml:"default_nickname"`
	// MinPresenceInterval is the floor, in seconds, for presence updates.
	MinPresenceInterval int               `yaml:"min_presence_interval"`
	MonthMessages       map[int]string    `yaml:"month_messages"`
	Moon                MoonMessages      `yaml:"moon"`
	Calendar            CalendarMessages  `yaml:"calendar"`
	LogScrape           []LogScrapeRule   `yaml:"log_scrape"`
	AllowMentions       bool              `yaml:"allow_mentions"`
	CommandPrefix       string            `yaml:"command_prefix"`
	AdminUsers          []string          `yaml:"admin_users"`
	GameLink            GameLinkConfig    `yaml:"gamelink"`
	AdminAPI            AdminAPIConfig    `yaml:"admin_api"`
	OutboundQueueSize   int               `yaml:"outbound_queue_size"`
	Logging             zeroconfig.Config `yaml:"logging"`

	formatter *gamefmt.Formatter `yaml:"-"`
	scraper   *LogScrapeFilter   `yaml:"-"`
	env       envSecrets         `yaml:"-"`
}

// RemoteConfig selects and authenticates the remote backend. Either Token
// or Username and Password must be set.
type RemoteConfig struct {
	Type      string `yaml:"type"`
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// ChannelOverride binds a local chat group to a remote channel.
type ChannelOverride struct {
	RemoteChannel string `yaml:"remote_channel"`
	ChatToRemote  bool   `yaml:"chat_to_remote"`
	ChatToGame    bool   `yaml:"chat_to_game"`
}

// UnmarshalYAML defaults both direction flags to true.
func (co *ChannelOverride) UnmarshalYAML(node *yaml.Node) error {
	type rawOverride ChannelOverride
	raw := rawOverride{ChatToRemote: true, ChatToGame: true}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*co = ChannelOverride(raw)
	return nil
}

type DeathMessages struct {
	Enabled bool `yaml:"enabled"`
	// Causes maps a death cause key (see gamefmt.CauseKeys) to a template.
	Causes map[string]string `yaml:",inline"`
}

type MoonMessages struct {
	Full   string `yaml:"full"`
	Waning string `yaml:"waning"`
}

type CalendarMessages struct {
	Paused  string `yaml:"paused"`
	Resumed string `yaml:"resumed"`
}

type GameLinkConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

type AdminAPIConfig struct {
	Listen string `yaml:"listen"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess compiles templates and log scrape patterns and fills in
// defaults for zero values. It must be called before the config is used.
func (c *Config) PostProcess() error {
	var err error
	c.formatter, err = gamefmt.New(c.Templates, c.DeathMessages.Causes)
	if err != nil {
		return fmt.Errorf("failed to compile templates: %w", err)
	}
	c.scraper, err = NewLogScrapeFilter(c.LogScrape)
	if err != nil {
		return fmt.Errorf("failed to compile log scrape rules: %w", err)
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
	if c.MinPresenceInterval <= 0 {
		c.MinPresenceInterval = 15
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	if c.Remote.Type == "" {
		c.Remote.Type = RemoteMattermost
	}
	return nil
}

// Validate checks the settings the relay cannot run without.
func (c *Config) Validate() error {
	switch c.Remote.Type {
	case RemoteMattermost, RemoteMatrix, "":
	default:
		return fmt.Errorf("unsupported remote type %q", c.Remote.Type)
	}
	if c.Remote.ServerURL == "" {
		return fmt.Errorf("remote.server_url is not configured")
	}
	hasPassword := c.Remote.Username != "" && c.Remote.Password != ""
	if c.Remote.Token == "" && (!hasPassword || c.Remote.Type == RemoteMatrix) {
		return ErrMissingCredential
	}
	if c.DefaultChannel.RemoteChannel == "" {
		return ErrMissingChannel
	}
	return nil
}

// Formatter returns the compiled message formatter.
func (c *Config) Formatter() *gamefmt.Formatter {
	return c.formatter
}

// MinInterval returns MinPresenceInterval as a duration.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.MinPresenceInterval) * time.Second
}

// IsIgnored reports whether a remote username is on the ignore list.
func (c *Config) IsIgnored(username string) bool {
	return slices.Contains(c.IgnoreUsers, username)
}

// IsAdmin reports whether a remote account id may run admin commands.
// Display names are never matched since users can change them.
func (c *Config) IsAdmin(accountID string) bool {
	return accountID != "" && slices.Contains(c.AdminUsers, accountID)
}

func (c *Config) presenceMessages() PresenceMessages {
	return PresenceMessages{
		Months:     c.MonthMessages,
		MoonFull:   c.Moon.Full,
		MoonWaning: c.Moon.Waning,
		Paused:     c.Calendar.Paused,
		Resumed:    c.Calendar.Resumed,
	}
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "remote", "type")
	helper.Copy(up.Str, "remote", "server_url")
	helper.Copy(up.Str|up.Null, "remote", "token")
	helper.Copy(up.Str|up.Null, "remote", "username")
	helper.Copy(up.Str|up.Null, "remote", "password")
	helper.Copy(up.Str|up.Int, "default_channel", "remote_channel")
	helper.Copy(up.Bool, "default_channel", "chat_to_remote")
	helper.Copy(up.Bool, "default_channel", "chat_to_game")
	helper.Copy(up.Map, "channel_overrides")
	helper.Copy(up.List, "ignore_users")
	for _, key := range []string{"chat", "join", "leave", "server_start", "server_stop", "remote_chat"} {
		helper.Copy(up.Str|up.Null, "templates", key)
	}
	helper.Copy(up.Bool, "death_messages", "enabled")
	for _, key := range gamefmt.CauseKeys() {
		helper.Copy(up.Str|up.Null, "death_messages", key)
	}
	helper.Copy(up.Map|up.Null, "home")
	helper.Copy(up.Str|up.Null, "default_nickname")
	helper.Copy(up.Int, "min_presence_interval")
	helper.Copy(up.Map, "month_messages")
	helper.Copy(up.Str|up.Null, "moon", "full")
	helper.Copy(up.Str|up.Null, "moon", "waning")
	helper.Copy(up.Str|up.Null, "calendar", "paused")
	helper.Copy(up.Str|up.Null, "calendar", "resumed")
	helper.Copy(up.List, "log_scrape")
	helper.Copy(up.Bool, "allow_mentions")
	helper.Copy(up.Str, "command_prefix")
	helper.Copy(up.List, "admin_users")
	helper.Copy(up.Str, "gamelink", "listen")
	helper.Copy(up.Str, "gamelink", "path")
	helper.Copy(up.Str|up.Null, "gamelink", "secret")
	helper.Copy(up.Str|up.Null, "admin_api", "listen")
	helper.Copy(up.Int, "outbound_queue_size")
	helper.Copy(up.Map, "logging")
}

// Upgrader merges a user config onto the embedded example so that missing
// fields take their documented defaults.
func Upgrader() up.BaseUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Base:           ExampleConfig,
	}
}
