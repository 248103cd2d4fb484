// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/relay/gamefmt"
)

type commandHandler func(r *Relay, msg RemoteMessage, args []string) (string, error)

type command struct {
	usage   string
	help    string
	admin   bool
	handler commandHandler
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"home":        {help: "Show the home base location", handler: cmdHome},
		"sethome":     {usage: "<x> <y> <z>", help: "Set the home base (HUD coordinates)", admin: true, handler: cmdSetHome},
		"nickname":    {help: "Show the default nickname", handler: cmdNickname},
		"setnickname": {usage: "<name>", help: "Set the default nickname", admin: true, handler: cmdSetNickname},
		"players":     {help: "List online players", handler: cmdPlayers},
		"time":        {help: "Show the in-game time", handler: cmdTime},
		"weather":     {help: "Show the weather at the home base", handler: cmdWeather},
		"help":        {help: "List commands", handler: cmdHelp},
	}
}

// runCommand executes a remote text command and replies in the channel it
// came from. Must be called on the actor.
func (r *Relay) runCommand(msg RemoteMessage, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	log := r.log.With().
		Str("command", name).
		Str("author", msg.AuthorName).
		Logger()

	reply, err := r.execCommand(name, msg, fields[1:])
	switch {
	case errors.Is(err, ErrUnknownCommand):
		log.Debug().Msg("Unknown remote command")
		reply = fmt.Sprintf("Unknown command. Try `%shelp`.", r.cfg.CommandPrefix)
	case errors.Is(err, ErrPermissionDenied):
		log.Warn().Msg("Remote command denied")
		reply = "⛔ You are not allowed to use this command."
	case err != nil:
		log.Warn().Err(err).Msg("Remote command failed")
		if reply == "" {
			reply = "❌ " + err.Error()
		}
	default:
		log.Info().Msg("Remote command executed")
	}
	_ = r.enqueue(msg.ChannelID, reply)
}

func (r *Relay) execCommand(name string, msg RemoteMessage, args []string) (string, error) {
	cmd, ok := commands[name]
	if !ok {
		return "", ErrUnknownCommand
	}
	if cmd.admin && !r.cfg.IsAdmin(msg.AuthorID) {
		return "", ErrPermissionDenied
	}
	return cmd.handler(r, msg, args)
}

func (r *Relay) translator() coords.Translator {
	return coords.NewTranslator(r.host.MapSize())
}

// saveConfig hands a copy of the configuration to the saver goroutine. A
// save still waiting to be written is replaced by the newer one.
func (r *Relay) saveConfig() {
	if r.store == nil {
		return
	}
	snapshot := *r.cfg
	for {
		select {
		case r.pendingSave <- &snapshot:
			return
		default:
			select {
			case <-r.pendingSave:
			default:
			}
		}
	}
}

// runSaver writes queued configurations to the store. A save queued before
// shutdown is still written.
func (r *Relay) runSaver() {
	defer close(r.saverDone)
	for {
		select {
		case cfg := <-r.pendingSave:
			r.safeRun("save", func() { r.writeConfig(cfg) })
		case <-r.stopSaver:
			select {
			case cfg := <-r.pendingSave:
				r.safeRun("save", func() { r.writeConfig(cfg) })
			default:
			}
			return
		}
	}
}

func (r *Relay) writeConfig(cfg *Config) {
	if err := r.store.Save(cfg); err != nil {
		r.log.Error().Err(err).Msg("Failed to save config")
		return
	}
	r.log.Debug().Msg("Config saved")
}

func cmdHome(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	if r.cfg.Home == nil {
		return "No home location has been set yet.", nil
	}
	return fmt.Sprintf("🏠 Home base: **%s**", r.translator().FormatPretty(*r.cfg.Home)), nil
}

func cmdSetHome(r *Relay, msg RemoteMessage, args []string) (string, error) {
	pretty, err := coords.ParsePos(args)
	if err != nil {
		return fmt.Sprintf("Usage: `%ssethome <x> <y> <z>`", r.cfg.CommandPrefix), err
	}
	abs := r.translator().PrettyToAbsolute(pretty)
	r.cfg.Home = &abs
	r.saveConfig()
	r.log.Info().
		Str("author", msg.AuthorName).
		Stringer("pretty", pretty).
		Stringer("absolute", abs).
		Msg("Home location set")
	return fmt.Sprintf("✅ Home base set to: **%s**", pretty), nil
}

func cmdNickname(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	if r.cfg.DefaultNickname == "" {
		return "No default nickname has been set. The bot's username will be used.", nil
	}
	return fmt.Sprintf("🏷️ Default nickname: **%s**", r.cfg.DefaultNickname), nil
}

func cmdSetNickname(r *Relay, msg RemoteMessage, args []string) (string, error) {
	name := strings.Join(args, " ")
	if name == "" {
		return fmt.Sprintf("Usage: `%ssetnickname <name>`", r.cfg.CommandPrefix), errors.New("missing nickname")
	}
	r.cfg.DefaultNickname = name
	r.saveConfig()
	r.log.Info().Str("author", msg.AuthorName).Str("nickname", name).Msg("Default nickname set")
	r.refreshPresence(rosterChange{})
	return fmt.Sprintf("✅ Default nickname set to: **%s**", name), nil
}

func cmdPlayers(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	return gamefmt.PlayersReport(r.host.OnlinePlayers()), nil
}

func cmdTime(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	return gamefmt.TimeReport(r.host.Calendar()), nil
}

func cmdWeather(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	if r.cfg.Home == nil {
		return fmt.Sprintf("No home location has been set. Use `%ssethome` first.", r.cfg.CommandPrefix), nil
	}
	climate, ok := r.host.ClimateAt(*r.cfg.Home)
	if !ok {
		return "Could not retrieve climate data for the home location.", nil
	}
	return gamefmt.WeatherReport(climate, r.translator().FormatPretty(*r.cfg.Home)), nil
}

func cmdHelp(r *Relay, _ RemoteMessage, _ []string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("Available commands:")
	for _, name := range names {
		cmd := commands[name]
		sb.WriteString("\n`")
		sb.WriteString(r.cfg.CommandPrefix)
		sb.WriteString(name)
		if cmd.usage != "" {
			sb.WriteString(" " + cmd.usage)
		}
		sb.WriteString("` ")
		sb.WriteString(cmd.help)
		if cmd.admin {
			sb.WriteString(" (admin)")
		}
	}
	return sb.String(), nil
}
