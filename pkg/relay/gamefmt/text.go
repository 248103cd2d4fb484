// Copyright 2024-2026 Aiku AI

package gamefmt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiku/gamerelay/pkg/world"
)

// senderPrefix matches chat text the host has already decorated with the
// sender, e.g. "<strong>Alice:</strong> hello".
var senderPrefix = regexp.MustCompile(`(?s)^(?:<[^>]*>)?[^\s:<>]+:(?:</[^>]*>)? (.*)$`)

// StripSenderPrefix removes a host-rendered "name: " prefix and returns the
// free text. Text without such a prefix is returned unchanged.
func StripSenderPrefix(text string) string {
	m := senderPrefix.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	return m[1]
}

var logPlaceholder = regexp.MustCompile(`\{(\d+)(?:[:,][^}]*)?\}`)

// FormatLogLine substitutes {N} placeholders in a host log format string.
// Placeholders without a matching argument are left as is.
func FormatLogLine(format string, args []string) string {
	if len(args) == 0 {
		return format
	}
	return logPlaceholder.ReplaceAllStringFunc(format, func(ph string) string {
		m := logPlaceholder.FindStringSubmatch(ph)
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= len(args) {
			return ph
		}
		return args[idx]
	})
}

// PresenceLabel renders the status line shown next to the bot account.
// The temperature suffix is added when a home climate sample is available.
func PresenceLabel(online int, cal world.Calendar, home *world.Climate) string {
	label := fmt.Sprintf("%d online | %s, %d. %s, Y%d",
		online, cal.Clock(), cal.Day(), cal.MonthAbbrev(), cal.DisplayYear())
	if home != nil {
		label += fmt.Sprintf(" | %d°C", int(math.Round(home.Temperature)))
	}
	return label
}

// Nickname renders "<base> (<weather>|<moon>)". The weather segment is left
// out when no home position is configured.
func Nickname(base string, moon world.MoonPhase, homeSet bool, home *world.Climate) string {
	if !homeSet {
		return fmt.Sprintf("%s (%s)", base, moon.Emoji())
	}
	return fmt.Sprintf("%s (%s|%s)", base, home.WeatherEmoji(), moon.Emoji())
}

// TimeReport renders the in-game date and time for the time command.
func TimeReport(cal world.Calendar) string {
	return fmt.Sprintf("🕐 In-game time: **%s** (Day %d, %s, Year %d) %s",
		cal.Clock(), cal.Day(), cal.MonthAbbrev(), cal.DisplayYear(), cal.Moon.Emoji())
}

// WeatherReport renders a climate sample taken at location.
func WeatherReport(c world.Climate, location string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **Weather at Home Base**: %s\n", c.WeatherEmoji(), c.Description())
	fmt.Fprintf(&sb, "🌡️ Temperature: %.1f°C | 💧 Rainfall: %.0f%% | 📍 %s\n",
		c.Temperature, c.Rainfall*100, location)
	fmt.Fprintf(&sb, "Humidity: %.0f%% • Fertility: %.0f%%", c.WorldgenRainfall*100, c.Fertility*100)
	return sb.String()
}

// PlayersReport renders the online roster.
func PlayersReport(players []string) string {
	if len(players) == 0 {
		return "No players are currently online."
	}
	return fmt.Sprintf("🎮 Online Players (%d): %s", len(players), strings.Join(players, ", "))
}
