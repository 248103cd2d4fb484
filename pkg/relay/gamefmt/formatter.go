// Copyright 2024-2026 Aiku AI

// Package gamefmt renders game-side events into chat text and back.
//
// Every template is a text/template string executed against [Params]; a
// template that is empty or renders to only whitespace produces no message.
package gamefmt

import (
	"fmt"
	"strings"
	"text/template"
)

// Params is the data passed to every message template. Fields that do not
// apply to an event are left empty.
type Params struct {
	Player  string
	Message string
	Victim  string
	Killer  string
	Sender  string
	Content string
}

// Templates holds the raw template text for each relayed event kind.
type Templates struct {
	Chat        string `yaml:"chat"`
	Join        string `yaml:"join"`
	Leave       string `yaml:"leave"`
	ServerStart string `yaml:"server_start"`
	ServerStop  string `yaml:"server_stop"`
	RemoteChat  string `yaml:"remote_chat"`
}

// DefaultRemoteChat is used when no remote_chat template is configured.
const DefaultRemoteChat = "[{{.Sender}}]: {{.Content}}"

// Formatter renders events with compiled templates. It is immutable after
// construction and safe for concurrent use.
type Formatter struct {
	chat        *template.Template
	join        *template.Template
	leave       *template.Template
	serverStart *template.Template
	serverStop  *template.Template
	remoteChat  *template.Template
	deaths      [numCauses]*template.Template
}

// New compiles the event templates and the per-cause death templates.
// Death causes missing from deaths fall back to the unknown template.
func New(tpl Templates, deaths map[string]string) (*Formatter, error) {
	f := &Formatter{}
	if tpl.RemoteChat == "" {
		tpl.RemoteChat = DefaultRemoteChat
	}
	for _, item := range []struct {
		name string
		text string
		dest **template.Template
	}{
		{"chat", tpl.Chat, &f.chat},
		{"join", tpl.Join, &f.join},
		{"leave", tpl.Leave, &f.leave},
		{"server_start", tpl.ServerStart, &f.serverStart},
		{"server_stop", tpl.ServerStop, &f.serverStop},
		{"remote_chat", tpl.RemoteChat, &f.remoteChat},
	} {
		parsed, err := parse(item.name, item.text)
		if err != nil {
			return nil, err
		}
		*item.dest = parsed
	}
	for key := range deaths {
		if _, ok := ParseDeathCause(key); !ok {
			return nil, fmt.Errorf("unknown death cause %q", key)
		}
	}
	for cause := DeathCause(0); cause < numCauses; cause++ {
		parsed, err := parse("death_"+cause.String(), deaths[cause.String()])
		if err != nil {
			return nil, err
		}
		f.deaths[cause] = parsed
	}
	return f, nil
}

func parse(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	tpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tpl, nil
}

func render(tpl *template.Template, params Params) (string, error) {
	if tpl == nil {
		return "", nil
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, params); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Chat renders a local chat line. The message is expected to have its
// sender prefix stripped already.
func (f *Formatter) Chat(player, message string) (string, error) {
	return render(f.chat, Params{Player: player, Message: message})
}

func (f *Formatter) Join(player string) (string, error) {
	return render(f.join, Params{Player: player})
}

func (f *Formatter) Leave(player string) (string, error) {
	return render(f.leave, Params{Player: player})
}

func (f *Formatter) ServerStart() (string, error) {
	return render(f.serverStart, Params{})
}

func (f *Formatter) ServerStop() (string, error) {
	return render(f.serverStop, Params{})
}

// RemoteChat renders a remote message for broadcast into the game.
func (f *Formatter) RemoteChat(sender, content string) (string, error) {
	return render(f.remoteChat, Params{Sender: sender, Content: content})
}
