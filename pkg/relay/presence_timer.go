// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/relay/gamefmt"
	"github.com/aiku/gamerelay/pkg/world"
)

// intervalSchedule is a cron.Schedule whose period is recomputed after every
// run, so changes to the host's time acceleration take effect on the next
// tick.
type intervalSchedule struct {
	interval func() time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval())
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

type presenceTimer struct {
	c *cron.Cron
}

func newPresenceTimer(log zerolog.Logger, interval func() time.Duration, tick func()) *presenceTimer {
	logger := cronLogger{log: log.With().Str("component", "presence_timer").Logger()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(intervalSchedule{interval: interval}, cron.FuncJob(tick))
	c.Start()
	return &presenceTimer{c: c}
}

// Stop stops the timer and waits for a running tick, bounded by ctx.
func (t *presenceTimer) Stop(ctx context.Context) {
	waitDone(ctx, t.c.Stop().Done())
}

// StopAsync stops the timer without waiting for a running tick.
func (t *presenceTimer) StopAsync() {
	t.c.Stop()
}

// PresenceInterval derives the presence update period from the host's time
// acceleration: one update per in-game minute, but never more often than
// floor. clamped reports whether the floor was applied.
func PresenceInterval(speedOfTime float64, floor time.Duration) (interval time.Duration, clamped bool) {
	if speedOfTime <= 0 {
		return floor, true
	}
	interval = time.Duration(60 / speedOfTime * float64(time.Second))
	if interval < floor {
		return floor, true
	}
	return interval, false
}

// presenceInterval runs on the timer goroutine.
func (r *Relay) presenceInterval() time.Duration {
	floor := time.Duration(r.minInterval.Load())
	speed := r.host.Calendar().SpeedOfTime
	interval, clamped := PresenceInterval(speed, floor)
	if wasClamped := r.clamped.Swap(clamped); clamped && !wasClamped {
		r.log.Warn().
			Float64("speed_of_time", speed).
			Dur("min_interval", floor).
			Msg("In-game minutes pass faster than the minimum presence interval, clamping")
	}
	return interval
}

type presenceUpdate struct {
	label    string
	nickname string
}

// rosterChange is a join or leave the host may not have reflected in its
// roster yet. The zero value means no change.
type rosterChange struct {
	player string
	joined bool
}

// onlineCount counts the host roster, adjusted for a change the roster does
// not show yet. Hosts that update the roster before emitting the event are
// counted as is.
func onlineCount(players []string, change rosterChange) int {
	if change.player == "" {
		return len(players)
	}
	listed := slices.Contains(players, change.player)
	switch {
	case change.joined && !listed:
		return len(players) + 1
	case !change.joined && listed:
		return len(players) - 1
	}
	return len(players)
}

// observePresence samples the world, announces transitions and returns the
// remote status to publish. ok is false while disconnected. Must be called
// on the actor.
func (r *Relay) observePresence(change rosterChange) (upd presenceUpdate, ok bool) {
	if !r.connected {
		return presenceUpdate{}, false
	}
	cal := r.host.Calendar()
	online := onlineCount(r.host.OnlinePlayers(), change)

	announcements := r.presence.Observe(Observation{
		Month:  cal.Month(),
		Moon:   cal.Moon,
		Online: online,
	}, r.cfg.presenceMessages())
	for _, text := range announcements {
		r.log.Info().Str("text", text).Msg("Presence announcement")
		r.host.Broadcast(AllGroups, text)
		if b := r.bindings.general(); b.Resolved() {
			_ = r.enqueue(b.Channel.ID, text)
		}
	}

	var home *world.Climate
	if r.cfg.Home != nil {
		if c, found := r.host.ClimateAt(*r.cfg.Home); found {
			home = &c
		}
	}
	base := r.cfg.DefaultNickname
	if base == "" {
		base = r.self.Username
	}
	return presenceUpdate{
		label:    gamefmt.PresenceLabel(online, cal, home),
		nickname: gamefmt.Nickname(base, cal.Moon, r.cfg.Home != nil, home),
	}, true
}

// presenceTick runs on the timer goroutine and applies the update before
// returning, so a slow remote delays the next tick instead of piling up.
func (r *Relay) presenceTick() {
	var upd presenceUpdate
	var ok bool
	if err := r.call(r.ctx, func() { upd, ok = r.observePresence(rosterChange{}) }); err != nil || !ok {
		return
	}
	r.applyPresence(r.ctx, upd)
}

// refreshPresence recomputes presence after a roster change. The remote
// update is handed to the applier so the actor never waits on the network.
func (r *Relay) refreshPresence(change rosterChange) {
	upd, ok := r.observePresence(change)
	if !ok {
		return
	}
	for {
		select {
		case r.pendingPresence <- upd:
			return
		default:
			// Replace the stale pending update.
			select {
			case <-r.pendingPresence:
			default:
			}
		}
	}
}

func (r *Relay) runApplier() {
	defer close(r.applierDone)
	for {
		select {
		case upd := <-r.pendingPresence:
			r.safeRun("presence", func() { r.applyPresence(r.ctx, upd) })
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Relay) applyPresence(ctx context.Context, upd presenceUpdate) {
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := r.remote.SetStatus(ctx, upd.label); err != nil {
		r.log.Warn().Err(err).Msg("Failed to set remote status")
	}
	if upd.nickname == r.lastNickname {
		return
	}
	if err := r.remote.SetNickname(ctx, upd.nickname); err != nil {
		r.log.Warn().Err(err).Str("nickname", upd.nickname).Msg("Failed to set remote nickname")
		return
	}
	r.lastNickname = upd.nickname
}
