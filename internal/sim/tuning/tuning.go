package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds client timings and thresholds. Zero fields in a loaded file
// fall back to Defaults.
type Tuning struct {
	AutoPassDelayMs  int `yaml:"auto_pass_delay_ms"`
	SkipVoteAfterSec int `yaml:"skip_vote_after_sec"`
	ComboWindowMs    int `yaml:"combo_window_ms"`
	TimerPollMs      int `yaml:"timer_poll_ms"`
	VoteNoticeMs     int `yaml:"vote_notice_ms"`
	MaxPlayers       int `yaml:"max_players"`

	Hand Hand `yaml:"hand"`
	Bot  Bot  `yaml:"bot"`
}

type Hand struct {
	TopFraction float64 `yaml:"top_fraction"`
}

type Bot struct {
	ThinkMs int    `yaml:"think_ms"`
	Script  string `yaml:"script"`
}

func Defaults() Tuning {
	return Tuning{
		AutoPassDelayMs:  2000,
		SkipVoteAfterSec: 60,
		ComboWindowMs:    4000,
		TimerPollMs:      1000,
		VoteNoticeMs:     1000,
		MaxPlayers:       10,
		Hand:             Hand{TopFraction: 0.5},
		Bot:              Bot{ThinkMs: 600},
	}
}

func (t Tuning) AutoPassDelay() time.Duration { return ms(t.AutoPassDelayMs) }
func (t Tuning) SkipVoteAfter() time.Duration { return time.Duration(t.SkipVoteAfterSec) * time.Second }
func (t Tuning) ComboWindow() time.Duration   { return ms(t.ComboWindowMs) }
func (t Tuning) TimerPoll() time.Duration     { return ms(t.TimerPollMs) }
func (t Tuning) VoteNotice() time.Duration    { return ms(t.VoteNoticeMs) }
func (t Tuning) BotThink() time.Duration      { return ms(t.Bot.ThinkMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Load reads a tuning file. An empty path returns Defaults.
func Load(path string) (Tuning, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Defaults(), fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Fill(Defaults())
	if err := t.Validate(); err != nil {
		return Defaults(), fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Fill copies every zero field from d.
func (t *Tuning) Fill(d Tuning) {
	if t.AutoPassDelayMs == 0 {
		t.AutoPassDelayMs = d.AutoPassDelayMs
	}
	if t.SkipVoteAfterSec == 0 {
		t.SkipVoteAfterSec = d.SkipVoteAfterSec
	}
	if t.ComboWindowMs == 0 {
		t.ComboWindowMs = d.ComboWindowMs
	}
	if t.TimerPollMs == 0 {
		t.TimerPollMs = d.TimerPollMs
	}
	if t.VoteNoticeMs == 0 {
		t.VoteNoticeMs = d.VoteNoticeMs
	}
	if t.MaxPlayers == 0 {
		t.MaxPlayers = d.MaxPlayers
	}
	if t.Hand.TopFraction == 0 {
		t.Hand.TopFraction = d.Hand.TopFraction
	}
	if t.Bot.ThinkMs == 0 {
		t.Bot.ThinkMs = d.Bot.ThinkMs
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.AutoPassDelayMs < 0, t.SkipVoteAfterSec < 0, t.ComboWindowMs < 0, t.VoteNoticeMs < 0, t.Bot.ThinkMs < 0:
		return fmt.Errorf("negative duration")
	case t.TimerPollMs <= 0:
		return fmt.Errorf("timer_poll_ms must be positive")
	case t.MaxPlayers < 1:
		return fmt.Errorf("max_players must be at least 1")
	case t.Hand.TopFraction <= 0 || t.Hand.TopFraction > 1:
		return fmt.Errorf("hand.top_fraction %v out of (0,1]", t.Hand.TopFraction)
	}
	return nil
}
