// Package typewriter は文字列を1文字ずつ打ち込み、消していくタイプライター表示の状態機械を提供する。
package typewriter

import (
	"context"
	"time"
)

// 既定のタイミング。
const (
	DefaultTypingSpeed   = 100 * time.Millisecond
	DefaultDeletingSpeed = 50 * time.Millisecond
	DefaultPauseTime     = 2 * time.Second
)

// Phase はタイプライターの動作段階を表す。
type Phase string

const (
	PhaseTyping   Phase = "typing"
	PhasePaused   Phase = "paused"
	PhaseDeleting Phase = "deleting"
)

// Config はタイプライターの設定。
type Config struct {
	Texts         []string
	TypingSpeed   time.Duration
	DeletingSpeed time.Duration
	PauseTime     time.Duration
	Loop          bool
}

// DefaultConfig は既定のタイミングでループするConfigを返す。
func DefaultConfig(texts []string) Config {
	return Config{
		Texts:         texts,
		TypingSpeed:   DefaultTypingSpeed,
		DeletingSpeed: DefaultDeletingSpeed,
		PauseTime:     DefaultPauseTime,
		Loop:          true,
	}
}

// Frame は表示の1回分の変化を表す。Delayは次のフレームまでの待ち時間。
type Frame struct {
	Text  string
	Index int // Texts内の位置
	Phase Phase
	Delay time.Duration
}

// Machine はタイプライターの状態機械。並行利用は想定しない。
//
// 状態遷移: typing → paused → deleting → (次の文字列) → typing。
// Loopがfalseの場合、最初の文字列を消し終えた時点で停止する。
type Machine struct {
	cfg      Config
	texts    [][]rune
	index    int
	shown    int
	deleting bool
	done     bool
}

// New はMachineを生成する。0以下のタイミングは既定値で補う。
func New(cfg Config) *Machine {
	if cfg.TypingSpeed <= 0 {
		cfg.TypingSpeed = DefaultTypingSpeed
	}
	if cfg.DeletingSpeed <= 0 {
		cfg.DeletingSpeed = DefaultDeletingSpeed
	}
	if cfg.PauseTime <= 0 {
		cfg.PauseTime = DefaultPauseTime
	}
	texts := make([][]rune, len(cfg.Texts))
	for i, t := range cfg.Texts {
		texts[i] = []rune(t)
	}
	return &Machine{cfg: cfg, texts: texts, done: len(texts) == 0}
}

// Done は停止済みかどうかを返す。
func (m *Machine) Done() bool { return m.done }

// Next は次のフレームを返す。停止済みの場合はfalseを返す。
func (m *Machine) Next() (Frame, bool) {
	for !m.done {
		current := m.texts[m.index]

		if !m.deleting {
			if m.shown < len(current) {
				m.shown++
				if m.shown == len(current) {
					m.deleting = true
					return m.frame(PhasePaused, m.cfg.PauseTime+m.cfg.DeletingSpeed), true
				}
				return m.frame(PhaseTyping, m.cfg.TypingSpeed), true
			}
			// 空文字列は表示を変えずに削除段階へ進む
			m.deleting = true
			continue
		}

		if m.shown > 0 {
			m.shown--
			delay := m.cfg.DeletingSpeed
			if m.shown == 0 {
				delay = m.cfg.TypingSpeed
			}
			return m.frame(PhaseDeleting, delay), true
		}

		// 消し終えた
		if !m.cfg.Loop {
			m.done = true
			break
		}
		m.index = (m.index + 1) % len(m.texts)
		m.deleting = false
		if m.allEmpty() {
			m.done = true
		}
	}
	return Frame{}, false
}

func (m *Machine) frame(phase Phase, delay time.Duration) Frame {
	return Frame{
		Text:  string(m.texts[m.index][:m.shown]),
		Index: m.index,
		Phase: phase,
		Delay: delay,
	}
}

func (m *Machine) allEmpty() bool {
	for _, t := range m.texts {
		if len(t) > 0 {
			return false
		}
	}
	return true
}

// Play はフレームを順にsinkへ渡す。各フレームは直前のフレームのDelay経過後に渡される。
// ctxのキャンセル、sinkのエラー、Machineの停止のいずれかで終了する。
func Play(ctx context.Context, m *Machine, sink func(Frame) error) error {
	var delay time.Duration
	for {
		f, ok := m.Next()
		if !ok {
			return nil
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink(f); err != nil {
			return err
		}
		delay = f.Delay
	}
}
