// Package session はセッションの状態変化イベントと、その購読者側の状態機械を提供する。
package session

import (
	"log/slog"
	"sync"
	"time"
)

// EventType はセッションイベントの種別を表す。
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventExpired   EventType = "expired"
)

// Event はあるユーザーのセッション状態の変化を表す。
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Publisher はセッションイベントの発行先。
type Publisher interface {
	Publish(e Event)
}

// EventCounter はイベント発行数の計測先。
type EventCounter interface {
	RecordAuthEvent(eventType string)
}

// Broker はユーザー単位のインプロセスpub-sub。
// 受信が追いつかない購読者へのイベントは破棄し、発行側をブロックしない。
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[chan Event]struct{}
	buffer  int
	logger  *slog.Logger
	counter EventCounter
}

// NewBroker はBrokerを生成する。bufferは購読者ごとのチャネル容量。counterはnilでもよい。
func NewBroker(buffer int, logger *slog.Logger, counter EventCounter) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:    make(map[string]map[chan Event]struct{}),
		buffer:  buffer,
		logger:  logger,
		counter: counter,
	}
}

// Subscribe は指定ユーザーのイベントを購読する。
// 返されるcancelを呼ぶと購読を解除しチャネルを閉じる。複数回呼んでもよい。
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish はイベントを対象ユーザーの全購読者に配信する。
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if b.counter != nil {
		b.counter.RecordAuthEvent(string(e.Type))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.UserID] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("セッションイベントを破棄しました",
				slog.String("user_id", e.UserID),
				slog.String("type", string(e.Type)),
			)
		}
	}
}

// subscriberCount は指定ユーザーの購読者数を返す。
func (b *Broker) subscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// compile-time interface check
var _ Publisher = (*Broker)(nil)
