package alert

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/eventbus"
	"github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Config enables forwarding of notable events to a Telegram chat so the
// operator hears about pruned endpoints without tailing logs.
type Config struct {
	Enabled bool
	Token   string
	ChatID  int64
}

type Notifier struct {
	cfg  Config
	bot  *tele.Bot
	bus  eventbus.Bus
	log  logx.Logger
	stop func()
	done chan struct{}
}

// New builds the notifier. When disabled or misconfigured it returns a
// notifier whose Start is a no-op, so callers never branch.
func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{cfg: cfg, bus: bus, log: log, done: make(chan struct{})}
	if !cfg.Enabled || cfg.Token == "" || cfg.ChatID == 0 {
		close(n.done)
		return n, nil
	}

	// Send-only: no poller, the bot never consumes updates.
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("alert: create bot: %w", err)
	}
	n.bot = bot
	return n, nil
}

// Start begins forwarding events. It returns immediately.
func (n *Notifier) Start(ctx context.Context) {
	if n.bot == nil {
		return
	}
	ch, unsub := n.bus.Subscribe(32)
	n.stop = unsub
	go n.loop(ctx, ch)
}

func (n *Notifier) Stop() {
	if n.stop != nil {
		n.stop()
	}
	<-n.done
}

func (n *Notifier) loop(ctx context.Context, ch <-chan eventbus.Event) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, okc := <-ch:
			if !okc {
				return
			}
			if msg := render(ev); msg != "" {
				n.send(msg)
			}
		}
	}
}

func render(ev eventbus.Event) string {
	de, _ := ev.Data.(dispatch.DispatchEvent)
	switch ev.Type {
	case eventbus.TypeDispatchPruned:
		return fmt.Sprintf("🧹 pruned gone endpoint %s", de.RecordID)
	case eventbus.TypeSubscriptionRemoved:
		return fmt.Sprintf("➖ recipient %s unsubscribed", de.RecordID)
	default:
		return ""
	}
}

func (n *Notifier) send(text string) {
	if _, err := n.bot.Send(tele.ChatID(n.cfg.ChatID), text); err != nil {
		n.log.Warn("alert send failed", logx.Err(err))
	}
}
