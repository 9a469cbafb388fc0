package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	queueCapacity = 1000
	sendTimeout   = 10 * time.Second

	infoPrefix  = "ℹ️ INFO: "
	errorPrefix = "❌ ERROR: "
)

type messageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) error
}

// Notifier delivers audit events to the admin's private chat without ever
// blocking the pipeline that emits them. Events are mirrored to the
// structured log, delivery failures only ever hit the log.
type Notifier struct {
	sender  messageSender
	adminID int64
	queue   chan event

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

type event struct {
	id      string
	text    string
	isError bool
	html    bool
}

func NewNotifier(sender messageSender, adminID int64) *Notifier {
	return &Notifier{
		sender:  sender,
		adminID: adminID,
		queue:   make(chan event, queueCapacity),
	}
}

func (n *Notifier) Start(ctx context.Context) error {
	n.runMutex.Lock()
	defer n.runMutex.Unlock()
	if n.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n.runCancel = cancel

	n.workersWg.Add(1)
	go func() {
		defer n.workersWg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-n.queue:
				n.deliver(runCtx, ev)
			}
		}
	}()

	n.started = true
	return nil
}

func (n *Notifier) Stop(ctx context.Context) error {
	n.runMutex.Lock()
	if !n.started {
		n.runMutex.Unlock()
		return nil
	}
	n.started = false
	cancel := n.runCancel
	n.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Info emits an informational audit line.
func (n *Notifier) Info(format string, args ...any) {
	n.enqueue(event{id: uuid.New(), text: fmt.Sprintf(format, args...)})
}

// Error emits an error-tagged audit line.
func (n *Notifier) Error(format string, args ...any) {
	n.enqueue(event{id: uuid.New(), text: fmt.Sprintf(format, args...), isError: true})
}

// Report emits a pre-formatted HTML report without a severity prefix.
func (n *Notifier) Report(text string) {
	n.enqueue(event{id: uuid.New(), text: text, html: true})
}

func (n *Notifier) enqueue(ev event) {
	entry := log.WithFields(log.Fields{"context": "audit", "event_id": ev.id})
	if ev.isError {
		entry.Error(ev.text)
	} else {
		entry.Info(ev.text)
	}

	select {
	case n.queue <- ev:
	default:
		entry.Warn("audit queue full, dropping event")
	}
}

func (n *Notifier) deliver(ctx context.Context, ev event) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var err error
	if ev.html {
		err = n.sender.SendHTML(sendCtx, n.adminID, ev.text, nil)
	} else {
		prefix := infoPrefix
		if ev.isError {
			prefix = errorPrefix
		}
		err = n.sender.SendMessage(sendCtx, n.adminID, prefix+ev.text)
	}
	if err != nil {
		log.WithFields(log.Fields{"context": "audit", "event_id": ev.id}).
			WithError(err).Error("failed to deliver audit event")
	}
}
