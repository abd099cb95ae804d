// Package eventstream publishes task lifecycle events to a socket.io server.
package eventstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the socket.io event every task event is emitted as.
const EventName = "task_event"

const connectTimeout = 15 * time.Second

// Payload is the body of a task event.
type Payload struct {
	Event       string `json:"event"`
	Session     string `json:"session"`
	Check       string `json:"check"`
	Partition   string `json:"partition"`
	Environ     string `json:"environ"`
	Run         int    `json:"run"`
	Stage       string `json:"stage"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (p Payload) fields() map[string]any {
	m := map[string]any{
		"event":     p.Event,
		"session":   p.Session,
		"check":     p.Check,
		"partition": p.Partition,
		"environ":   p.Environ,
		"run":       p.Run,
		"stage":     p.Stage,
	}
	if p.FailedStage != "" {
		m["failed_stage"] = p.FailedStage
	}
	if p.Error != "" {
		m["error"] = p.Error
	}
	return m
}

// EmitFunc sends one event.
type EmitFunc func(event string, data map[string]any)

// Publisher is an executor.TaskEventListener forwarding events to an
// EmitFunc.
type Publisher struct {
	mu      sync.Mutex
	session string
	emit    EmitFunc
	closeFn func()
}

var _ executor.TaskEventListener = (*Publisher)(nil)

// NewPublisher returns a publisher sending through emit.
func NewPublisher(emit EmitFunc) *Publisher {
	return &Publisher{emit: emit}
}

// SetSession tags subsequent events with a session id.
func (p *Publisher) SetSession(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = id
}

func (p *Publisher) publish(event string, t *executor.Task) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	k := t.TestCase().Key()
	payload := Payload{
		Event:       event,
		Session:     session,
		Check:       k.Check,
		Partition:   k.Partition,
		Environ:     k.Environ,
		Run:         t.Run(),
		Stage:       t.Stage().String(),
		FailedStage: t.FailedStage(),
	}
	if err := t.Err(); err != nil {
		payload.Error = err.Error()
	}
	p.emit(EventName, payload.fields())
}

func (p *Publisher) OnTaskSetup(t *executor.Task) { p.publish("setup", t) }
func (p *Publisher) OnTaskRun(t *executor.Task) { p.publish("run", t) }
func (p *Publisher) OnTaskSuccess(t *executor.Task) { p.publish("success", t) }
func (p *Publisher) OnTaskFailure(t *executor.Task) { p.publish("failure", t) }
func (p *Publisher) OnTaskExit(t *executor.Task) { p.publish("exit", t) }

// Close disconnects a publisher created by Dial.
func (p *Publisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

// Dial connects to the socket.io server at rawURL and returns a publisher
// emitting on namespace. It waits until the connection is established.
func Dial(ctx context.Context, rawURL, namespace string, insecureSkipVerify bool) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL, "namespace", namespace)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid event stream URL %q", rawURL)
	}
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	connected := make(chan error, 1)
	report := func(err error) {
		select {
		case connected <- err:
		default:
		}
	}
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("📡 Event stream connected.", "sid", io.Id())
		report(nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		report(err)
	})

	logger.Debug("Connecting event stream...")
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", context.Cause(ctx))
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	p := NewPublisher(func(event string, data map[string]any) {
		io.Emit(event, data)
	})
	p.closeFn = func() {
		logger.Debug("Disconnecting event stream.", "sid", io.Id())
		io.Disconnect()
	}
	return p, nil
}
