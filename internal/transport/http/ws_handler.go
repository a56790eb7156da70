package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"study-companion/internal/app"
	"study-companion/internal/domain"
	"study-companion/internal/logger"
)

// DefaultMaxMessageBytes leaves room for a base64 encoded 20 MiB upload.
const DefaultMaxMessageBytes int64 = 28 << 20

type Options struct {
	MaxMessageBytes int64
	Logger          *zap.Logger
}

// WSHandler exposes the single study session to one websocket client at a time.
type WSHandler struct {
	session  *app.Session
	log      *zap.Logger
	maxBytes int64
	upgrader websocket.Upgrader
	active   atomic.Bool
}

func NewWSHandler(session *app.Session, opts Options) *WSHandler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &WSHandler{
		session:  session,
		log:      logger.OrNop(opts.Logger).Named("ws"),
		maxBytes: opts.MaxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type contextPayload struct {
	Semester string `json:"semester"`
	Branch   string `json:"branch"`
}

type uploadPayload struct {
	FileName string `json:"fileName"`
	Data     string `json:"data"`
}

type answerPayload struct {
	Index int `json:"index"`
}

type topicPayload struct {
	Topic string `json:"topic"`
}

type doubtPayload struct {
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type rejectedPayload struct {
	Action string `json:"action"`
}

var errBusyConnection = errors.New("another client is already connected")

// ServeWS upgrades the request and relays actions into the session and
// snapshots back out.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.active.CompareAndSwap(false, true) {
		http.Error(w, errBusyConnection.Error(), http.StatusConflict)
		return
	}
	defer h.active.Store(false)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxBytes)
	h.log.Info("client connected", zap.String("remote", r.RemoteAddr))

	ctx, cancelCalls := context.WithCancel(r.Context())
	defer cancelCalls()

	updates, cancel := h.session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var calls sync.WaitGroup

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				emit(outboundMessage[any]{Type: "snapshot", Payload: update})
			case <-closeSignals:
				return
			}
		}
	}()

	// Oracle-backed actions run off the read loop so restart stays responsive.
	async := func(action string, fn func() bool) {
		calls.Add(1)
		go func() {
			defer calls.Done()
			if !fn() {
				emit(rejected(action))
			}
		}()
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "context":
			var p contextPayload
			if !decode(inbound, &p, emit) {
				continue
			}
			if !h.session.SubmitContext(domain.ParseSemester(p.Semester), domain.ParseBranch(p.Branch)) {
				emit(rejected(inbound.Type))
			}
		case "upload":
			var p uploadPayload
			if !decode(inbound, &p, emit) {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.Data)
			if err != nil {
				emit(errorMessage("upload data must be base64"))
				continue
			}
			calls.Add(1)
			go func() {
				defer calls.Done()
				ok, err := h.session.Upload(ctx, p.FileName, bytes.NewReader(data))
				switch {
				case err != nil:
					emit(errorMessage(err.Error()))
				case !ok:
					emit(rejected("upload"))
				}
			}()
		case "startQuiz":
			async(inbound.Type, func() bool { return h.session.StartQuiz(ctx) })
		case "startIllumination":
			h.apply(inbound.Type, h.session.StartIllumination, emit)
		case "answer":
			var p answerPayload
			if !decode(inbound, &p, emit) {
				continue
			}
			h.apply(inbound.Type, func() bool { return h.session.Answer(p.Index) }, emit)
		case "advance":
			h.apply(inbound.Type, h.session.Advance, emit)
		case "selectTopic":
			var p topicPayload
			if !decode(inbound, &p, emit) {
				continue
			}
			async(inbound.Type, func() bool { return h.session.SelectTopic(ctx, p.Topic) })
		case "doubt":
			var p doubtPayload
			if !decode(inbound, &p, emit) {
				continue
			}
			async(inbound.Type, func() bool { return h.session.SubmitDoubt(ctx, p.Text) })
		case "returnToChoice":
			h.apply(inbound.Type, h.session.ReturnToChoice, emit)
		case "restart":
			h.session.Restart()
		default:
			emit(errorMessage("unsupported message type"))
		}
	}

	h.log.Info("client disconnected", zap.String("remote", r.RemoteAddr))
	cancelCalls()
	close(closeSignals)
	calls.Wait()
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) apply(action string, fn func() bool, emit func(outboundMessage[any])) {
	if !fn() {
		emit(rejected(action))
	}
}

func decode(in inboundMessage, v any, emit func(outboundMessage[any])) bool {
	if len(in.Payload) == 0 {
		emit(errorMessage("missing " + in.Type + " payload"))
		return false
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		emit(errorMessage("invalid " + in.Type + " payload"))
		return false
	}
	return true
}

func rejected(action string) outboundMessage[any] {
	return outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Action: action}}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// NewMux routes the websocket endpoint and a liveness probe.
func NewMux(ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}
