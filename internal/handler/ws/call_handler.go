package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meetsense-backend/internal/alert"
	"meetsense-backend/internal/detection"
	"meetsense-backend/internal/domain"
	"meetsense-backend/internal/media"
	redisrepo "meetsense-backend/internal/repository/redis"
	"meetsense-backend/internal/session"
	"meetsense-backend/internal/summary"
	"meetsense-backend/pkg/logger"
	"meetsense-backend/pkg/metrics"
)

const (
	pingInterval = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Inbound message types
const (
	MsgMediaReady       = "media_ready"
	MsgAudioLevel       = "audio_level"
	MsgToggleMic        = "toggle_mic"
	MsgToggleVideo      = "toggle_video"
	MsgShareScreen      = "share_screen"
	MsgScreenShareEnded = "screen_share_ended"
	MsgRemoteJoin       = "remote_join"
	MsgDismissAlert     = "dismiss_alert"
	MsgEndCall          = "end_call"
)

// Outbound message types
const (
	MsgAlert         = "alert"
	MsgAlertProgress = "alert_progress"
	MsgNotice        = "notice"
	MsgDuration      = "duration"
	MsgState         = "state"
	MsgSummarySaved  = "summary_saved"
	MsgSummaryError  = "summary_error"
)

// ClientMessage is an inbound frame from the browser client
type ClientMessage struct {
	Type string `json:"type"`

	// audio_level
	Level float64 `json:"level,omitempty"`

	// media_ready: device classes the client could not acquire
	AudioDenied  bool `json:"audio_denied,omitempty"`
	VideoDenied  bool `json:"video_denied,omitempty"`
	ScreenDenied bool `json:"screen_denied,omitempty"`
}

// ServerMessage is an outbound frame to the browser client
type ServerMessage struct {
	Type string `json:"type"`

	// alert / notice
	Kind    string `json:"kind,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Visible bool   `json:"visible,omitempty"`

	// alert_progress
	Progress float64 `json:"progress,omitempty"`

	// duration
	Seconds int `json:"seconds,omitempty"`

	// state
	Status          string   `json:"status,omitempty"`
	MicEnabled      bool     `json:"mic_enabled,omitempty"`
	VideoEnabled    bool     `json:"video_enabled,omitempty"`
	IsScreenSharing bool     `json:"is_screen_sharing,omitempty"`
	Participants    []string `json:"participants,omitempty"`

	// summary_saved
	Meeting *domain.MeetingRecord `json:"meeting,omitempty"`
}

var callUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Require an explicit origin
			return false
		}
		return GetAllowedOrigins()[origin]
	},
}

// GetAllowedOrigins returns the origins allowed to open call connections
func GetAllowedOrigins() map[string]bool {
	allowed := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
	}
	return allowed
}

// CallHub manages live call connections. Each connection hosts its own call
// session; the hub tracks them for shutdown and keeps the Redis live registry
// and metrics in step.
type CallHub struct {
	clients map[*CallClient]bool
	mu      sync.RWMutex

	register   chan *CallClient
	unregister chan *CallClient

	callRepo *redisrepo.CallRepository
	bridge   clientBridge
	metrics  *metrics.Metrics
	cfg      detection.Config

	maxConnections int
	semaphore      chan struct{}
}

// clientBridge builds a per-client persistence bridge so save notices reach
// the right connection.
type clientBridge func(notifier session.Notifier) *summary.Bridge

// CallClient is one live call connection. It owns the session, the detection
// engine, and the alert presenter for that call, and doubles as the session's
// notice sink and the engine's amplitude source.
type CallClient struct {
	hub  *CallHub
	conn *websocket.Conn
	send chan []byte

	callID    uuid.UUID
	sess      *session.Session
	engine    *detection.Engine
	presenter *alert.Presenter
	bridge    *summary.Bridge

	levels chan float64

	ctx    context.Context
	cancel context.CancelFunc

	// detectCancel stops the mic-detection loop of the current media generation
	detectMu     sync.Mutex
	detectCancel context.CancelFunc

	endOnce sync.Once
}

// NewCallHub creates a call hub. callRepo and m may be nil; the hub then runs
// without the live registry or metrics.
func NewCallHub(callRepo *redisrepo.CallRepository, bridge clientBridge, m *metrics.Metrics, cfg detection.Config) *CallHub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_CALL_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	hub := &CallHub{
		clients:        make(map[*CallClient]bool),
		register:       make(chan *CallClient),
		unregister:     make(chan *CallClient),
		callRepo:       callRepo,
		bridge:         bridge,
		metrics:        m,
		cfg:            cfg,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}

	go hub.run()

	return hub
}

// run handles hub registration bookkeeping
func (h *CallHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.WSConnectionsActive.Inc()
				h.metrics.CallsActive.Inc()
			}
			if h.callRepo != nil {
				if err := h.callRepo.SetCallActive(context.Background(), client.callID); err != nil {
					logger.Warn("failed to register live call",
						zap.String("call_id", client.callID.String()),
						zap.Error(err))
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.WSConnectionsActive.Dec()
				h.metrics.CallsActive.Dec()
			}
			if h.callRepo != nil {
				if err := h.callRepo.SetCallEnded(context.Background(), client.callID); err != nil {
					logger.Warn("failed to unregister live call",
						zap.String("call_id", client.callID.String()),
						zap.Error(err))
				}
			}
		}
	}
}

// ServeWS upgrades a request into a live call connection
func (h *CallHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() {
			<-h.semaphore
		}()
	default:
		logger.Warn("call connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	conn, err := callUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &CallClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		levels: make(chan float64, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	provider := &media.DeviceProvider{}
	client.sess = session.New(provider,
		session.WithNotifier(client),
		session.WithLogger(logger.Log),
	)
	client.callID = client.sess.ID()

	client.presenter = alert.New(client.sess,
		alert.WithProgress(func(percent float64) {
			client.sendMessage(ServerMessage{Type: MsgAlertProgress, Progress: percent})
		}),
	)
	client.engine = detection.New(client.sess, h.cfg,
		detection.WithLogger(logger.Log),
	)
	if h.bridge != nil {
		client.bridge = h.bridge(client)
	}

	client.sess.OnAlert(func(a domain.Alert) {
		client.presenter.Present(a)
		client.sendMessage(ServerMessage{
			Type:    MsgAlert,
			Kind:    string(a.Kind),
			Message: a.Message,
			Visible: a.Visible,
		})
	})
	client.sess.OnEvent(func(e domain.DetectionEvent) {
		if h.metrics != nil {
			h.metrics.RecordDetection(string(e.Kind))
		}
	})
	client.sess.OnMediaReplaced(client.restartMicDetection)

	h.register <- client

	go client.sess.RunDurationClock(ctx)
	go client.engine.RunCameraDetection(ctx)
	go client.pushLoop()
	go client.writePump()
	go client.readPump()
}

// Shutdown ends every live call, persisting each session
func (h *CallHub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*CallClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.endCall(ctx)
		client.conn.Close()
	}
}

// Notify implements session.Notifier by forwarding notices to the client
func (c *CallClient) Notify(level session.NoticeLevel, message string) {
	c.sendMessage(ServerMessage{
		Type:    MsgNotice,
		Level:   string(level),
		Message: message,
	})
}

// Levels implements detection.SampleSource
func (c *CallClient) Levels() <-chan float64 {
	return c.levels
}

// sendMessage queues an outbound frame, dropping it if the client is slow
func (c *CallClient) sendMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
		if c.hub.metrics != nil {
			c.hub.metrics.WSMessagesTotal.WithLabelValues(msg.Type, "out").Inc()
		}
	default:
	}
}

// restartMicDetection scopes a fresh mic-detection loop to the new media
// generation, cancelling the loop bound to the previous handle.
func (c *CallClient) restartMicDetection(gen int, stream *media.Stream) {
	c.detectMu.Lock()
	if c.detectCancel != nil {
		c.detectCancel()
		c.detectCancel = nil
	}
	if stream == nil {
		c.detectMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.detectCancel = cancel
	c.detectMu.Unlock()

	go c.engine.RunMicDetection(ctx, gen, c)
}

// pushLoop streams duration and state snapshots at the clock cadence
func (c *CallClient) pushLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.sess.Done():
			return
		case <-ticker.C:
			c.sendMessage(ServerMessage{Type: MsgDuration, Seconds: c.sess.ElapsedSeconds()})
			c.sendMessage(ServerMessage{
				Type:            MsgState,
				Status:          string(c.sess.Status()),
				MicEnabled:      c.sess.MicEnabled(),
				VideoEnabled:    c.sess.VideoEnabled(),
				IsScreenSharing: c.sess.IsScreenSharing(),
				Participants:    c.sess.Participants(),
			})
		}
	}
}

// handleMessage dispatches one inbound frame
func (c *CallClient) handleMessage(msg *ClientMessage) {
	if c.hub.metrics != nil {
		c.hub.metrics.WSMessagesTotal.WithLabelValues(msg.Type, "in").Inc()
	}

	switch msg.Type {
	case MsgMediaReady:
		c.attachMedia(msg)

	case MsgAudioLevel:
		select {
		case c.levels <- msg.Level:
		default:
			// Drop the sample rather than stall the read loop
		}

	case MsgToggleMic:
		c.sess.ToggleMic()

	case MsgToggleVideo:
		c.sess.ToggleVideo()

	case MsgShareScreen:
		c.sess.ShareScreen(c.ctx)

	case MsgScreenShareEnded:
		// The client's OS-level control stopped the capture
		if c.sess.IsScreenSharing() {
			if lm := c.sess.LocalMedia(); lm != nil {
				if video := lm.VideoTracks(); len(video) > 0 {
					video[0].End()
				}
			}
		}

	case MsgRemoteJoin:
		remote := media.NewStream(media.SourceRemote,
			media.NewTrack(media.TrackKindAudio, "remote-audio"),
			media.NewTrack(media.TrackKindVideo, "remote-video"),
		)
		c.sess.AddRemoteMedia(remote)

	case MsgDismissAlert:
		c.presenter.Dismiss()

	case MsgEndCall:
		c.endCall(c.ctx)

	default:
		logger.Debug("unknown call message",
			zap.String("call_id", c.callID.String()),
			zap.String("type", msg.Type))
	}
}

// attachMedia performs the tiered local-media acquisition with the device
// availability the client reported.
func (c *CallClient) attachMedia(msg *ClientMessage) {
	provider := &media.DeviceProvider{
		AudioDenied:  msg.AudioDenied,
		VideoDenied:  msg.VideoDenied,
		ScreenDenied: msg.ScreenDenied,
	}

	result, err := media.AcquireLocalMedia(c.ctx, provider)
	if err != nil {
		logger.Warn("media acquisition failed",
			zap.String("call_id", c.callID.String()),
			zap.Error(err))
		c.Notify(session.NoticeError, "Could not access camera or microphone")
		return
	}

	c.sess.SetLocalMedia(result.Stream)
	if result.AudioOnly {
		c.Notify(session.NoticeWarning, "Camera access denied. Using audio only.")
	}
}

// endCall tears the session down and persists the meeting summary exactly once
func (c *CallClient) endCall(ctx context.Context) {
	c.endOnce.Do(func() {
		endedAt := time.Now()
		record := summary.BuildRecord(c.sess, endedAt)
		c.sess.Close()

		if c.bridge != nil {
			saved, err := c.bridge.SaveRecord(ctx, record)
			if err != nil {
				c.sendMessage(ServerMessage{Type: MsgSummaryError, Message: err.Error()})
			} else {
				if c.hub.metrics != nil {
					c.hub.metrics.MeetingsSavedTotal.Inc()
				}
				c.sendMessage(ServerMessage{Type: MsgSummarySaved, Meeting: saved})
			}
		}

		c.cancel()
	})
}

// readPump reads frames from the WebSocket until the connection drops
func (c *CallClient) readPump() {
	defer func() {
		c.endCall(context.Background())
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("call connection closed",
					zap.String("call_id", c.callID.String()),
					zap.Error(err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid call message",
				zap.String("call_id", c.callID.String()),
				zap.Error(err))
			continue
		}

		c.handleMessage(&msg)
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *CallClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
