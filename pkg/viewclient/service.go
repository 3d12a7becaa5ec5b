package viewclient

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/NotCoffee418/mic_monitor/pkg/liveview"
)

var ErrGaveUp = errors.New("viewclient: max retries reached")

// Tuned down by tests.
var (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second
	readTimeout    = 10 * time.Second
	pingInterval   = 30 * time.Second
)

// StartListener keeps a live view connection to host open and calls handle
// for every frame. It returns nil once ctx is done, or ErrGaveUp.
func StartListener(ctx context.Context, host string, handle func(frame *liveview.Frame)) error {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	retryCount := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Exponential backoff
		retryDelay := min(time.Duration(1<<retryCount)*baseRetryDelay, maxRetryDelay)
		if retryCount > 0 {
			log.Info().
				Dur("delay", retryDelay).
				Int("attempt", retryCount+1).
				Int("max", maxRetries).
				Msg("Retrying connection")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		log.Info().Str("url", u.String()).Msg("Connecting")
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			log.Warn().Err(err).Msg("Connection failed")
			retryCount++
			if retryCount >= maxRetries {
				log.Error().Int("max", maxRetries).Msg("Max retries reached, giving up")
				return ErrGaveUp
			}
			continue
		}

		log.Info().Msg("Connected, receiving frames")
		retryCount = 0

		broken := handleConnection(ctx, c, handle)
		c.Close()
		if !broken {
			return nil
		}
		log.Warn().Msg("Connection lost, will retry")
	}
}

// handleConnection reports true when the connection broke and false when ctx
// ended it.
func handleConnection(ctx context.Context, c *websocket.Conn, handle func(frame *liveview.Frame)) bool {
	done := make(chan struct{})

	// The monitor pushes a frame every refresh tick; pongs also count.
	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Msg("WebSocket error")
				} else {
					log.Debug().Err(err).Msg("Connection closed")
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				log.Debug().Int("type", messageType).Msg("Ignoring non-text message")
				continue
			}
			if frame := liveview.FrameFromJsonBytes(message); frame != nil {
				handle(frame)
			} else {
				log.Warn().Int("bytes", len(message)).Msg("Failed to parse frame")
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if err := c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Msg("Failed to send ping")
				return true
			}
		case <-ctx.Done():
			err := c.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			if err != nil {
				log.Debug().Err(err).Msg("Error sending close message")
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
