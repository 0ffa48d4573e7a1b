package stt

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// DefaultRTURL is the real-time endpoint used when no override is given.
const DefaultRTURL = "wss://eu2.rt.speechmatics.com/v2"

const closeWriteTimeout = 2 * time.Second

// Client owns one recognition connection. One goroutine may write (Start,
// SendAudio, EndOfStream, CloseWrite) while another reads (ReadMessage).
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger
	seq    uint32
}

// BuildURL appends the session token to the real-time URL. A blank base
// falls back to DefaultRTURL.
func BuildURL(base, token string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultRTURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "jwt=" + url.QueryEscape(token)
}

// Dial opens a recognition connection authorized by token.
func Dial(ctx context.Context, baseURL, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, BuildURL(baseURL, token), nil)
	if err != nil {
		if resp != nil {
			err = errors.Wrapf(err, "handshake status %s", resp.Status)
		}
		return nil, types.E(types.KindTransport, "connect to recognition service", err)
	}
	logger.Info("connected to recognition service", "url", redact(baseURL))
	return &Client{conn: conn, logger: logger}, nil
}

func redact(base string) string {
	if strings.TrimSpace(base) == "" {
		return DefaultRTURL
	}
	return base
}

// Start sends the StartRecognition message. No audio may precede it.
func (c *Client) Start(cfg TranscriptionConfig, sampleRate uint32) error {
	data, err := EncodeStartRecognition(cfg, sampleRate)
	if err != nil {
		return err
	}
	c.logger.Debug("sending start message", "payload", string(data))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return types.E(types.KindTransport, "send start message", err)
	}
	return nil
}

// SendAudio writes one binary PCM frame and returns the sequence number it
// was assigned. Numbering starts at 0 and advances once per frame written.
func (c *Client) SendAudio(pcm []byte) (uint32, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return c.seq, types.E(types.KindTransport, "send audio", err)
	}
	seq := c.seq
	c.seq++
	return seq, nil
}

// Sequence returns the number of audio frames written so far.
func (c *Client) Sequence() uint32 {
	return c.seq
}

// EndOfStream tells the service no more audio follows.
func (c *Client) EndOfStream() error {
	data, err := EncodeEndOfStream(c.seq)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return types.E(types.KindTransport, "send end message", err)
	}
	return nil
}

// ReadMessage blocks for the next decodable message. Binary frames are
// skipped. A normal close from the peer is reported as io.EOF; an
// undecodable text frame is returned as a protocol error so the caller can
// log it and keep reading.
func (c *Client) ReadMessage() (*Message, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, types.E(types.KindTransport, "read message", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "payload %s", truncate(data, 128))
		}
		return msg, nil
	}
}

// CloseWrite sends a close frame. Reads continue until the peer answers.
func (c *Client) CloseWrite() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of stream")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
		return types.E(types.KindTransport, "send close frame", err)
	}
	return nil
}

// Close tears the connection down and unblocks a pending ReadMessage.
func (c *Client) Close() error {
	return c.conn.Close()
}
