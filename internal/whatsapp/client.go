// Package whatsapp maintains a linked WhatsApp device session used to push
// fine-tune record summaries to a single recipient.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
)

// ErrNotConnected is returned when sending without a live session
var ErrNotConnected = errors.New("whatsapp: client not connected")

// Backoff controls automatic reconnection
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultBackoff is used by New
var DefaultBackoff = Backoff{
	MaxRetries:      10,
	InitialInterval: 5 * time.Second,
	MaxInterval:     5 * time.Minute,
	Multiplier:      1.5,
}

// Next returns the interval following current, capped at MaxInterval
func (b Backoff) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * b.Multiplier)
	if next > b.MaxInterval {
		next = b.MaxInterval
	}
	return next
}

// Client wraps a whatsmeow client with session pairing and reconnection
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	log       *logger.Logger
	qrOut     io.Writer
	backoff   Backoff

	mu              sync.RWMutex
	connected       bool
	cancelReconnect context.CancelFunc
}

// New opens the session store and prepares an unconnected client
func New(ctx context.Context, cfg config.WhatsAppConfig, log *logger.Logger) (*Client, error) {
	container, err := sqlstore.New(ctx, cfg.DBDriver, cfg.DBDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}

	deviceName := cfg.DeviceName
	if deviceName == "" {
		deviceName = "finetune-relay"
	}
	// Name shown under Linked Devices on the phone
	store.SetOSInfo(deviceName, [3]uint32{0, 1, 0})
	device.Platform = deviceName

	c := &Client{
		wa:        whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true)),
		container: container,
		log:       log.Component("whatsapp"),
		qrOut:     os.Stdout,
		backoff:   DefaultBackoff,
	}
	c.wa.AddEventHandler(c.onEvent)

	return c, nil
}

func (c *Client) onEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		c.connected = true
		if c.cancelReconnect != nil {
			c.cancelReconnect()
			c.cancelReconnect = nil
		}
		c.mu.Unlock()
		c.log.Info("WhatsApp session connected")

	case *events.Disconnected:
		c.mu.Lock()
		c.connected = false
		idle := c.cancelReconnect == nil
		c.mu.Unlock()

		c.log.Warn("WhatsApp session disconnected")
		if idle {
			go c.reconnect()
		}

	case *events.StreamError:
		c.log.Errorf("WhatsApp stream error: %v", v)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.connected || c.cancelReconnect != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelReconnect = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancelReconnect = nil
		c.mu.Unlock()
	}()

	interval := c.backoff.InitialInterval
	for attempt := 1; attempt <= c.backoff.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if c.wa.IsConnected() {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			return
		}

		c.log.Infof("WhatsApp reconnection attempt %d/%d", attempt, c.backoff.MaxRetries)
		if err := c.wa.Connect(); err != nil {
			c.log.Errorf("WhatsApp reconnection attempt %d failed: %v", attempt, err)
			interval = c.backoff.Next(interval)
			continue
		}
		return
	}

	c.log.Error("WhatsApp reconnection gave up", nil)
}

// Connect resumes a stored session, or starts QR pairing in the background
// when the device has never been linked.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		c.log.Info("No WhatsApp session found, starting QR pairing")
		go c.pair(ctx)
		return nil
	}

	c.log.Info("Resuming WhatsApp session")
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Infof("WhatsApp device %s connected", c.wa.Store.ID.String())
	return nil
}

func (c *Client) pair(ctx context.Context) {
	const attempts = 5

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}

		qrCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		qrChan, err := c.wa.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			c.log.Errorf("Failed to get QR channel: %v", err)
			continue
		}
		if !c.wa.IsConnected() {
			if err := c.wa.Connect(); err != nil {
				cancel()
				c.log.Errorf("Failed to connect for pairing: %v", err)
				continue
			}
		}

		paired := c.awaitScan(qrCtx, qrChan)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if paired {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.log.Info("WhatsApp pairing complete")
			return
		}
		c.log.Warnf("QR pairing attempt %d/%d failed", attempt, attempts)
	}

	c.log.Error("WhatsApp pairing failed", nil)
}

func (c *Client) awaitScan(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-qrChan:
			if !ok {
				return false
			}
			switch evt.Event {
			case "code":
				c.printQR(evt.Code)
			case "success":
				return true
			case "timeout":
				return false
			default:
				c.log.Debugf("Pairing event: %s", evt.Event)
			}
		}
	}
}

func (c *Client) printQR(code string) {
	rule := strings.Repeat("=", 64)
	fmt.Fprintln(c.qrOut, "\n"+rule)
	fmt.Fprintln(c.qrOut, "Scan with WhatsApp > Settings > Linked Devices > Link a Device")
	fmt.Fprintln(c.qrOut, rule)
	qrterminal.GenerateWithConfig(code, qrterminal.Config{
		Level:      qrterminal.M,
		Writer:     c.qrOut,
		HalfBlocks: true,
		QuietZone:  1,
	})
	fmt.Fprintln(c.qrOut, rule+"\n")
}

// IsConnected reports whether a linked session is live
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.wa.IsConnected() && c.wa.Store.ID != nil
}

// SendText sends a plain conversation message to jid
func (c *Client) SendText(ctx context.Context, jid, text string) error {
	to, err := ParseRecipient(jid)
	if err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := c.wa.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

// Disconnect stops reconnection and closes the session
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.wa.Disconnect()
	if err := c.container.Close(); err != nil {
		c.log.Error("Failed to close WhatsApp session store", err)
	}
	c.log.Info("WhatsApp session closed")
}

// ParseRecipient parses a user or group JID
func ParseRecipient(jid string) (types.JID, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid recipient %q: %w", jid, err)
	}
	if to.User == "" {
		return types.EmptyJID, fmt.Errorf("invalid recipient %q: missing user", jid)
	}
	return to, nil
}
