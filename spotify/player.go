package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Player controls playback on some device. Implementations are injected
// with Client.AttachPlayer so tests can substitute a fake.
type Player interface {
	Connect(ctx context.Context) error
	Disconnect()
	Play(ctx context.Context, uris []string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Requester is the authenticated transport a DevicePlayer drives.
type Requester interface {
	Request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error)
}

// DevicePlayer drives a Spotify Connect device through the Web API.
type DevicePlayer struct {
	api       Requester
	preferred string

	mu     sync.Mutex
	device Device
}

var _ Player = (*DevicePlayer)(nil)

// NewDevicePlayer returns a player bound to api. preferred selects a
// device by id or name; when empty the active device (or the first
// unrestricted one) is used.
func NewDevicePlayer(api Requester, preferred string) *DevicePlayer {
	return &DevicePlayer{api: api, preferred: preferred}
}

// Connect picks the target device.
func (p *DevicePlayer) Connect(ctx context.Context) error {
	raw, err := p.api.Request(ctx, http.MethodGet, "/me/player/devices", nil)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	var resp struct {
		Devices []Device `json:"devices"`
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("failed to decode devices: %w", err)
		}
	}

	device, ok := selectDevice(resp.Devices, p.preferred)
	if !ok {
		return ErrNoDevice
	}

	p.mu.Lock()
	p.device = device
	p.mu.Unlock()
	return nil
}

func selectDevice(devices []Device, preferred string) (Device, bool) {
	if preferred != "" {
		for _, d := range devices {
			if d.ID == preferred || strings.EqualFold(d.Name, preferred) {
				return d, true
			}
		}
		return Device{}, false
	}
	for _, d := range devices {
		if d.IsActive && !d.IsRestricted {
			return d, true
		}
	}
	for _, d := range devices {
		if !d.IsRestricted && d.ID != "" {
			return d, true
		}
	}
	return Device{}, false
}

// Device returns the connected device, if any.
func (p *DevicePlayer) Device() (Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device, p.device.ID != ""
}

func (p *DevicePlayer) Disconnect() {
	p.mu.Lock()
	p.device = Device{}
	p.mu.Unlock()
}

func (p *DevicePlayer) Play(ctx context.Context, uris []string) error {
	return p.command(ctx, "/me/player/play", map[string][]string{"uris": uris})
}

func (p *DevicePlayer) Pause(ctx context.Context) error {
	return p.command(ctx, "/me/player/pause", nil)
}

func (p *DevicePlayer) Resume(ctx context.Context) error {
	return p.command(ctx, "/me/player/play", nil)
}

func (p *DevicePlayer) command(ctx context.Context, endpoint string, body any) error {
	d, ok := p.Device()
	if !ok {
		return ErrPlayerNotConnected
	}
	endpoint += "?device_id=" + url.QueryEscape(d.ID)
	_, err := p.api.Request(ctx, http.MethodPut, endpoint, body)
	return err
}
