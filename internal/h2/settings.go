package h2

import (
	"sync"

	"golang.org/x/net/http2"
)

const (
	minMaxFrameSize = 1 << 14
	maxMaxFrameSize = 1<<24 - 1
)

// settings tracks one side's SETTINGS values (ours to advertise, or
// the peer's as learned from their SETTINGS frames), with callbacks
// fired whenever a value changes so dependent mixins can react; the
// hpack encoder registers for header table size and max header list
// size.
type settings struct {
	mu       sync.RWMutex
	vals     [8]uint32
	onChange [8][]func(uint32)
}

func newSelfSettings() *settings {
	s := &settings{}
	s.vals[http2.SettingHeaderTableSize] = 4096
	s.vals[http2.SettingEnablePush] = 0
	s.vals[http2.SettingMaxConcurrentStreams] = 250
	s.vals[http2.SettingInitialWindowSize] = 4 << 20
	s.vals[http2.SettingMaxFrameSize] = 1 << 20
	s.vals[http2.SettingMaxHeaderListSize] = 10 << 20
	return s
}

func newPeerSettings() *settings {
	s := &settings{}
	s.vals[http2.SettingHeaderTableSize] = 4096
	s.vals[http2.SettingEnablePush] = 1
	s.vals[http2.SettingMaxConcurrentStreams] = 100
	s.vals[http2.SettingInitialWindowSize] = 65535
	s.vals[http2.SettingMaxFrameSize] = 16384
	s.vals[http2.SettingMaxHeaderListSize] = 0xffffffff
	return s
}

func (s *settings) Get(id http2.SettingID) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals[id]
}

func (s *settings) OnChange(id http2.SettingID, f func(uint32)) {
	s.mu.Lock()
	s.onChange[id] = append(s.onChange[id], f)
	s.mu.Unlock()
}

func (s *settings) set(id http2.SettingID, val uint32) {
	s.mu.Lock()
	s.vals[id] = val
	cbs := append([]func(uint32){}, s.onChange[id]...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(val)
	}
}

// updateFrom applies a peer SETTINGS frame's values, firing callbacks
// for each changed setting.
func (s *settings) updateFrom(frame *http2.SettingsFrame) error {
	return frame.ForeachSetting(func(set http2.Setting) error {
		if err := set.Valid(); err != nil {
			return err
		}
		s.set(set.ID, set.Val)
		return nil
	})
}

func (s *settings) maxFrameSize() uint32 {
	v := s.Get(http2.SettingMaxFrameSize)
	switch {
	case v < minMaxFrameSize:
		return minMaxFrameSize
	case v > maxMaxFrameSize:
		return maxMaxFrameSize
	default:
		return v
	}
}
