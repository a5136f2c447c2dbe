package client

import (
	"sync"

	"huddle/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PacketSource produces RTP packets from a capture pipeline.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// LocalMedia owns the outbound tracks shared across all peer connections.
// Switching between camera and screen capture swaps the track on every
// sender in place, so no description exchange is needed.
type LocalMedia struct {
	mu sync.Mutex

	audio  *webrtc.TrackLocalStaticRTP
	camera *webrtc.TrackLocalStaticRTP
	screen *webrtc.TrackLocalStaticRTP

	videoSenders map[*webrtc.PeerConnection]*webrtc.RTPSender

	muted        bool
	videoEnabled bool
	sharing      bool

	logger *zap.SugaredLogger
}

func NewLocalMedia(logger *zap.SugaredLogger) (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"huddle-audio",
	)
	if err != nil {
		return nil, err
	}

	camera, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"huddle-video",
	)
	if err != nil {
		return nil, err
	}

	return &LocalMedia{
		audio:        audio,
		camera:       camera,
		videoSenders: make(map[*webrtc.PeerConnection]*webrtc.RTPSender),
		videoEnabled: true,
		logger:       logger,
	}, nil
}

// Attach adds the local tracks to a new peer connection and starts draining
// its sender RTCP streams.
func (m *LocalMedia) Attach(pc *webrtc.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	audioSender, err := pc.AddTrack(m.audio)
	if err != nil {
		return err
	}
	go m.drainRTCP(audioSender)

	video := m.currentVideoLocked()
	videoSender, err := pc.AddTrack(video)
	if err != nil {
		return err
	}
	m.videoSenders[pc] = videoSender
	go m.drainRTCP(videoSender)

	return nil
}

// Detach forgets the sender bound to a torn-down connection so track swaps
// stop touching it.
func (m *LocalMedia) Detach(pc *webrtc.PeerConnection) {
	m.mu.Lock()
	delete(m.videoSenders, pc)
	m.mu.Unlock()
}

// WriteAudio pushes one captured audio packet to every connection. Packets
// are dropped silently while muted.
func (m *LocalMedia) WriteAudio(packet *rtp.Packet) error {
	m.mu.Lock()
	muted := m.muted
	m.mu.Unlock()

	if muted {
		return nil
	}
	return m.audio.WriteRTP(packet)
}

// WriteVideo pushes one captured video packet to whichever video track is
// live, camera or screen.
func (m *LocalMedia) WriteVideo(packet *rtp.Packet) error {
	m.mu.Lock()
	enabled := m.videoEnabled
	track := m.currentVideoLocked()
	m.mu.Unlock()

	if !enabled {
		return nil
	}
	return track.WriteRTP(packet)
}

// PumpAudio forwards packets from a capture source until it errors.
func (m *LocalMedia) PumpAudio(src PacketSource) {
	for {
		packet, err := src.ReadRTP()
		if err != nil {
			return
		}
		if err := m.WriteAudio(packet); err != nil {
			m.logger.Warnw("audio write failed", "error", err)
		}
	}
}

// PumpVideo forwards packets from a capture source until it errors.
func (m *LocalMedia) PumpVideo(src PacketSource) {
	for {
		packet, err := src.ReadRTP()
		if err != nil {
			return
		}
		if err := m.WriteVideo(packet); err != nil {
			m.logger.Warnw("video write failed", "error", err)
		}
	}
}

// StartScreenShare swaps the outbound video to a screen capture track on
// every live sender.
func (m *LocalMedia) StartScreenShare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sharing {
		return nil
	}

	if m.screen == nil {
		screen, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"screen",
			"huddle-screen",
		)
		if err != nil {
			return err
		}
		m.screen = screen
	}

	if err := m.replaceVideoLocked(m.screen); err != nil {
		return err
	}
	m.sharing = true
	return nil
}

// StopScreenShare restores the camera track.
func (m *LocalMedia) StopScreenShare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sharing {
		return nil
	}
	if err := m.replaceVideoLocked(m.camera); err != nil {
		return err
	}
	m.sharing = false
	return nil
}

func (m *LocalMedia) replaceVideoLocked(track *webrtc.TrackLocalStaticRTP) error {
	// One dying sender must not stop the swap on the remaining connections.
	var firstErr error
	for _, sender := range m.videoSenders {
		if err := sender.ReplaceTrack(track); err != nil {
			m.logger.Warnw("track swap failed on sender", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *LocalMedia) currentVideoLocked() *webrtc.TrackLocalStaticRTP {
	if m.sharing && m.screen != nil {
		return m.screen
	}
	return m.camera
}

func (m *LocalMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *LocalMedia) SetVideoEnabled(enabled bool) {
	m.mu.Lock()
	m.videoEnabled = enabled
	m.mu.Unlock()
}

// Flags reports the current local media state in the shared wire shape.
func (m *LocalMedia) Flags() domain.MediaFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MediaFlags{
		Muted:         m.muted,
		VideoEnabled:  m.videoEnabled,
		ScreenSharing: m.sharing,
	}
}

// drainRTCP keeps the sender's feedback stream flowing and surfaces keyframe
// requests in the logs.
func (m *LocalMedia) drainRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if _, ok := packet.(*rtcp.PictureLossIndication); ok {
				m.logger.Debugw("keyframe requested by remote")
			}
		}
	}
}
