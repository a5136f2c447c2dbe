package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/signal"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// NegotiationMessage is the payload carried inside negotiate frames. The
// server never inspects it; both ends of the relay agree on this shape.
type NegotiationMessage struct {
	Kind      string                     `json:"kind"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

const (
	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"
)

// NegotiationSender is the slice of the signaling client the orchestrator
// needs to run the offer/answer exchange.
type NegotiationSender interface {
	SendNegotiate(to domain.ParticipantID, payload interface{}) error
}

// remotePeer tracks one remote endpoint's connection and negotiation state.
type remotePeer struct {
	id domain.ParticipantID
	pc *webrtc.PeerConnection

	mu sync.Mutex
	// initiator is true when the local side elected itself the offerer for
	// this pairing.
	initiator bool
	// remoteSet flips when a remote description has been applied; candidates
	// arriving earlier wait in pending.
	remoteSet     bool
	pending       []webrtc.ICECandidateInit
	lastRemoteSDP string
}

// Orchestrator drives one peer connection per remote participant, reacting
// to roster events from the signaling channel. Offer direction is decided by
// identifier comparison so both sides agree without a handshake, and the
// answerer side ignores any offer-shaped traffic it should never receive.
type Orchestrator struct {
	local   domain.ParticipantID
	sender  NegotiationSender
	media   *LocalMedia
	api     *webrtc.API
	rtcConf webrtc.Configuration

	mu    sync.Mutex
	peers map[domain.ParticipantID]*remotePeer

	onRemoteTrack func(remote domain.ParticipantID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	logger *zap.SugaredLogger
}

func NewOrchestrator(local domain.ParticipantID, sender NegotiationSender, media *LocalMedia, iceServers []webrtc.ICEServer, logger *zap.SugaredLogger) (*Orchestrator, error) {
	// An API built from a bare SettingEngine carries no codecs, and a peer
	// connection without codecs cannot populate media sections in an offer.
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}
	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(webrtc.SettingEngine{}),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return &Orchestrator{
		local:  local,
		sender: sender,
		media:  media,
		api:    api,
		rtcConf: webrtc.Configuration{
			ICEServers:   iceServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		peers:  make(map[domain.ParticipantID]*remotePeer),
		logger: logger,
	}, nil
}

// OnRemoteTrack registers the media sink for inbound tracks. Must be set
// before Bind.
func (o *Orchestrator) OnRemoteTrack(fn func(remote domain.ParticipantID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	o.onRemoteTrack = fn
}

// Bind wires the orchestrator into a signaling client's event stream.
func (o *Orchestrator) Bind(c *Client) {
	c.SetHandlers(Handlers{
		OnSnapshot: func(participants []signal.ParticipantInfo) {
			for _, p := range participants {
				if p.Participant != o.local {
					o.EnsurePeer(p.Participant)
				}
			}
		},
		OnArrived: func(p signal.ParticipantInfo) {
			o.EnsurePeer(p.Participant)
		},
		OnLeft: func(id domain.ParticipantID) {
			o.Teardown(id)
		},
		OnNegotiate: func(from domain.ParticipantID, payload json.RawMessage) {
			o.HandleNegotiate(from, payload)
		},
		OnHostCommand: func(from domain.ParticipantID, cmd signal.HostCommandPayload) {
			o.applyHostCommand(from, cmd)
		},
		OnSessionEnded: func(signal.SessionEndedPayload) {
			o.CloseAll()
		},
	})
}

// EnsurePeer opens a connection to the remote if none exists. The side with
// the smaller identifier creates the offer; the other side only answers.
func (o *Orchestrator) EnsurePeer(remote domain.ParticipantID) {
	peer, created, err := o.getOrCreate(remote)
	if err != nil {
		o.logger.Errorw("failed to create peer connection", "remote", remote, "error", err)
		return
	}
	if !created || !peer.initiator {
		return
	}

	if err := o.sendOffer(peer); err != nil {
		o.logger.Errorw("failed to send offer", "remote", remote, "error", err)
		o.Teardown(remote)
	}
}

func (o *Orchestrator) getOrCreate(remote domain.ParticipantID) (*remotePeer, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if peer, exists := o.peers[remote]; exists {
		return peer, false, nil
	}

	pc, err := o.api.NewPeerConnection(o.rtcConf)
	if err != nil {
		return nil, false, err
	}

	peer := &remotePeer{
		id:        remote,
		pc:        pc,
		initiator: domain.Initiates(o.local, remote),
	}

	if o.media != nil {
		if err := o.media.Attach(pc); err != nil {
			pc.Close()
			return nil, false, err
		}
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := o.sender.SendNegotiate(remote, NegotiationMessage{Kind: KindCandidate, Candidate: &init}); err != nil {
			o.logger.Warnw("failed to send candidate", "remote", remote, "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.logger.Infow("remote track started",
			"remote", remote,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		if o.onRemoteTrack != nil {
			o.onRemoteTrack(remote, track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		o.handleConnectionState(remote, state)
	})

	o.peers[remote] = peer
	return peer, true, nil
}

// handleConnectionState drops the remote once its transport is gone. A
// disconnected connection removes the entry like failed and closed do; a
// later arrival or negotiate message opens a fresh pairing.
func (o *Orchestrator) handleConnectionState(remote domain.ParticipantID, state webrtc.PeerConnectionState) {
	o.logger.Infow("peer connection state changed", "remote", remote, "state", state)
	switch state {
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		o.Teardown(remote)
	}
}

func (o *Orchestrator) sendOffer(peer *remotePeer) error {
	peer.mu.Lock()
	defer peer.mu.Unlock()

	offer, err := peer.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := peer.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return o.sender.SendNegotiate(peer.id, NegotiationMessage{Kind: KindOffer, SDP: &offer})
}

// HandleNegotiate applies one relayed negotiation message from a remote.
func (o *Orchestrator) HandleNegotiate(from domain.ParticipantID, payload json.RawMessage) {
	var msg NegotiationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		o.logger.Warnw("malformed negotiation payload dropped", "from", from, "error", err)
		return
	}

	peer, _, err := o.getOrCreate(from)
	if err != nil {
		o.logger.Errorw("failed to create peer connection for remote", "from", from, "error", err)
		return
	}

	switch msg.Kind {
	case KindOffer:
		o.handleOffer(peer, msg)
	case KindAnswer:
		o.handleAnswer(peer, msg)
	case KindCandidate:
		o.handleCandidate(peer, msg)
	default:
		o.logger.Debugw("unknown negotiation kind dropped", "from", from, "kind", msg.Kind)
	}
}

func (o *Orchestrator) handleOffer(peer *remotePeer, msg NegotiationMessage) {
	if msg.SDP == nil {
		return
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	// Both sides agree on the offer direction up front, so an offer landing
	// on the offerer side is glare from a confused remote. Dropping it keeps
	// exactly one description exchange in flight.
	if peer.initiator {
		o.logger.Warnw("offer from answerer side ignored", "from", peer.id)
		return
	}
	if msg.SDP.SDP == peer.lastRemoteSDP {
		o.logger.Debugw("duplicate offer ignored", "from", peer.id)
		return
	}

	if err := peer.pc.SetRemoteDescription(*msg.SDP); err != nil {
		o.logger.Errorw("failed to apply offer", "from", peer.id, "error", err)
		return
	}
	peer.lastRemoteSDP = msg.SDP.SDP
	peer.remoteSet = true
	o.flushCandidatesLocked(peer)

	answer, err := peer.pc.CreateAnswer(nil)
	if err != nil {
		o.logger.Errorw("failed to create answer", "from", peer.id, "error", err)
		return
	}
	if err := peer.pc.SetLocalDescription(answer); err != nil {
		o.logger.Errorw("failed to set local answer", "from", peer.id, "error", err)
		return
	}
	if err := o.sender.SendNegotiate(peer.id, NegotiationMessage{Kind: KindAnswer, SDP: &answer}); err != nil {
		o.logger.Warnw("failed to send answer", "from", peer.id, "error", err)
	}
}

func (o *Orchestrator) handleAnswer(peer *remotePeer, msg NegotiationMessage) {
	if msg.SDP == nil {
		return
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if !peer.initiator {
		o.logger.Warnw("answer on answerer side ignored", "from", peer.id)
		return
	}
	if msg.SDP.SDP == peer.lastRemoteSDP {
		o.logger.Debugw("duplicate answer ignored", "from", peer.id)
		return
	}

	if err := peer.pc.SetRemoteDescription(*msg.SDP); err != nil {
		o.logger.Errorw("failed to apply answer", "from", peer.id, "error", err)
		return
	}
	peer.lastRemoteSDP = msg.SDP.SDP
	peer.remoteSet = true
	o.flushCandidatesLocked(peer)
}

func (o *Orchestrator) handleCandidate(peer *remotePeer, msg NegotiationMessage) {
	if msg.Candidate == nil {
		return
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	// Trickled candidates can outrun the description they belong to; hold
	// them until the remote description lands.
	if !peer.remoteSet {
		peer.pending = append(peer.pending, *msg.Candidate)
		return
	}
	if err := peer.pc.AddICECandidate(*msg.Candidate); err != nil {
		o.logger.Warnw("failed to add candidate", "from", peer.id, "error", err)
	}
}

func (o *Orchestrator) flushCandidatesLocked(peer *remotePeer) {
	for _, candidate := range peer.pending {
		if err := peer.pc.AddICECandidate(candidate); err != nil {
			o.logger.Warnw("failed to add buffered candidate", "from", peer.id, "error", err)
		}
	}
	peer.pending = nil
}

func (o *Orchestrator) applyHostCommand(from domain.ParticipantID, cmd signal.HostCommandPayload) {
	switch cmd.Command {
	case domain.CommandRemoveUser, domain.CommandBanUser:
		if cmd.Target == o.local {
			o.CloseAll()
		} else {
			o.Teardown(cmd.Target)
		}
		return
	case domain.CommandEndMeeting:
		o.CloseAll()
		return
	}

	if o.media == nil {
		return
	}

	switch cmd.Command {
	case domain.CommandMute:
		if cmd.Target == o.local {
			o.media.SetMuted(true)
		}
	case domain.CommandStopVideo:
		if cmd.Target == o.local {
			o.media.SetVideoEnabled(false)
		}
	case domain.CommandMuteAll:
		// The issuer keeps their own microphone.
		if from != o.local {
			o.media.SetMuted(true)
		}
	case domain.CommandStopVideoAll:
		if from != o.local {
			o.media.SetVideoEnabled(false)
		}
	}
}

// Teardown closes and forgets the connection to one remote.
func (o *Orchestrator) Teardown(remote domain.ParticipantID) {
	o.mu.Lock()
	peer, exists := o.peers[remote]
	if exists {
		delete(o.peers, remote)
	}
	o.mu.Unlock()

	if exists && peer.pc != nil {
		if o.media != nil {
			o.media.Detach(peer.pc)
		}
		peer.pc.Close()
	}
}

// CloseAll tears down every peer connection, typically on session end.
func (o *Orchestrator) CloseAll() {
	o.mu.Lock()
	peers := make([]*remotePeer, 0, len(o.peers))
	for _, peer := range o.peers {
		peers = append(peers, peer)
	}
	o.peers = make(map[domain.ParticipantID]*remotePeer)
	o.mu.Unlock()

	for _, peer := range peers {
		if peer.pc != nil {
			if o.media != nil {
				o.media.Detach(peer.pc)
			}
			peer.pc.Close()
		}
	}
}

// Connected reports whether a connection exists for the remote.
func (o *Orchestrator) Connected(remote domain.ParticipantID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, exists := o.peers[remote]
	return exists
}
