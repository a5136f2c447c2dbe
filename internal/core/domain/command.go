package domain

// HostCommand is a privileged control action a session host can issue.
type HostCommand string

const (
	CommandMute         HostCommand = "mute"
	CommandStopVideo    HostCommand = "stop-video"
	CommandMuteAll      HostCommand = "mute-all"
	CommandStopVideoAll HostCommand = "stop-video-all"
	CommandEndMeeting   HostCommand = "end-meeting"
	CommandRemoveUser   HostCommand = "remove-user"
	CommandBanUser      HostCommand = "ban-user"
)

// Targeted reports whether the command requires a target participant.
func (c HostCommand) Targeted() bool {
	switch c {
	case CommandMute, CommandStopVideo, CommandRemoveUser, CommandBanUser:
		return true
	}
	return false
}

// Known reports whether the command type is part of the protocol.
func (c HostCommand) Known() bool {
	switch c {
	case CommandMute, CommandStopVideo, CommandMuteAll, CommandStopVideoAll,
		CommandEndMeeting, CommandRemoveUser, CommandBanUser:
		return true
	}
	return false
}
