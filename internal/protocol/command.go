package protocol

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// CommandType identifies the command byte of a protocol frame.
type CommandType byte

// Command bytes understood by sign firmware.
const (
	// CmdConnect is the ID-exchange frame. The server sends it with a
	// placeholder DATA of 12 spaces; the device answers with its real
	// identifier in the ID field.
	CmdConnect CommandType = 0x10

	// CmdTimeSync carries the server's current date/time to the device.
	CmdTimeSync CommandType = 0x11

	// CmdHeartbeat is the periodic liveness frame from the device.
	CmdHeartbeat CommandType = 0x12

	// CmdSendMultiMessage delivers a message descriptor for one room slot.
	CmdSendMultiMessage CommandType = 0x20

	// CmdDeleteRoom clears a single room slot on the device.
	CmdDeleteRoom CommandType = 0x21

	// CmdDeleteAll clears every room slot on the device.
	CmdDeleteAll CommandType = 0x22

	// CmdBrightnessSchedule programs the device's brightness timetable.
	CmdBrightnessSchedule CommandType = 0x30

	// CmdErrorResponse reports a device-side protocol error.
	CmdErrorResponse CommandType = 0x40
)

// String returns the command name for logging.
func (t CommandType) String() string {
	switch t {
	case CmdConnect:
		return "connect"
	case CmdTimeSync:
		return "time_sync"
	case CmdHeartbeat:
		return "heartbeat"
	case CmdSendMultiMessage:
		return "send_multi_message"
	case CmdDeleteRoom:
		return "delete_room"
	case CmdDeleteAll:
		return "delete_all"
	case CmdBrightnessSchedule:
		return "brightness_schedule"
	case CmdErrorResponse:
		return "error_response"
	default:
		return "unknown"
	}
}

// Command is one member of the protocol's tagged command union.
// Each implementation carries only the fields relevant to its tag.
type Command interface {
	// Type returns the command byte written to the wire.
	Type() CommandType
}

// Connect is the ID-request/ID-reply handshake frame.
// Its DATA on the wire is always 12 placeholder spaces; the meaningful
// identifier travels in the frame's ID field.
type Connect struct{}

// Type implements Command.
func (Connect) Type() CommandType { return CmdConnect }

// TimeSync carries the server's clock to the device.
type TimeSync struct {
	// Time is truncated to whole seconds on the wire.
	Time time.Time
}

// Type implements Command.
func (TimeSync) Type() CommandType { return CmdTimeSync }

// Heartbeat is the device's periodic liveness frame. It has no DATA.
type Heartbeat struct{}

// Type implements Command.
func (Heartbeat) Type() CommandType { return CmdHeartbeat }

// MessageKind distinguishes message payload types.
type MessageKind byte

// Message payload kinds.
const (
	// KindTextImage marks text or still-image content.
	KindTextImage MessageKind = 1

	// KindVideo marks video content.
	KindVideo MessageKind = 2
)

// ScheduleTime is the 5-byte wire representation of a display window
// boundary: year-2000, month, day, hour, minute.
type ScheduleTime struct {
	Year   int // full year, 2000-2255 on the wire
	Month  int // 1-12
	Day    int // 1-31
	Hour   int // 0-23
	Minute int // 0-59
}

// ScheduleTimeOf converts a time.Time to its wire representation.
func ScheduleTimeOf(t time.Time) ScheduleTime {
	return ScheduleTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// SendMultiMessage delivers one message descriptor for a room slot.
// The device downloads the rendered content from DownloadURL.
type SendMultiMessage struct {
	RoomNumber         int // 1-100
	DisplayEffect      byte
	DisplayEffectSpeed int // 1-6
	DisplayWaitTime    byte
	EndEffect          byte
	EndEffectSpeed     int // 1-6
	StartTime          ScheduleTime
	EndTime            ScheduleTime
	SirenOutput        bool
	Kind               MessageKind
	SerialNumber       uint32
	PayloadSize        uint32
	DownloadURL        string
}

// Type implements Command.
func (SendMultiMessage) Type() CommandType { return CmdSendMultiMessage }

// Urgent reports whether the message occupies an urgent room (1-5).
func (m SendMultiMessage) Urgent() bool {
	return m.RoomNumber >= 1 && m.RoomNumber <= 5
}

// SerialNumberFor derives the wire serial number from a message identifier.
// The derivation is deterministic: the same message always produces the
// same serial, so re-sends are idempotent on the device.
func SerialNumberFor(messageID uuid.UUID) uint32 {
	return binary.LittleEndian.Uint32(messageID[0:4])
}

// DeleteRoom clears a single room slot on the device.
type DeleteRoom struct {
	RoomNumber int // 1-100
}

// Type implements Command.
func (DeleteRoom) Type() CommandType { return CmdDeleteRoom }

// DeleteAll clears every room slot on the device. It has no DATA.
type DeleteAll struct{}

// Type implements Command.
func (DeleteAll) Type() CommandType { return CmdDeleteAll }

// BrightnessEntry is one point in a device's brightness timetable.
type BrightnessEntry struct {
	Hour   int // 0-23
	Minute int // 0-59
	Level  int // 0-100
}

// BrightnessSchedule programs the device's brightness timetable.
type BrightnessSchedule struct {
	Entries []BrightnessEntry // at most MaxBrightnessEntries
}

// MaxBrightnessEntries bounds a brightness timetable.
const MaxBrightnessEntries = 8

// Type implements Command.
func (BrightnessSchedule) Type() CommandType { return CmdBrightnessSchedule }

// ErrorResponse reports a device-side protocol error code.
type ErrorResponse struct {
	Code byte
}

// Type implements Command.
func (ErrorResponse) Type() CommandType { return CmdErrorResponse }
