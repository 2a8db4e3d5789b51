package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Frame markers and fixed field sizes.
const (
	// STX opens every frame.
	STX byte = 0x02

	// ETX closes every frame.
	ETX byte = 0x03

	// IDLength is the fixed width of the frame's device identifier field.
	IDLength = 12

	// lengthSize is the width of the little-endian LENGTH field.
	lengthSize = 2

	// MinFrameSize is the smallest legal frame: STX, LENGTH, COMMAND,
	// empty DATA, CHECKSUM, ID, ETX.
	MinFrameSize = 1 + lengthSize + 1 + 1 + IDLength + 1

	// sirenOn and sirenOff encode SendMultiMessage.SirenOutput on the wire.
	sirenOn  = 'T'
	sirenOff = 'F'

	// multiMessageFixedSize is the fixed prefix of SendMultiMessage DATA,
	// before the variable-length download URL.
	multiMessageFixedSize = 26

	// timeSyncDataSize is the TimeSync DATA layout: year-2000, month, day,
	// hour, minute, second.
	timeSyncDataSize = 6

	// yearBase anchors single-byte wire years.
	yearBase = 2000
)

// Encode serialises a command into a complete wire frame for deviceID.
//
// Field domains are checked before any bytes are produced; a command with
// an out-of-range field returns ErrFieldOutOfRange wrapped with the field
// name, and no frame. Device identifiers shorter than 12 characters are
// left-padded with '0'; longer identifiers keep their last 12 characters.
//
// Parameters:
//   - cmd: The command to serialise
//   - deviceID: Target device identifier, placed in the frame's ID field
//
// Returns:
//   - []byte: The complete frame, STX through ETX
//   - error: ErrFieldOutOfRange or ErrUnknownCommand
func Encode(cmd Command, deviceID string) ([]byte, error) {
	data, err := encodeData(cmd)
	if err != nil {
		return nil, err
	}

	id := padDeviceID(deviceID)

	// LENGTH counts COMMAND + DATA + CHECKSUM.
	length := uint16(1 + len(data) + 1)
	var lengthBytes [lengthSize]byte
	binary.LittleEndian.PutUint16(lengthBytes[:], length)

	frame := make([]byte, 0, MinFrameSize+len(data))
	frame = append(frame, STX)
	frame = append(frame, lengthBytes[:]...)
	frame = append(frame, byte(cmd.Type()))
	frame = append(frame, data...)
	frame = append(frame, checksum(lengthBytes[:], byte(cmd.Type()), data, id))
	frame = append(frame, id...)
	frame = append(frame, ETX)

	return frame, nil
}

// Decode parses a complete wire frame into its command and device identifier.
//
// Validation order: minimum length, STX/ETX markers, declared length against
// the buffer, checksum, then command tag and DATA layout. Leading '0'
// padding is stripped from the identifier.
//
// Parameters:
//   - frame: The complete frame, STX through ETX
//
// Returns:
//   - Command: The decoded command
//   - string: The device identifier from the frame's ID field
//   - error: ErrFraming, ErrChecksumMismatch, ErrUnknownCommand or ErrInvalidData
func Decode(frame []byte) (Command, string, error) {
	if len(frame) < MinFrameSize {
		return nil, "", fmt.Errorf("%w: frame too short (%d bytes)", ErrFraming, len(frame))
	}
	if frame[0] != STX {
		return nil, "", fmt.Errorf("%w: missing STX", ErrFraming)
	}
	if frame[len(frame)-1] != ETX {
		return nil, "", fmt.Errorf("%w: missing ETX", ErrFraming)
	}

	lengthBytes := frame[1 : 1+lengthSize]
	length := int(binary.LittleEndian.Uint16(lengthBytes))

	// STX + LENGTH + (COMMAND+DATA+CHECKSUM) + ID + ETX
	if 1+lengthSize+length+IDLength+1 != len(frame) {
		return nil, "", fmt.Errorf("%w: declared length %d does not match frame size %d",
			ErrFraming, length, len(frame))
	}

	tag := frame[1+lengthSize]
	data := frame[1+lengthSize+1 : 1+lengthSize+length-1]
	check := frame[1+lengthSize+length-1]
	id := frame[1+lengthSize+length : len(frame)-1]

	if want := checksum(lengthBytes, tag, data, id); check != want {
		return nil, "", fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrChecksumMismatch, check, want)
	}

	cmd, err := decodeData(CommandType(tag), data)
	if err != nil {
		return nil, "", err
	}

	return cmd, unpadDeviceID(id), nil
}

// checksum computes the frame checksum: the byte sum of LENGTH, COMMAND,
// DATA and ID, modulo 256.
func checksum(lengthBytes []byte, tag byte, data, id []byte) byte {
	var sum byte
	for _, b := range lengthBytes {
		sum += b
	}
	sum += tag
	for _, b := range data {
		sum += b
	}
	for _, b := range id {
		sum += b
	}
	return sum
}

// padDeviceID normalises an identifier to the fixed 12-byte ID field.
func padDeviceID(deviceID string) []byte {
	if len(deviceID) >= IDLength {
		return []byte(deviceID[len(deviceID)-IDLength:])
	}
	id := make([]byte, IDLength)
	pad := IDLength - len(deviceID)
	for i := 0; i < pad; i++ {
		id[i] = '0'
	}
	copy(id[pad:], deviceID)
	return id
}

// unpadDeviceID strips the '0' left-padding applied by padDeviceID.
// An all-zero field decodes to a single "0" rather than the empty string.
func unpadDeviceID(id []byte) string {
	s := strings.TrimLeft(string(id), "0")
	if s == "" && len(id) > 0 {
		return "0"
	}
	return s
}

func encodeData(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case Connect:
		return bytes.Repeat([]byte{' '}, IDLength), nil

	case TimeSync:
		year := c.Time.Year()
		if year < yearBase || year > yearBase+255 {
			return nil, fmt.Errorf("%w: year %d", ErrFieldOutOfRange, year)
		}
		return []byte{
			byte(year - yearBase),
			byte(c.Time.Month()),
			byte(c.Time.Day()),
			byte(c.Time.Hour()),
			byte(c.Time.Minute()),
			byte(c.Time.Second()),
		}, nil

	case Heartbeat:
		return nil, nil

	case SendMultiMessage:
		return encodeMultiMessage(c)

	case DeleteRoom:
		if c.RoomNumber < 1 || c.RoomNumber > 100 {
			return nil, fmt.Errorf("%w: room number %d", ErrFieldOutOfRange, c.RoomNumber)
		}
		return []byte{byte(c.RoomNumber)}, nil

	case DeleteAll:
		return nil, nil

	case BrightnessSchedule:
		return encodeBrightnessSchedule(c)

	case ErrorResponse:
		return []byte{c.Code}, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func encodeMultiMessage(c SendMultiMessage) ([]byte, error) {
	if c.RoomNumber < 1 || c.RoomNumber > 100 {
		return nil, fmt.Errorf("%w: room number %d", ErrFieldOutOfRange, c.RoomNumber)
	}
	if c.DisplayEffectSpeed < 1 || c.DisplayEffectSpeed > 6 {
		return nil, fmt.Errorf("%w: display effect speed %d", ErrFieldOutOfRange, c.DisplayEffectSpeed)
	}
	if c.EndEffectSpeed < 1 || c.EndEffectSpeed > 6 {
		return nil, fmt.Errorf("%w: end effect speed %d", ErrFieldOutOfRange, c.EndEffectSpeed)
	}
	if c.Kind != KindTextImage && c.Kind != KindVideo {
		return nil, fmt.Errorf("%w: message kind %d", ErrFieldOutOfRange, c.Kind)
	}
	start, err := encodeScheduleTime(c.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	end, err := encodeScheduleTime(c.EndTime)
	if err != nil {
		return nil, fmt.Errorf("end time: %w", err)
	}

	siren := byte(sirenOff)
	if c.SirenOutput {
		siren = sirenOn
	}

	data := make([]byte, 0, multiMessageFixedSize+len(c.DownloadURL))
	data = append(data,
		byte(c.RoomNumber),
		c.DisplayEffect,
		byte(c.DisplayEffectSpeed),
		c.DisplayWaitTime,
		c.EndEffect,
		byte(c.EndEffectSpeed),
	)
	data = append(data, start...)
	data = append(data, end...)
	data = append(data, siren, byte(c.Kind))
	data = binary.LittleEndian.AppendUint32(data, c.SerialNumber)
	data = binary.LittleEndian.AppendUint32(data, c.PayloadSize)
	data = append(data, c.DownloadURL...)

	return data, nil
}

func encodeScheduleTime(t ScheduleTime) ([]byte, error) {
	if t.Year < yearBase || t.Year > yearBase+255 {
		return nil, fmt.Errorf("%w: year %d", ErrFieldOutOfRange, t.Year)
	}
	if t.Month < 1 || t.Month > 12 {
		return nil, fmt.Errorf("%w: month %d", ErrFieldOutOfRange, t.Month)
	}
	if t.Day < 1 || t.Day > 31 {
		return nil, fmt.Errorf("%w: day %d", ErrFieldOutOfRange, t.Day)
	}
	if t.Hour < 0 || t.Hour > 23 {
		return nil, fmt.Errorf("%w: hour %d", ErrFieldOutOfRange, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return nil, fmt.Errorf("%w: minute %d", ErrFieldOutOfRange, t.Minute)
	}
	return []byte{byte(t.Year - yearBase), byte(t.Month), byte(t.Day), byte(t.Hour), byte(t.Minute)}, nil
}

func encodeBrightnessSchedule(c BrightnessSchedule) ([]byte, error) {
	if len(c.Entries) == 0 || len(c.Entries) > MaxBrightnessEntries {
		return nil, fmt.Errorf("%w: %d brightness entries", ErrFieldOutOfRange, len(c.Entries))
	}
	data := make([]byte, 0, 1+3*len(c.Entries))
	data = append(data, byte(len(c.Entries)))
	for i, e := range c.Entries {
		if e.Hour < 0 || e.Hour > 23 {
			return nil, fmt.Errorf("%w: entry %d hour %d", ErrFieldOutOfRange, i, e.Hour)
		}
		if e.Minute < 0 || e.Minute > 59 {
			return nil, fmt.Errorf("%w: entry %d minute %d", ErrFieldOutOfRange, i, e.Minute)
		}
		if e.Level < 0 || e.Level > 100 {
			return nil, fmt.Errorf("%w: entry %d level %d", ErrFieldOutOfRange, i, e.Level)
		}
		data = append(data, byte(e.Hour), byte(e.Minute), byte(e.Level))
	}
	return data, nil
}

func decodeData(tag CommandType, data []byte) (Command, error) {
	switch tag {
	case CmdConnect:
		if len(data) != IDLength {
			return nil, fmt.Errorf("%w: connect data is %d bytes, want %d",
				ErrInvalidData, len(data), IDLength)
		}
		return Connect{}, nil

	case CmdTimeSync:
		return decodeTimeSync(data)

	case CmdHeartbeat:
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: heartbeat carries %d data bytes", ErrInvalidData, len(data))
		}
		return Heartbeat{}, nil

	case CmdSendMultiMessage:
		return decodeMultiMessage(data)

	case CmdDeleteRoom:
		if len(data) != 1 {
			return nil, fmt.Errorf("%w: delete-room data is %d bytes, want 1", ErrInvalidData, len(data))
		}
		room := int(data[0])
		if room < 1 || room > 100 {
			return nil, fmt.Errorf("%w: room number %d", ErrInvalidData, room)
		}
		return DeleteRoom{RoomNumber: room}, nil

	case CmdDeleteAll:
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: delete-all carries %d data bytes", ErrInvalidData, len(data))
		}
		return DeleteAll{}, nil

	case CmdBrightnessSchedule:
		return decodeBrightnessSchedule(data)

	case CmdErrorResponse:
		if len(data) != 1 {
			return nil, fmt.Errorf("%w: error-response data is %d bytes, want 1", ErrInvalidData, len(data))
		}
		return ErrorResponse{Code: data[0]}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownCommand, byte(tag))
	}
}

func decodeTimeSync(data []byte) (Command, error) {
	if len(data) != timeSyncDataSize {
		return nil, fmt.Errorf("%w: time-sync data is %d bytes, want %d",
			ErrInvalidData, len(data), timeSyncDataSize)
	}
	month := int(data[1])
	day := int(data[2])
	hour := int(data[3])
	minute := int(data[4])
	second := int(data[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return nil, fmt.Errorf("%w: time-sync fields %v", ErrInvalidData, data)
	}

	t := time.Date(yearBase+int(data[0]), time.Month(month), day, hour, minute, second, 0, time.UTC)
	return TimeSync{Time: t}, nil
}

func decodeMultiMessage(data []byte) (Command, error) {
	if len(data) < multiMessageFixedSize {
		return nil, fmt.Errorf("%w: multi-message data is %d bytes, want at least %d",
			ErrInvalidData, len(data), multiMessageFixedSize)
	}

	room := int(data[0])
	if room < 1 || room > 100 {
		return nil, fmt.Errorf("%w: room number %d", ErrInvalidData, room)
	}

	start, err := decodeScheduleTime(data[6:11])
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	end, err := decodeScheduleTime(data[11:16])
	if err != nil {
		return nil, fmt.Errorf("end time: %w", err)
	}

	var siren bool
	switch data[16] {
	case sirenOn:
		siren = true
	case sirenOff:
		siren = false
	default:
		return nil, fmt.Errorf("%w: siren flag 0x%02x", ErrInvalidData, data[16])
	}

	kind := MessageKind(data[17])
	if kind != KindTextImage && kind != KindVideo {
		return nil, fmt.Errorf("%w: message kind %d", ErrInvalidData, kind)
	}

	return SendMultiMessage{
		RoomNumber:         room,
		DisplayEffect:      data[1],
		DisplayEffectSpeed: int(data[2]),
		DisplayWaitTime:    data[3],
		EndEffect:          data[4],
		EndEffectSpeed:     int(data[5]),
		StartTime:          start,
		EndTime:            end,
		SirenOutput:        siren,
		Kind:               kind,
		SerialNumber:       binary.LittleEndian.Uint32(data[18:22]),
		PayloadSize:        binary.LittleEndian.Uint32(data[22:26]),
		DownloadURL:        string(data[multiMessageFixedSize:]),
	}, nil
}

func decodeScheduleTime(b []byte) (ScheduleTime, error) {
	t := ScheduleTime{
		Year:   yearBase + int(b[0]),
		Month:  int(b[1]),
		Day:    int(b[2]),
		Hour:   int(b[3]),
		Minute: int(b[4]),
	}
	if t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 || t.Hour > 23 || t.Minute > 59 {
		return ScheduleTime{}, fmt.Errorf("%w: schedule time %v", ErrInvalidData, b)
	}
	return t, nil
}

func decodeBrightnessSchedule(data []byte) (Command, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: brightness schedule has no entry count", ErrInvalidData)
	}
	count := int(data[0])
	if count < 1 || count > MaxBrightnessEntries {
		return nil, fmt.Errorf("%w: %d brightness entries", ErrInvalidData, count)
	}
	if len(data) != 1+3*count {
		return nil, fmt.Errorf("%w: brightness schedule data is %d bytes, want %d",
			ErrInvalidData, len(data), 1+3*count)
	}

	entries := make([]BrightnessEntry, 0, count)
	for i := 0; i < count; i++ {
		off := 1 + 3*i
		e := BrightnessEntry{
			Hour:   int(data[off]),
			Minute: int(data[off+1]),
			Level:  int(data[off+2]),
		}
		if e.Hour > 23 || e.Minute > 59 || e.Level > 100 {
			return nil, fmt.Errorf("%w: brightness entry %d", ErrInvalidData, i)
		}
		entries = append(entries, e)
	}

	return BrightnessSchedule{Entries: entries}, nil
}
