// Package wire holds the encodings used on the vehicle link: JSON commands
// and the FlatBuffers envelope that frames messages on the ZeroMQ link.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/open-teleop/rov-bridge/domain/teleop"
)

// ErrMalformedEnvelope is returned for buffers that are not an Envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ContentType describes the envelope payload.
type ContentType byte

const (
	ContentTypeUnknown     ContentType = 0
	ContentTypeJSONCommand ContentType = 1
	ContentTypeJSONSensors ContentType = 2
)

// Envelope vtable slots.
const (
	envelopeTopic       = 0
	envelopeTimestampNs = 1
	envelopeContentType = 2
	envelopePayload     = 3
	envelopeFieldCount  = 4
)

// EncodeCommand serializes a command in the vehicle's JSON wire format.
func EncodeCommand(cmd teleop.OutboundCommand) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return data, nil
}

// BuildEnvelope frames payload in a finished FlatBuffer.
func BuildEnvelope(topic string, contentType ContentType, timestamp time.Time, payload []byte) []byte {
	builder := flatbuffers.NewBuilder(len(payload) + len(topic) + 64)
	topicOffset := builder.CreateString(topic)
	payloadOffset := builder.CreateByteVector(payload)

	builder.StartObject(envelopeFieldCount)
	builder.PrependInt64Slot(envelopeTimestampNs, timestamp.UnixNano(), 0)
	builder.PrependUOffsetTSlot(envelopePayload, payloadOffset, 0)
	builder.PrependUOffsetTSlot(envelopeTopic, topicOffset, 0)
	builder.PrependByteSlot(envelopeContentType, byte(contentType), 0)
	builder.Finish(builder.EndObject())

	return builder.FinishedBytes()
}

// Envelope is a read-only view over a finished envelope buffer.
type Envelope struct {
	_tab flatbuffers.Table
}

// GetRootAsEnvelope returns the root table of buf without validation.
// Use DecodeEnvelope for untrusted input.
func GetRootAsEnvelope(buf []byte, offset flatbuffers.UOffsetT) *Envelope {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &Envelope{}
	x._tab.Bytes = buf
	x._tab.Pos = n + offset
	return x
}

func (rcv *Envelope) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(rcv._tab.Offset(flatbuffers.VOffsetT((slot + 2) * 2)))
}

// Topic returns the topic bytes.
func (rcv *Envelope) Topic() []byte {
	if o := rcv.field(envelopeTopic); o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

// TimestampNs returns the send time in Unix nanoseconds.
func (rcv *Envelope) TimestampNs() int64 {
	if o := rcv.field(envelopeTimestampNs); o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

// ContentType returns the payload type.
func (rcv *Envelope) ContentType() ContentType {
	if o := rcv.field(envelopeContentType); o != 0 {
		return ContentType(rcv._tab.GetByte(o + rcv._tab.Pos))
	}
	return ContentTypeUnknown
}

// PayloadBytes returns the payload.
func (rcv *Envelope) PayloadBytes() []byte {
	if o := rcv.field(envelopePayload); o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

// Message is a decoded envelope with copied fields.
type Message struct {
	Topic       string
	Timestamp   time.Time
	ContentType ContentType
	Payload     []byte
}

// DecodeEnvelope parses buf. FlatBuffers accessors index the buffer
// directly, so out-of-range offsets in a corrupt buffer are turned into
// ErrMalformedEnvelope instead of a panic.
func DecodeEnvelope(buf []byte) (msg Message, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT*2 {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMalformedEnvelope, len(buf))
	}

	defer func() {
		if r := recover(); r != nil {
			msg = Message{}
			err = fmt.Errorf("%w: %v", ErrMalformedEnvelope, r)
		}
	}()

	env := GetRootAsEnvelope(buf, 0)
	payload := env.PayloadBytes()
	msg = Message{
		Topic:       string(env.Topic()),
		Timestamp:   time.Unix(0, env.TimestampNs()),
		ContentType: env.ContentType(),
		Payload:     append([]byte(nil), payload...),
	}
	return msg, nil
}
