package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// CacheResult is the outcome reported by a cache read
type CacheResult int32

const (
	ResultInvalid CacheResult = 0
	ResultOk      CacheResult = 1
	ResultHit     CacheResult = 2
	ResultMiss    CacheResult = 3
)

func (r CacheResult) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultHit:
		return "Hit"
	case ResultMiss:
		return "Miss"
	default:
		return "Invalid"
	}
}

// GetRequest reads one key
type GetRequest struct {
	Key []byte
}

// Marshal encodes the request
func (m *GetRequest) Marshal() []byte {
	return appendBytes(nil, 1, m.Key)
}

// GetResponse reports a hit with its value, or a miss
type GetResponse struct {
	Result  CacheResult
	Body    []byte
	Message string
}

// Marshal encodes the response
func (m *GetResponse) Marshal() []byte {
	b := appendVarint(nil, 1, uint64(m.Result))
	b = appendBytes(b, 2, m.Body)
	return appendString(b, 3, m.Message)
}

// UnmarshalGetResponse decodes a GetResponse
func UnmarshalGetResponse(b []byte) (*GetResponse, error) {
	m := &GetResponse{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Result = CacheResult(f.v)
		case 2:
			m.Body = clone(f.raw)
		case 3:
			m.Message = string(f.raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetRequest stores a value with a time to live
type SetRequest struct {
	Key       []byte
	Body      []byte
	TTLMillis uint64
}

// Marshal encodes the request
func (m *SetRequest) Marshal() []byte {
	b := appendBytes(nil, 1, m.Key)
	b = appendBytes(b, 2, m.Body)
	return appendVarint(b, 3, m.TTLMillis)
}

// UnmarshalSetRequest decodes a SetRequest
func UnmarshalSetRequest(b []byte) (*SetRequest, error) {
	m := &SetRequest{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Key = clone(f.raw)
		case 2:
			m.Body = clone(f.raw)
		case 3:
			m.TTLMillis = f.v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalKeyRequest decodes the key of a Get or Delete request
func UnmarshalKeyRequest(b []byte) ([]byte, error) {
	var key []byte
	err := walk(b, func(f field) error {
		if f.num == 1 {
			key = clone(f.raw)
		}
		return nil
	})
	return key, err
}

// DeleteRequest removes one key
type DeleteRequest struct {
	Key []byte
}

// Marshal encodes the request
func (m *DeleteRequest) Marshal() []byte {
	return appendBytes(nil, 1, m.Key)
}

// IncrementRequest adds Amount to the integer stored at Key
type IncrementRequest struct {
	Key       []byte
	Amount    int64
	TTLMillis uint64
}

// Marshal encodes the request
func (m *IncrementRequest) Marshal() []byte {
	b := appendBytes(nil, 1, m.Key)
	b = appendVarint(b, 2, uint64(m.Amount))
	return appendVarint(b, 3, m.TTLMillis)
}

// UnmarshalIncrementRequest decodes an IncrementRequest
func UnmarshalIncrementRequest(b []byte) (*IncrementRequest, error) {
	m := &IncrementRequest{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Key = clone(f.raw)
		case 2:
			m.Amount = int64(f.v)
		case 3:
			m.TTLMillis = f.v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// IncrementResponse carries the value after the increment
type IncrementResponse struct {
	Value int64
}

// Marshal encodes the response
func (m *IncrementResponse) Marshal() []byte {
	return appendVarint(nil, 1, uint64(m.Value))
}

// UnmarshalIncrementResponse decodes an IncrementResponse
func UnmarshalIncrementResponse(b []byte) (*IncrementResponse, error) {
	m := &IncrementResponse{}
	err := walk(b, func(f field) error {
		if f.num == 1 {
			m.Value = int64(f.v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TopicValue is a published payload, either text or binary
type TopicValue struct {
	Text   string
	Binary []byte
	IsText bool
}

// TextValue returns a text topic value
func TextValue(s string) TopicValue {
	return TopicValue{Text: s, IsText: true}
}

// BinaryValue returns a binary topic value
func BinaryValue(b []byte) TopicValue {
	return TopicValue{Binary: b}
}

func (v TopicValue) marshal() []byte {
	if v.IsText {
		b := protowire.AppendTag(nil, 1, protowire.BytesType)
		return protowire.AppendString(b, v.Text)
	}
	b := protowire.AppendTag(nil, 2, protowire.BytesType)
	return protowire.AppendBytes(b, v.Binary)
}

func unmarshalTopicValue(b []byte) (TopicValue, error) {
	var v TopicValue
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			v = TopicValue{Text: string(f.raw), IsText: true}
		case 2:
			v = TopicValue{Binary: clone(f.raw)}
		}
		return nil
	})
	return v, err
}

// PublishRequest sends one value to every subscriber of a topic
type PublishRequest struct {
	CacheName string
	Topic     string
	Value     TopicValue
}

// Marshal encodes the request
func (m *PublishRequest) Marshal() []byte {
	b := appendString(nil, 1, m.CacheName)
	b = appendString(b, 2, m.Topic)
	return appendMessage(b, 3, m.Value.marshal())
}

// UnmarshalPublishRequest decodes a PublishRequest
func UnmarshalPublishRequest(b []byte) (*PublishRequest, error) {
	m := &PublishRequest{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.CacheName = string(f.raw)
		case 2:
			m.Topic = string(f.raw)
		case 3:
			v, err := unmarshalTopicValue(f.raw)
			if err != nil {
				return err
			}
			m.Value = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SubscriptionRequest opens a topic stream. A non-zero ResumeAtSequence
// asks the server to replay items after that sequence number.
type SubscriptionRequest struct {
	CacheName        string
	Topic            string
	ResumeAtSequence uint64
}

// Marshal encodes the request
func (m *SubscriptionRequest) Marshal() []byte {
	b := appendString(nil, 1, m.CacheName)
	b = appendString(b, 2, m.Topic)
	return appendVarint(b, 3, m.ResumeAtSequence)
}

// UnmarshalSubscriptionRequest decodes a SubscriptionRequest
func UnmarshalSubscriptionRequest(b []byte) (*SubscriptionRequest, error) {
	m := &SubscriptionRequest{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.CacheName = string(f.raw)
		case 2:
			m.Topic = string(f.raw)
		case 3:
			m.ResumeAtSequence = f.v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ItemKind tells which member of a SubscriptionItem is set
type ItemKind int

const (
	ItemUnknown ItemKind = iota
	ItemValue
	ItemDiscontinuity
	ItemHeartbeat
)

// SubscriptionItem is one message of a topic stream
type SubscriptionItem struct {
	Kind ItemKind

	// ItemValue
	Sequence uint64
	Value    TopicValue

	// ItemDiscontinuity
	LastSequence uint64
	NewSequence  uint64
}

// Marshal encodes the item
func (m *SubscriptionItem) Marshal() []byte {
	switch m.Kind {
	case ItemValue:
		item := appendVarint(nil, 1, m.Sequence)
		item = appendMessage(item, 2, m.Value.marshal())
		return appendMessage(nil, 1, item)
	case ItemDiscontinuity:
		d := appendVarint(nil, 1, m.LastSequence)
		d = appendVarint(d, 2, m.NewSequence)
		return appendMessage(nil, 2, d)
	case ItemHeartbeat:
		return appendMessage(nil, 3, nil)
	default:
		return nil
	}
}

// UnmarshalSubscriptionItem decodes a SubscriptionItem
func UnmarshalSubscriptionItem(b []byte) (*SubscriptionItem, error) {
	m := &SubscriptionItem{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Kind = ItemValue
			return walk(f.raw, func(f field) error {
				switch f.num {
				case 1:
					m.Sequence = f.v
				case 2:
					v, err := unmarshalTopicValue(f.raw)
					if err != nil {
						return err
					}
					m.Value = v
				}
				return nil
			})
		case 2:
			m.Kind = ItemDiscontinuity
			return walk(f.raw, func(f field) error {
				switch f.num {
				case 1:
					m.LastSequence = f.v
				case 2:
					m.NewSequence = f.v
				}
				return nil
			})
		case 3:
			m.Kind = ItemHeartbeat
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.Kind == ItemUnknown {
		return nil, errors.New("wire: subscription item has no known member")
	}
	return m, nil
}
