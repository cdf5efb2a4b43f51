package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestGetRequestEncoding(t *testing.T) {
	// field 1, length delimited, "k1"
	assert.Equal(t, []byte{0x0a, 0x02, 'k', '1'}, (&GetRequest{Key: []byte("k1")}).Marshal())

	key, err := UnmarshalKeyRequest((&DeleteRequest{Key: []byte("gone")}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, []byte("gone"), key)
}

func TestGetResponse(t *testing.T) {
	hit := &GetResponse{Result: ResultHit, Body: []byte("value")}
	decoded, err := UnmarshalGetResponse(hit.Marshal())
	require.NoError(t, err)
	assert.Equal(t, ResultHit, decoded.Result)
	assert.Equal(t, []byte("value"), decoded.Body)
	assert.Equal(t, "Hit", decoded.Result.String())

	miss, err := UnmarshalGetResponse((&GetResponse{Result: ResultMiss}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, ResultMiss, miss.Result)
	assert.Nil(t, miss.Body)
}

func TestIncrementNegativeAmount(t *testing.T) {
	req := &IncrementRequest{Key: []byte("n"), Amount: -5, TTLMillis: 60000}
	decoded, err := UnmarshalIncrementRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req, decoded)

	resp, err := UnmarshalIncrementResponse((&IncrementResponse{Value: -42}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, int64(-42), resp.Value)
}

func TestPublishRequestValues(t *testing.T) {
	tests := []struct {
		name  string
		value TopicValue
	}{
		{"text", TextValue("hello")},
		{"empty text", TextValue("")},
		{"binary", BinaryValue([]byte{0, 1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &PublishRequest{CacheName: "c", Topic: "t", Value: tt.value}
			decoded, err := UnmarshalPublishRequest(req.Marshal())
			require.NoError(t, err)
			assert.Equal(t, "c", decoded.CacheName)
			assert.Equal(t, "t", decoded.Topic)
			assert.Equal(t, tt.value.IsText, decoded.Value.IsText)
			assert.Equal(t, tt.value.Text, decoded.Value.Text)
			if !tt.value.IsText {
				assert.Equal(t, tt.value.Binary, decoded.Value.Binary)
			}
		})
	}
}

func TestSubscriptionItems(t *testing.T) {
	items := []*SubscriptionItem{
		{Kind: ItemValue, Sequence: 7, Value: TextValue("seven")},
		{Kind: ItemDiscontinuity, LastSequence: 7, NewSequence: 12},
		{Kind: ItemHeartbeat},
	}
	for _, item := range items {
		decoded, err := UnmarshalSubscriptionItem(item.Marshal())
		require.NoError(t, err)
		assert.Equal(t, item, decoded)
	}

	_, err := UnmarshalSubscriptionItem(nil)
	assert.Error(t, err)
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := (&GetResponse{Result: ResultHit, Body: []byte("v")}).Marshal()
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 1)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	decoded, err := UnmarshalGetResponse(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), decoded.Body)
}

func TestTruncatedMessage(t *testing.T) {
	b := (&SetRequest{Key: []byte("key"), Body: []byte("body")}).Marshal()
	_, err := UnmarshalSetRequest(b[:len(b)-2])
	assert.Error(t, err)
}
