package wire

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/veilnet/veilnet/types"
)

func mustEncodeDecode(t *testing.T, env *types.Envelope) *types.Envelope {
	t.Helper()
	buf, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEnvelope(buf)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func testNodeID(b byte) types.NodeID {
	var id types.NodeID
	id.Kind = types.CryptoKind{'V', 'L', 'D', '0'}
	id.Value[31] = b
	return id
}

func TestEnvelopeRoundTripFindNode(t *testing.T) {
	env := &types.Envelope{
		OpID: 0xdeadbeef,
		Kind: types.MessageKindQuestion,
		Body: &FindNodeQ{Target: testNodeID(5)},
	}
	got := mustEncodeDecode(t, env)
	if got.OpID != env.OpID {
		t.Fatalf("opID mismatch: got %d want %d", got.OpID, env.OpID)
	}
	body, ok := got.Body.(*FindNodeQ)
	if !ok {
		t.Fatalf("wrong body type %T", got.Body)
	}
	if !body.Target.Equal(testNodeID(5)) {
		t.Fatal("target NodeID mismatch")
	}
}

func TestEnvelopeRoundTripWithSenderInfo(t *testing.T) {
	sender := types.SignedNodeInfo{
		Info: types.NodeInfo{
			NetworkClass:      types.NetworkClassInboundCapable,
			OutboundProtocols: []types.Protocol{types.ProtocolUDP, types.ProtocolTCP},
			AddressTypes:      []types.Protocol{types.ProtocolTCP},
			MinVersion:        0,
			MaxVersion:        1,
			DialInfoDetails: []types.DialInfoDetail{
				{
					DialInfo: types.DialInfo{
						Protocol: types.ProtocolTCP,
						Addr:     netip.MustParseAddrPort("203.0.113.9:5150"),
					},
					Class: types.DialInfoClassDirect,
				},
			},
		},
		Timestamp: 123456789,
	}
	sender.Signature[0] = 0xAB

	env := &types.Envelope{
		OpID:           7,
		Kind:           types.MessageKindStatement,
		SenderNodeInfo: &sender,
		Body:           &AppMessage{Payload: []byte("hello")},
	}
	got := mustEncodeDecode(t, env)
	if got.SenderNodeInfo == nil {
		t.Fatal("sender node info dropped")
	}
	if got.SenderNodeInfo.Timestamp != sender.Timestamp {
		t.Fatal("timestamp mismatch")
	}
	if len(got.SenderNodeInfo.Info.DialInfoDetails) != 1 {
		t.Fatalf("dial info details mismatch: %+v", got.SenderNodeInfo.Info.DialInfoDetails)
	}
	di := got.SenderNodeInfo.Info.DialInfoDetails[0]
	if di.DialInfo.Addr.String() != "203.0.113.9:5150" {
		t.Fatalf("dial info addr mismatch: %s", di.DialInfo.Addr)
	}
	body, ok := got.Body.(*AppMessage)
	if !ok {
		t.Fatalf("wrong body type %T", got.Body)
	}
	if !bytes.Equal(body.Payload, []byte("hello")) {
		t.Fatal("payload mismatch")
	}
}

func TestEnvelopeDeterministicEncoding(t *testing.T) {
	env := &types.Envelope{
		OpID: 42,
		Kind: types.MessageKindQuestion,
		Body: &SetValueQ{
			Key:   types.ValueKey{Subkey: []byte("k")},
			Value: types.ValueData{Data: []byte("v"), Seq: 3},
		},
	}
	b1, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("encoding is not deterministic")
	}
}

func TestEnvelopeRejectsTrailingGarbage(t *testing.T) {
	env := &types.Envelope{OpID: 1, Kind: types.MessageKindQuestion, Body: &StatusQ{}}
	buf, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	buf = append(buf, 0xff)
	if _, err := DecodeEnvelope(buf); err == nil {
		t.Fatal("expected decode error on trailing garbage")
	}
}

func TestEnvelopeRejectsOversized(t *testing.T) {
	env := &types.Envelope{
		OpID: 1,
		Kind: types.MessageKindStatement,
		Body: &AppMessage{Payload: make([]byte, MaxEnvelopeSize)},
	}
	if _, err := EncodeEnvelope(env); err == nil {
		t.Fatal("expected oversized envelope to be rejected")
	}
}

func TestPrivateRouteStubRoundTrip(t *testing.T) {
	pr := &types.PrivateRoute{HopCount: 0}
	buf := EncodePrivateRoute(nil, pr)
	var got *types.PrivateRoute
	if !ChopPrivateRoute(&got, &buf) {
		t.Fatal("chop failed")
	}
	if !got.IsStub() {
		t.Fatal("expected stub route to round-trip as a stub")
	}
}
