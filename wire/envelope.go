package wire

import "github.com/veilnet/veilnet/types"

// newBodyForCode allocates a zero-valued OperationBody for opcode, so
// DecodeEnvelope can decode into it. Kept as a plain function table rather
// than reflection, matching the teacher's switch-on-a-byte dispatch in
// peers.go's frame handler.
func newBodyForCode(code types.OpCode) interface {
	types.OperationBody
	wireDecodeInto
} {
	switch code {
	case types.OpCodeStatusQ:
		return &StatusQ{}
	case types.OpCodeStatusA:
		return &StatusA{}
	case types.OpCodeFindNodeQ:
		return &FindNodeQ{}
	case types.OpCodeFindNodeA:
		return &FindNodeA{}
	case types.OpCodeGetValueQ:
		return &GetValueQ{}
	case types.OpCodeGetValueA:
		return &GetValueA{}
	case types.OpCodeSetValueQ:
		return &SetValueQ{}
	case types.OpCodeSetValueA:
		return &SetValueA{}
	case types.OpCodeWatchValueQ:
		return &WatchValueQ{}
	case types.OpCodeWatchValueA:
		return &WatchValueA{}
	case types.OpCodeValueChanged:
		return &ValueChanged{}
	case types.OpCodeSupplyBlockQ:
		return &SupplyBlockQ{}
	case types.OpCodeSupplyBlockA:
		return &SupplyBlockA{}
	case types.OpCodeFindBlockQ:
		return &FindBlockQ{}
	case types.OpCodeFindBlockA:
		return &FindBlockA{}
	case types.OpCodeAppCallQ:
		return &AppCallQ{}
	case types.OpCodeAppCallA:
		return &AppCallA{}
	case types.OpCodeAppMessage:
		return &AppMessage{}
	case types.OpCodeSignal:
		return &Signal{}
	case types.OpCodeValidateDialInfo:
		return &ValidateDialInfo{}
	case types.OpCodeReturnReceipt:
		return &ReturnReceipt{}
	case types.OpCodeNodeInfoUpdate:
		return &NodeInfoUpdate{}
	case types.OpCodeStartTunnelQ:
		return &StartTunnelQ{}
	case types.OpCodeStartTunnelA:
		return &StartTunnelA{}
	case types.OpCodeCompleteTunnelQ:
		return &CompleteTunnelQ{}
	case types.OpCodeCompleteTunnelA:
		return &CompleteTunnelA{}
	case types.OpCodeCancelTunnelQ:
		return &CancelTunnelQ{}
	case types.OpCodeCancelTunnelA:
		return &CancelTunnelA{}
	case types.OpCodeRoute:
		return &RoutedOperation{}
	default:
		return nil
	}
}

// wireDecodeInto is implemented by every concrete OperationBody's pointer
// receiver via its wireDecode method.
type wireDecodeInto interface {
	wireDecode(data []byte) error
}

// bodyEncoder is implemented by every concrete OperationBody value
// receiver via its wireEncode/wireSize methods.
type bodyEncoder interface {
	wireSize() int
	wireEncode(out []byte) ([]byte, error)
}

// EncodeEnvelope produces the canonical bytes of env, enforcing the
// MaxEnvelopeSize cap from spec.md §6.
func EncodeEnvelope(env *types.Envelope) ([]byte, error) {
	enc, ok := env.Body.(bodyEncoder)
	if !ok {
		return nil, malformed("envelope body does not implement the wire codec")
	}
	out := make([]byte, 0, 8+1+1+1+1+enc.wireSize()+256)
	out = wireAppendUint64(out, uint64(env.OpID))
	out = wireAppendUint8(out, uint8(env.Kind))
	out = wireAppendUint8(out, uint8(env.Body.OpCode()))

	if env.SenderNodeInfo != nil {
		out = wireAppendBool(out, true)
		out = EncodeSignedNodeInfo(out, *env.SenderNodeInfo)
	} else {
		out = wireAppendBool(out, false)
	}

	if env.RespondPrivateRoute != nil {
		out = wireAppendBool(out, true)
		out = EncodePrivateRoute(out, env.RespondPrivateRoute)
	} else {
		out = wireAppendBool(out, false)
	}

	var err error
	if out, err = enc.wireEncode(out); err != nil {
		return nil, err
	}
	if len(out) > MaxEnvelopeSize {
		return nil, oversized(len(out))
	}
	return out, nil
}

// DecodeEnvelope parses a full envelope from data, requiring data to be
// consumed exactly (spec.md §4.2 rule 1: exactly one variant, no trailing
// garbage).
func DecodeEnvelope(data []byte) (*types.Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return nil, oversized(len(data))
	}
	env := &types.Envelope{}

	var opID uint64
	if !wireChopUint64(&opID, &data) {
		return nil, malformed("envelope: truncated opID")
	}
	env.OpID = types.OpID(opID)

	var kind, code uint8
	if !wireChopUint8(&kind, &data) {
		return nil, malformed("envelope: truncated kind")
	}
	env.Kind = types.MessageKind(kind)
	if !wireChopUint8(&code, &data) {
		return nil, malformed("envelope: truncated opcode")
	}

	var hasSender bool
	if !wireChopBool(&hasSender, &data) {
		return nil, malformed("envelope: truncated sender flag")
	}
	if hasSender {
		var sni types.SignedNodeInfo
		if !ChopSignedNodeInfo(&sni, &data) {
			return nil, malformed("envelope: truncated sender node info")
		}
		env.SenderNodeInfo = &sni
	}

	var hasRoute bool
	if !wireChopBool(&hasRoute, &data) {
		return nil, malformed("envelope: truncated route flag")
	}
	if hasRoute {
		var pr *types.PrivateRoute
		if !ChopPrivateRoute(&pr, &data) {
			return nil, malformed("envelope: truncated respond route")
		}
		env.RespondPrivateRoute = pr
	}

	body := newBodyForCode(types.OpCode(code))
	if body == nil {
		return nil, malformed("envelope: unrecognized opcode")
	}
	if err := body.wireDecode(data); err != nil {
		return nil, err
	}
	env.Body = body
	return env, nil
}
