package types

// OpID is a random 64-bit nonce correlating a Question with its Answer. It
// must come from a CSPRNG (spec.md §3: "unpredictable to foil reply
// forgery") — allocation lives in rpc.Dispatcher, this is just the type.
type OpID uint64

// MessageKind is the outer union tag of an Operation envelope.
type MessageKind byte

const (
	MessageKindQuestion MessageKind = iota
	MessageKindStatement
	MessageKindAnswer
)

// OpCode names every concrete Question/Statement/Answer payload the RPC
// Dispatcher knows about (spec.md §4.7). It is the wire codec's inner
// union tag.
type OpCode byte

const (
	OpCodeInvalid OpCode = iota
	OpCodeStatusQ
	OpCodeStatusA
	OpCodeFindNodeQ
	OpCodeFindNodeA
	OpCodeGetValueQ
	OpCodeGetValueA
	OpCodeSetValueQ
	OpCodeSetValueA
	OpCodeWatchValueQ
	OpCodeWatchValueA
	OpCodeValueChanged // Statement
	OpCodeSupplyBlockQ
	OpCodeSupplyBlockA
	OpCodeFindBlockQ
	OpCodeFindBlockA
	OpCodeAppCallQ
	OpCodeAppCallA
	OpCodeAppMessage // Statement
	OpCodeSignal     // Statement
	OpCodeValidateDialInfo // Statement
	OpCodeReturnReceipt    // Statement
	OpCodeNodeInfoUpdate   // Statement
	OpCodeStartTunnelQ
	OpCodeStartTunnelA
	OpCodeCompleteTunnelQ
	OpCodeCompleteTunnelA
	OpCodeCancelTunnelQ
	OpCodeCancelTunnelA
	OpCodeRoute // carries an onion-wrapped RoutedOperation, see route package
)

// OperationBody is implemented by every concrete Question/Statement/Answer
// payload type in package wire. It is declared here, not in wire, so that
// types.Envelope can reference it without wire depending back on types in
// a cycle.
type OperationBody interface {
	OpCode() OpCode
	WireSize() int
}

// Envelope is the top-level wire structure: Operation{opId, senderNodeInfo?,
// kind} from spec.md §6.
type Envelope struct {
	OpID           OpID
	SenderNodeInfo *SignedNodeInfo // optional
	Kind           MessageKind
	Body           OperationBody
	// RespondPrivateRoute, when set, tells the responder to route the
	// Answer back through this PrivateRoute instead of replying on the
	// inbound connection (spec.md §4.7, inbound Question handling (b)).
	RespondPrivateRoute *PrivateRoute
}
